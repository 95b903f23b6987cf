package orchestrator

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurogo/kurogo/internal/fetch"
	"github.com/kurogo/kurogo/internal/model"
)

const fixtureKey = "0123456789abcdef"

// encryptFixture encrypts a block-aligned plaintext, mirroring a real
// HLS segment: segments are raw ciphertext, never PKCS5-padded.
func encryptFixture(t *testing.T, plaintext []byte, iv [16]byte) []byte {
	t.Helper()
	block, err := aes.NewCipher([]byte(fixtureKey))
	require.NoError(t, err)
	require.Zero(t, len(plaintext)%block.BlockSize(), "fixture plaintext must be block-aligned")
	out := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv[:]).CryptBlocks(out, plaintext)
	return out
}

func fakeMuxer(t *testing.T) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake muxer script is POSIX shell only")
	}
	script := "#!/bin/sh\neval out=\\${$#}\ntouch \"$out\"\nexit 0\n"
	path := filepath.Join(t.TempDir(), "fake-ffmpeg.sh")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestRun_EndToEnd(t *testing.T) {
	segmentBodies := [][]byte{[]byte("part one segment"), []byte("part two segment")}

	var server *httptest.Server

	mux := http.NewServeMux()
	mux.HandleFunc("/play/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body>
			<button data-src="%s/packer" data-resolution="1080" data-audio="jpn" data-av1="0"></button>
		</body></html>`, server.URL)
	})
	mux.HandleFunc("/packer", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><body><script>var source = '%s/playlist.m3u8'; eval("");</script></body></html>`, server.URL)
	})
	mux.HandleFunc("/playlist.m3u8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "#EXTM3U\n#EXT-X-MEDIA-SEQUENCE:0\n#EXT-X-KEY:METHOD=AES-128,URI=\"/key.bin\"\n#EXTINF:4,\nseg0.ts\n#EXTINF:4,\nseg1.ts\n#EXT-X-ENDLIST\n")
	})
	mux.HandleFunc("/key.bin", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(fixtureKey))
	})
	mux.HandleFunc("/seg0.ts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(encryptFixture(t, segmentBodies[0], (model.SegmentPlan{}).SegmentIV(0)))
	})
	mux.HandleFunc("/seg1.ts", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(encryptFixture(t, segmentBodies[1], (model.SegmentPlan{}).SegmentIV(1)))
	})

	server = httptest.NewServer(mux)
	defer server.Close()

	client, err := fetch.New(fetch.Config{})
	require.NoError(t, err)

	root := t.TempDir()
	episode := model.EpisodeRef{Show: model.ShowRef{Title: "Demo Show"}, Number: 1, ID: server.URL + "/play/1"}
	ws := model.EpisodeWorkspace{Root: root, Ref: episode}
	job := model.Job{
		Episode:   episode,
		Choice:    model.StreamChoice{Quality: model.BestQuality},
		Workspace: ws,
	}

	err = Run(t.Context(), client, job, Config{
		SegmentConcurrency: 2,
		MuxerPath:          fakeMuxer(t),
	})
	require.NoError(t, err)

	_, statErr := os.Stat(ws.OutputPath())
	assert.NoError(t, statErr, "muxed output should exist after a successful run")

	_, statErr = os.Stat(ws.Dir())
	assert.True(t, os.IsNotExist(statErr), "workspace should be cleaned up after mux")
}

func TestRun_SkipsWhenOutputExists(t *testing.T) {
	root := t.TempDir()
	episode := model.EpisodeRef{Show: model.ShowRef{Title: "Demo Show"}, Number: 1}
	ws := model.EpisodeWorkspace{Root: root, Ref: episode}
	require.NoError(t, os.MkdirAll(filepath.Dir(ws.OutputPath()), 0o750))
	require.NoError(t, os.WriteFile(ws.OutputPath(), []byte("already here"), 0o644))

	client, err := fetch.New(fetch.Config{})
	require.NoError(t, err)

	job := model.Job{Episode: episode, Workspace: ws}
	err = Run(t.Context(), client, job, Config{})
	require.NoError(t, err, "an existing output should short-circuit without needing network access")
}
