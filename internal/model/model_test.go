package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeFilename(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{name: "strips disallowed characters", input: `My:Show/Name?`, expected: "MyShowName"},
		{name: "strips leading dots", input: "...hidden show", expected: "hidden show"},
		{name: "trims trailing whitespace", input: "Show Title   ", expected: "Show Title"},
		{name: "keeps parentheses and dashes", input: "Show (2024) - Part_1", expected: "Show (2024) - Part_1"},
		{name: "strips control characters", input: "Show\x00Title", expected: "ShowTitle"},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.expected, SanitizeFilename(tc.input))
		})
	}
}

func TestSegmentPlan_SegmentIV(t *testing.T) {
	t.Parallel()

	plan := SegmentPlan{MediaSequence: 5}

	iv0 := plan.SegmentIV(0)
	iv1 := plan.SegmentIV(1)

	assert.Equal(t, [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 5}, iv0)
	assert.Equal(t, [16]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 6}, iv1)
	assert.NotEqual(t, iv0, iv1)
}

func TestSegmentPlan_SegmentIV_Overflow(t *testing.T) {
	t.Parallel()

	// Near the top of int64 range, the uint64 addition must not wrap.
	plan := SegmentPlan{MediaSequence: int64(1<<63 - 3)}
	iv := plan.SegmentIV(2)

	expected := uint64(1<<63-3) + 2
	var want [16]byte
	for i := 0; i < 8; i++ {
		want[15-i] = byte(expected >> (8 * i))
	}
	assert.Equal(t, want, iv)
}

func TestSegmentPlan_Validate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		plan    SegmentPlan
		wantErr bool
	}{
		{name: "valid plan", plan: SegmentPlan{Segments: []string{"a.ts"}, KeyURI: "key.bin"}, wantErr: false},
		{name: "no segments", plan: SegmentPlan{KeyURI: "key.bin"}, wantErr: true},
		{name: "no key uri", plan: SegmentPlan{Segments: []string{"a.ts"}}, wantErr: true},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.plan.Validate()
			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestEpisodeWorkspace_Paths(t *testing.T) {
	t.Parallel()

	ws := EpisodeWorkspace{
		Root: "/downloads",
		Ref: EpisodeRef{
			Show:   ShowRef{ID: "abc", Title: "Example: Show"},
			Number: 3,
		},
	}

	assert.Equal(t, "/downloads/Example Show/3", ws.Dir())
	assert.Equal(t, "/downloads/Example Show/3/playlist.m3u8", ws.PlaylistPath())
	assert.Equal(t, "/downloads/Example Show/3/file.list", ws.FileListPath())
	assert.Equal(t, "/downloads/Example Show/Example Show Episode 3.mp4", ws.OutputPath())
}

func TestEpisodeWorkspace_SegmentPath_StripsQuery(t *testing.T) {
	t.Parallel()

	ws := EpisodeWorkspace{Root: "/d", Ref: EpisodeRef{Show: ShowRef{Title: "S"}, Number: 1}}
	path := ws.SegmentPath("https://cdn.example.com/seg/001.ts?token=abc")
	assert.Equal(t, "/d/S/1/001.ts", path)
}

func TestStreamChoice_IsBest(t *testing.T) {
	t.Parallel()

	assert.True(t, StreamChoice{Quality: BestQuality}.IsBest())
	assert.False(t, StreamChoice{Quality: 1080}.IsBest())
}

func TestProgressUpdate_MBPerSecond(t *testing.T) {
	t.Parallel()

	u := ProgressUpdate{BytesSinceStart: 2 * 1024 * 1024, ElapsedSeconds: 2}
	assert.InDelta(t, 1.0, u.MBPerSecond(), 0.0001)

	zero := ProgressUpdate{BytesSinceStart: 100, ElapsedSeconds: 0}
	assert.Equal(t, 0.0, zero.MBPerSecond())
}
