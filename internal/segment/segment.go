// Package segment implements the segment download and decrypt
// pipeline: fetch the AES key once, fan out a bounded worker pool over
// the plan's segments, decrypt each with the per-segment IV, and write
// every decrypted segment atomically to its place in the episode
// workspace.
package segment

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kurogo/kurogo/internal/fetch"
	"github.com/kurogo/kurogo/internal/kind"
	"github.com/kurogo/kurogo/internal/logging"
	"github.com/kurogo/kurogo/internal/model"
)

// Config tunes the pipeline for one episode.
type Config struct {
	// Concurrency is the number of segment workers. Defaults to 4.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	return c
}

type job struct {
	index int
	url   string
}

type result struct {
	index int
	err   error
}

// Run downloads and decrypts every segment in plan that is not already
// present on disk, writing decrypted bytes to ws.SegmentPath(url).
// Already-downloaded segments (from a prior interrupted run) are
// skipped, making Run resumable and idempotent. progress, if non-nil,
// is invoked after every segment completes.
func Run(ctx context.Context, client *fetch.Client, plan model.SegmentPlan, ws model.EpisodeWorkspace, cfg Config, progress model.ProgressFunc) error {
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(ws.Dir(), 0o750); err != nil {
		return err
	}

	key, err := fetchKey(ctx, client, plan.KeyURI)
	if err != nil {
		return err
	}

	var pending []job
	for i, segURL := range plan.Segments {
		path := ws.SegmentPath(segURL)
		if fileExists(path) {
			continue
		}
		pending = append(pending, job{index: i, url: segURL})
	}

	total := len(plan.Segments)
	done := total - len(pending)
	if progress != nil {
		progress(model.ProgressUpdate{SegmentsDone: done, SegmentsTotal: total})
	}
	if len(pending) == 0 {
		return nil
	}

	jobs := make(chan job, len(pending))
	results := make(chan result, len(pending))

	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				select {
				case <-ctx.Done():
					results <- result{index: j.index, err: kind.New(kind.Cancelled, "", 0, "segment", ctx.Err())}
					continue
				default:
				}
				err := fetchDecryptWrite(ctx, client, j.url, ws, plan, j.index, key)
				results <- result{index: j.index, err: err}
			}
		}()
	}
	for _, j := range pending {
		jobs <- j
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	start := time.Now()
	var bytesTotal int64
	var failed int
	var firstErr error
	for r := range results {
		done++
		if r.err != nil {
			failed++
			if firstErr == nil {
				firstErr = r.err
			}
			logging.Logger.Warn("segment failed", "index", r.index, "error", r.err)
		} else {
			if info, statErr := os.Stat(ws.SegmentPath(plan.Segments[r.index])); statErr == nil {
				bytesTotal += info.Size()
			}
		}
		if progress != nil {
			progress(model.ProgressUpdate{
				SegmentsDone:    done,
				SegmentsTotal:   total,
				BytesSinceStart: bytesTotal,
				ElapsedSeconds:  time.Since(start).Seconds(),
			})
		}
	}

	if failed > 0 {
		if kind.IsCancelled(firstErr) {
			return firstErr
		}
		return kind.Wrap(kind.PartialFailure, "", 0, "segment", firstErr,
			fmt.Sprintf("%d/%d segments failed", failed, total))
	}
	return nil
}

func fetchKey(ctx context.Context, client *fetch.Client, keyURI string) ([]byte, error) {
	key, err := client.Get(ctx, keyURI, "")
	if err != nil {
		return nil, kind.Wrap(kind.BadKey, "", 0, "segment", err, "fetch key")
	}
	if len(key) != 16 {
		return nil, kind.New(kind.BadKey, "", 0, "segment", fmt.Errorf("key length %d, want 16", len(key)))
	}
	return key, nil
}

func fetchDecryptWrite(ctx context.Context, client *fetch.Client, segURL string, ws model.EpisodeWorkspace, plan model.SegmentPlan, index int, key []byte) error {
	raw, err := client.Get(ctx, segURL, "")
	if err != nil {
		return kind.New(kind.SegmentFailed, "", 0, "segment", err)
	}

	plaintext, err := decrypt(raw, key, plan.SegmentIV(index))
	if err != nil {
		return kind.New(kind.SegmentFailed, "", 0, "segment", err)
	}

	return atomicWrite(ws.SegmentPath(segURL), plaintext)
}

// decrypt performs AES-128-CBC decryption with the pipeline's
// bug-compatible handling of ciphertext that isn't a multiple of the
// block size: it is zero-padded up to the next block boundary (logged
// as a warning) rather than treated as an error, matching real-world
// CDNs that occasionally truncate a segment's trailing bytes.
func decrypt(ciphertext, key []byte, iv [16]byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	if rem := len(ciphertext) % block.BlockSize(); rem != 0 {
		pad := block.BlockSize() - rem
		logging.Logger.Warn("segment not block-aligned, zero-padding", "extra_bytes", pad)
		ciphertext = append(ciphertext, make([]byte, pad)...)
	}
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("empty segment body")
	}

	mode := cipher.NewCBCDecrypter(block, iv[:])
	plaintext := make([]byte, len(ciphertext))
	mode.CryptBlocks(plaintext, ciphertext)

	return plaintext, nil
}

// atomicWrite writes data to a temp file in the same directory as path
// and renames it into place, so a crash or cancellation never leaves a
// torn segment file on disk.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".segment-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Size() > 0
}
