// Package mux drives the external muxer binary that concatenates an
// episode's decrypted segments into a single MP4: exec.CommandContext
// with a concat/stream-copy command, combined stdout/stderr piped for
// debug, and progress parsed from stdout's `time=HH:MM:SS.CC` lines the
// way ffmpeg reports it.
package mux

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/kurogo/kurogo/internal/kind"
	"github.com/kurogo/kurogo/internal/logging"
	"github.com/kurogo/kurogo/internal/model"
)

// DefaultBinary is the muxer executable name resolved from PATH when
// Config.BinaryPath is empty.
const DefaultBinary = "ffmpeg"

// Config selects the muxer binary.
type Config struct {
	BinaryPath string // absolute path or PATH-resolved name; defaults to DefaultBinary
}

func (c Config) binary() string {
	if c.BinaryPath != "" {
		return c.BinaryPath
	}
	return DefaultBinary
}

var timeRe = regexp.MustCompile(`time=(\d{2}):(\d{2}):(\d{2})\.(\d{2})`)

// Mux writes plan's segments, in order, into ws's generated concat
// manifest, then invokes the muxer to produce ws.OutputPath(). On
// success the episode workspace directory is removed; on failure it is
// retained for inspection and the error is classified MuxFailed.
func Mux(ctx context.Context, plan model.SegmentPlan, ws model.EpisodeWorkspace, cfg Config, onProgress model.MuxProgressFunc) error {
	if err := writeFileList(plan, ws); err != nil {
		return err
	}

	outDir := filepath.Dir(ws.OutputPath())
	if err := os.MkdirAll(outDir, 0o750); err != nil {
		return err
	}

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", ws.FileListPath(),
		"-c", "copy",
		"-y",
		ws.OutputPath(),
	}

	// #nosec G204 -- binary path is operator-configured, not user input
	cmd := exec.CommandContext(ctx, cfg.binary(), args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return kind.New(kind.MuxFailed, "", 0, "mux", err)
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return kind.New(kind.MuxFailed, "", 0, "mux", err)
	}

	go watchProgress(stdout, plan.DurationSeconds, onProgress)

	if err := cmd.Wait(); err != nil {
		return kind.New(kind.MuxFailed, "", 0, "mux", fmt.Errorf("%s exited: %w", cfg.binary(), err))
	}

	if err := os.RemoveAll(ws.Dir()); err != nil {
		logging.Logger.Warn("failed to clean up episode workspace", "dir", ws.Dir(), "error", err)
	}
	return nil
}

func writeFileList(plan model.SegmentPlan, ws model.EpisodeWorkspace) error {
	f, err := os.Create(ws.FileListPath())
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w := bufio.NewWriter(f)
	for _, segURL := range plan.Segments {
		if _, err := fmt.Fprintf(w, "file '%s'\n", ws.SegmentPath(segURL)); err != nil {
			return err
		}
	}
	return w.Flush()
}

func watchProgress(r io.Reader, totalSeconds float64, onProgress model.MuxProgressFunc) {
	if onProgress == nil {
		return
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 8*1024), 64*1024)
	for scanner.Scan() {
		match := timeRe.FindStringSubmatch(scanner.Text())
		if match == nil {
			continue
		}
		h, _ := strconv.Atoi(match[1])
		m, _ := strconv.Atoi(match[2])
		s, _ := strconv.Atoi(match[3])
		cs, _ := strconv.Atoi(match[4])
		elapsed := float64(h*3600+m*60+s) + float64(cs)/100
		if totalSeconds > 0 {
			onProgress(math.Min(100, elapsed/totalSeconds*100))
		}
	}
}
