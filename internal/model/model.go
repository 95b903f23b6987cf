// Package model holds the data types shared across the episode
// acquisition pipeline: show/episode references, stream selection,
// the parsed segment plan, and the per-episode workspace layout.
package model

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ShowRef is the external, caller-supplied reference to a catalogued
// show. It is constructed by the out-of-scope catalog/search layer and
// is immutable once built.
type ShowRef struct {
	ID    string // opaque site-assigned show identifier
	Title string
}

// EpisodeRef identifies a single episode within a show.
type EpisodeRef struct {
	Show   ShowRef
	Number int    // positive episode number
	ID     string // opaque site-assigned episode identifier
}

// BestQuality is the sentinel StreamChoice.Quality value meaning
// "pick the highest available resolution".
const BestQuality = 0

// StreamChoice is the caller's desired stream selection.
type StreamChoice struct {
	// Quality is a target resolution height, or BestQuality (0) to mean
	// "highest available".
	Quality int
	// Audio is a short language tag, e.g. "eng", "jpn". Empty means no
	// audio preference.
	Audio string
}

// IsBest reports whether the choice requests the highest quality
// available rather than a specific resolution ceiling.
func (c StreamChoice) IsBest() bool {
	return c.Quality == BestQuality
}

// StreamCandidate is one row enumerated from a play page: a concrete
// resolution/audio/codec combination with its own resolved URL.
type StreamCandidate struct {
	Resolution int
	Audio      string
	URL        string
	AV1        bool
}

// SegmentPlan is the ordered output of the playlist parser: every
// segment URL in playback order, the media sequence number that seeds
// IV derivation, the key URI, and the total declared duration.
type SegmentPlan struct {
	Segments        []string // absolute segment URLs, in playlist order
	MediaSequence   int64
	KeyURI          string
	DurationSeconds float64
}

// SegmentIV returns the big-endian 16-byte IV for the segment at the
// given zero-based index in the plan's original ordering. The addition
// is performed in uint64 arithmetic so it cannot overflow within the
// IV's 128 bits for any realistic media sequence.
func (p SegmentPlan) SegmentIV(index int) [16]byte {
	var iv [16]byte
	seq := uint64(p.MediaSequence) + uint64(index)
	for i := 0; i < 8; i++ {
		iv[15-i] = byte(seq >> (8 * i))
	}
	return iv
}

// Validate checks the invariants a parsed SegmentPlan must satisfy.
func (p SegmentPlan) Validate() error {
	if len(p.Segments) == 0 {
		return fmt.Errorf("segment plan has no segments")
	}
	if p.KeyURI == "" {
		return fmt.Errorf("segment plan has no key URI")
	}
	return nil
}

var sanitizeDisallowed = regexp.MustCompile(`[^A-Za-z0-9 .\-_()]`)

// SanitizeFilename strips the characters Windows/POSIX disallow in
// paths and control characters, strips leading dots, collapses to
// [A-Za-z0-9 .\-_()], and trims trailing whitespace.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			continue
		}
		if strings.ContainsRune(`<>:/\|?*"`, r) {
			continue
		}
		b.WriteRune(r)
	}
	cleaned := strings.TrimLeft(b.String(), ".")
	cleaned = sanitizeDisallowed.ReplaceAllString(cleaned, "")
	return strings.TrimRight(cleaned, " \t")
}

// EpisodeWorkspace is the per-episode working directory layout: a
// directory under root/<show>/<episode> holding the playlist, decrypted
// segments, and generated concat manifest, plus the final muxed output
// path that sits one level up.
type EpisodeWorkspace struct {
	Root string // download root directory
	Ref  EpisodeRef
}

func (w EpisodeWorkspace) sanitizedShow() string {
	return SanitizeFilename(w.Ref.Show.Title)
}

// Dir is the per-episode working directory.
func (w EpisodeWorkspace) Dir() string {
	return filepath.Join(w.Root, w.sanitizedShow(), fmt.Sprintf("%d", w.Ref.Number))
}

// PlaylistPath is where the fetched media playlist body is persisted.
func (w EpisodeWorkspace) PlaylistPath() string {
	return filepath.Join(w.Dir(), "playlist.m3u8")
}

// FileListPath is the generated concat manifest consumed by the muxer.
func (w EpisodeWorkspace) FileListPath() string {
	return filepath.Join(w.Dir(), "file.list")
}

// SegmentPath is the on-disk path for one decrypted segment, named
// after the basename of its original URL.
func (w EpisodeWorkspace) SegmentPath(segmentURL string) string {
	return filepath.Join(w.Dir(), SegmentBasename(segmentURL))
}

// SegmentBasename extracts the path component of a segment URL,
// stripping any query string.
func SegmentBasename(segmentURL string) string {
	noQuery := segmentURL
	if i := strings.IndexByte(noQuery, '?'); i >= 0 {
		noQuery = noQuery[:i]
	}
	return filepath.Base(noQuery)
}

// OutputPath is the final muxed MP4, named
// "<sanitized show> Episode <n>.mp4" and placed next to the show's
// episode directories rather than inside the (later deleted) workspace.
func (w EpisodeWorkspace) OutputPath() string {
	name := fmt.Sprintf("%s Episode %d.mp4", w.sanitizedShow(), w.Ref.Number)
	return filepath.Join(w.Root, w.sanitizedShow(), name)
}

// Job is the unit of work the scheduler hands to an orchestrator: an
// episode reference, the caller's stream choice, and the workspace it
// will materialize into. Progress, if non-nil, receives periodic
// segment-pipeline progress updates for this job alone.
type Job struct {
	Episode   EpisodeRef
	Choice    StreamChoice
	Workspace EpisodeWorkspace
	Progress  ProgressFunc
}

// ProgressUpdate is one snapshot of segment-pipeline progress, emitted
// after every segment completes.
type ProgressUpdate struct {
	SegmentsDone   int
	SegmentsTotal  int
	BytesSinceStart int64
	ElapsedSeconds  float64
}

// MBPerSecond computes the average throughput since the pipeline
// started: BytesSinceStart over ElapsedSeconds. It is not a rate over
// the most recent segments only. Returns 0 if elapsed time is not yet
// measurable.
func (p ProgressUpdate) MBPerSecond() float64 {
	if p.ElapsedSeconds <= 0 {
		return 0
	}
	const mb = 1024 * 1024
	return float64(p.BytesSinceStart) / mb / p.ElapsedSeconds
}

// ProgressFunc receives segment-pipeline progress updates.
type ProgressFunc func(ProgressUpdate)

// MuxProgressFunc receives mux-stage percent-complete updates in [0,100].
type MuxProgressFunc func(percent float64)
