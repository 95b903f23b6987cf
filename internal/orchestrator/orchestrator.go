// Package orchestrator sequences one episode's acquisition end to end:
// resolve a playable stream, fetch and parse its playlist, download and
// decrypt its segments, then mux the result. It is the single-episode
// counterpart to internal/scheduler's batch fan-out.
package orchestrator

import (
	"context"
	"os"

	charmlog "github.com/charmbracelet/log"

	"github.com/kurogo/kurogo/internal/fetch"
	"github.com/kurogo/kurogo/internal/kind"
	"github.com/kurogo/kurogo/internal/logging"
	"github.com/kurogo/kurogo/internal/model"
	"github.com/kurogo/kurogo/internal/mux"
	"github.com/kurogo/kurogo/internal/playlist"
	"github.com/kurogo/kurogo/internal/resolve"
	"github.com/kurogo/kurogo/internal/segment"
)

// Config carries the per-episode tunables the orchestrator threads
// through to the segment pipeline and muxer.
type Config struct {
	SegmentConcurrency int
	MuxerPath          string
	PlayPageURL        func(model.EpisodeRef) string
}

// Run acquires job.Episode end to end. If the final output already
// exists it returns immediately (idempotent re-run). If the workspace
// already has a persisted playlist from a prior interrupted run, the
// resolve and playlist-fetch steps are skipped.
func Run(ctx context.Context, client *fetch.Client, job model.Job, cfg Config) error {
	show := job.Episode.Show.Title
	epNum := job.Episode.Number
	log := logging.With("show", show, "episode", epNum)

	if fileExists(job.Workspace.OutputPath()) {
		log.Info("output already exists, skipping")
		return nil
	}

	plan, err := loadOrResolvePlan(ctx, client, job, cfg, log)
	if err != nil {
		return wrapPhase(err, show, epNum, "resolve")
	}

	log.Info("downloading segments", "count", len(plan.Segments))
	if err := segment.Run(ctx, client, plan, job.Workspace, segment.Config{Concurrency: cfg.SegmentConcurrency}, job.Progress); err != nil {
		if kind.Of(err) == kind.PartialFailure {
			return wrapPhase(err, show, epNum, "segment")
		}
		if kind.IsCancelled(err) {
			return err
		}
		return wrapPhase(err, show, epNum, "segment")
	}

	log.Info("muxing episode")
	if err := mux.Mux(ctx, plan, job.Workspace, mux.Config{BinaryPath: cfg.MuxerPath}, nil); err != nil {
		return wrapPhase(err, show, epNum, "mux")
	}

	log.Info("episode complete", "output", job.Workspace.OutputPath())
	return nil
}

func loadOrResolvePlan(ctx context.Context, client *fetch.Client, job model.Job, cfg Config, log *charmlog.Logger) (model.SegmentPlan, error) {
	if body, err := os.ReadFile(job.Workspace.PlaylistPath()); err == nil {
		log.Debug("reusing persisted playlist from prior run")
		return playlist.Parse(body, job.Workspace.PlaylistPath())
	}

	playPageURL := job.Episode.ID
	if cfg.PlayPageURL != nil {
		playPageURL = cfg.PlayPageURL(job.Episode)
	}

	candidates, err := resolve.Candidates(ctx, client, playPageURL)
	if err != nil {
		return model.SegmentPlan{}, err
	}
	choice, err := resolve.Select(candidates, job.Choice)
	if err != nil {
		return model.SegmentPlan{}, err
	}

	// choice.URL is the obfuscated packer-script page, not the playlist
	// itself: unpack it to recover the actual .m3u8 URL before fetching.
	streamPage, err := client.Get(ctx, choice.URL, playPageURL)
	if err != nil {
		return model.SegmentPlan{}, err
	}
	script, err := resolve.FindPackerScript(streamPage)
	if err != nil {
		return model.SegmentPlan{}, err
	}
	playlistURL, err := resolve.UnpackPlaylistURL(ctx, script)
	if err != nil {
		return model.SegmentPlan{}, err
	}

	body, err := client.Get(ctx, playlistURL, choice.URL)
	if err != nil {
		return model.SegmentPlan{}, err
	}

	if err := os.MkdirAll(job.Workspace.Dir(), 0o750); err != nil {
		return model.SegmentPlan{}, err
	}
	if err := os.WriteFile(job.Workspace.PlaylistPath(), body, 0o640); err != nil {
		return model.SegmentPlan{}, err
	}

	return playlist.Parse(body, playlistURL)
}

func wrapPhase(err error, show string, episode int, phase string) error {
	if ke, ok := asKindError(err); ok {
		ke.Show = show
		ke.Episode = episode
		if ke.Phase == "" {
			ke.Phase = phase
		}
		return ke
	}
	return kind.New(kind.Unknown, show, episode, phase, err)
}

func asKindError(err error) (*kind.Error, bool) {
	type causer interface{ Unwrap() error }
	for e := err; e != nil; {
		if ke, ok := e.(*kind.Error); ok {
			return ke, true
		}
		c, ok := e.(causer)
		if !ok {
			return nil, false
		}
		e = c.Unwrap()
	}
	return nil, false
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
