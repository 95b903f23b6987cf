// Package scheduler is the job fan-out layer: it runs a batch of
// episode jobs across a bounded pool of concurrent orchestrators,
// tracks each job's state machine, and propagates cancellation to every
// in-flight job on the first SIGINT/SIGTERM.
package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/kurogo/kurogo/internal/fetch"
	"github.com/kurogo/kurogo/internal/kind"
	"github.com/kurogo/kurogo/internal/logging"
	"github.com/kurogo/kurogo/internal/model"
	"github.com/kurogo/kurogo/internal/orchestrator"
)

// State is a job's position in its lifecycle.
type State int

const (
	Queued State = iota
	Resolving
	Downloading
	Muxing
	Done
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Queued:
		return "queued"
	case Resolving:
		return "resolving"
	case Downloading:
		return "downloading"
	case Muxing:
		return "muxing"
	case Done:
		return "done"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is one job's outcome, keyed by its trace ID.
type Result struct {
	TraceID string
	Job     model.Job
	State   State
	Err     error
}

// Config tunes the batch run.
type Config struct {
	// ConcurrentEpisodes bounds how many orchestrators run at once.
	// Defaults to 2.
	ConcurrentEpisodes int
	Orchestrator       orchestrator.Config
}

func (c Config) withDefaults() Config {
	if c.ConcurrentEpisodes <= 0 {
		c.ConcurrentEpisodes = 2
	}
	return c
}

// StatusFunc is invoked on every job state transition, letting a CLI
// render aggregate progress without polling.
type StatusFunc func(Result)

// Run executes jobs with at most cfg.ConcurrentEpisodes running at
// once, returning one Result per job in submission order. Cancelling
// ctx stops scheduling new jobs and marks any job that had not yet
// started as Cancelled; jobs already in flight receive the same ctx, so
// their pending HTTP requests and muxer process are cancelled and their
// segment workers take no new segments.
func Run(ctx context.Context, client *fetch.Client, jobs []model.Job, cfg Config, onStatus StatusFunc) []Result {
	cfg = cfg.withDefaults()

	results := make([]Result, len(jobs))
	sem := make(chan struct{}, cfg.ConcurrentEpisodes)
	var wg sync.WaitGroup

	for i, job := range jobs {
		traceID := uuid.NewString()
		results[i] = Result{TraceID: traceID, Job: job, State: Queued}

		select {
		case <-ctx.Done():
			results[i].State = Cancelled
			results[i].Err = kind.New(kind.Cancelled, job.Episode.Show.Title, job.Episode.Number, "scheduler", ctx.Err())
			emit(onStatus, results[i])
			continue
		default:
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(idx int, job model.Job, traceID string) {
			defer wg.Done()
			defer func() { <-sem }()

			log := logging.With("job", traceID, "show", job.Episode.Show.Title, "episode", job.Episode.Number)

			results[idx].State = Resolving
			emit(onStatus, results[idx])
			log.Info("resolving stream")

			results[idx].State = Downloading
			emit(onStatus, results[idx])

			err := orchestrator.Run(ctx, client, job, cfg.Orchestrator)
			switch {
			case err == nil:
				results[idx].State = Done
			case kind.IsCancelled(err):
				results[idx].State = Cancelled
				results[idx].Err = err
			default:
				results[idx].State = Failed
				results[idx].Err = err
				log.Error("job failed", "error", err)
			}
			emit(onStatus, results[idx])
		}(i, job, traceID)
	}

	wg.Wait()
	return results
}

func emit(fn StatusFunc, r Result) {
	if fn != nil {
		fn(r)
	}
}
