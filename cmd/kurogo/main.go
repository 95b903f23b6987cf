// Command kurogo is a thin, exercisable driver over the acquisition
// core: it reads a YAML job list, builds the core's model types, and
// runs the scheduler, rendering aggregate batch progress with a
// bubbletea program.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kurogo/kurogo/internal/config"
	"github.com/kurogo/kurogo/internal/fetch"
	"github.com/kurogo/kurogo/internal/logging"
	"github.com/kurogo/kurogo/internal/model"
	"github.com/kurogo/kurogo/internal/orchestrator"
	"github.com/kurogo/kurogo/internal/scheduler"
)

// jobSpec is one entry of the YAML job list consumed by `kurogo run`.
type jobSpec struct {
	Show     string `yaml:"show"`
	Episodes []int  `yaml:"episodes"`
	Quality  string `yaml:"quality"` // "best" or a resolution like "1080"
	Audio    string `yaml:"audio"`
	PlayURL  string `yaml:"play_url"` // template with %d for episode number
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath, jobsPath string

	root := &cobra.Command{
		Use:   "kurogo",
		Short: "Batch HLS episode downloader",
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a batch of download jobs from a YAML job list",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmd.Context(), configPath, jobsPath)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to config file")
	runCmd.Flags().StringVar(&jobsPath, "jobs", "jobs.yaml", "path to YAML job list")

	root.AddCommand(runCmd)
	return root
}

func runBatch(ctx context.Context, configPath, jobsPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Init(cfg.Debug)

	specs, err := loadJobSpecs(jobsPath)
	if err != nil {
		return fmt.Errorf("load job list: %w", err)
	}

	client, err := fetch.New(fetch.Config{
		Timeout:            cfg.FetchTimeout,
		InsecureSkipVerify: cfg.InsecureTLS,
		MaxConnsTotal:      cfg.ConcurrentEpisodes * cfg.SegmentConcurrency,
	})
	if err != nil {
		return fmt.Errorf("build http client: %w", err)
	}

	jobs := buildJobs(specs, cfg)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	prog := newProgressModel(len(jobs))
	program := tea.NewProgram(prog)

	var results []scheduler.Result
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		results = scheduler.Run(ctx, client, jobs, scheduler.Config{
			ConcurrentEpisodes: cfg.ConcurrentEpisodes,
			Orchestrator: orchestrator.Config{
				SegmentConcurrency: cfg.SegmentConcurrency,
				MuxerPath:          cfg.MuxerPath,
			},
		}, func(r scheduler.Result) {
			program.Send(jobStatusMsg(r))
		})
		program.Send(batchCompleteMsg{})
	}()

	if _, err := program.Run(); err != nil {
		logging.Logger.Warn("progress display error", "error", err)
	}
	wg.Wait()

	failed := 0
	for _, r := range results {
		if r.State == scheduler.Failed {
			failed++
			logging.Logger.Error("job failed", "show", r.Job.Episode.Show.Title, "episode", r.Job.Episode.Number, "error", r.Err)
		}
	}
	if failed > 0 {
		logging.Logger.Warn("batch finished with failed episodes", "failed", failed, "total", len(results))
	}
	return nil
}

func loadJobSpecs(path string) ([]jobSpec, error) {
	body, err := os.ReadFile(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, err
	}
	var specs []jobSpec
	if err := yaml.Unmarshal(body, &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

func buildJobs(specs []jobSpec, cfg *config.Config) []model.Job {
	var jobs []model.Job
	for _, spec := range specs {
		show := model.ShowRef{Title: spec.Show}
		choice := parseQuality(spec.Quality, spec.Audio)
		for _, epNum := range spec.Episodes {
			episode := model.EpisodeRef{Show: show, Number: epNum}
			if spec.PlayURL != "" {
				episode.ID = fmt.Sprintf(spec.PlayURL, epNum)
			}
			ws := model.EpisodeWorkspace{Root: cfg.DownloadRoot, Ref: episode}
			jobs = append(jobs, model.Job{Episode: episode, Choice: choice, Workspace: ws})
		}
	}
	return jobs
}

func parseQuality(quality, audio string) model.StreamChoice {
	if quality == "" || quality == "best" {
		return model.StreamChoice{Quality: model.BestQuality, Audio: audio}
	}
	var height int
	_, _ = fmt.Sscanf(quality, "%d", &height)
	return model.StreamChoice{Quality: height, Audio: audio}
}
