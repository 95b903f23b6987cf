package main

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/kurogo/kurogo/internal/scheduler"
)

type jobStatusMsg scheduler.Result

type batchCompleteMsg struct{}

// progressModel renders aggregate batch progress: a progress.Model bar,
// a mutex-guarded counter, and a finished flag that triggers tea.Quit
// once every job has reported a terminal state.
type progressModel struct {
	bar   progress.Model
	total int
	done  int
	finished bool
	mu    sync.Mutex
}

func newProgressModel(total int) *progressModel {
	return &progressModel{
		bar:   progress.New(progress.WithDefaultGradient()),
		total: total,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return nil
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case jobStatusMsg:
		m.mu.Lock()
		switch msg.State {
		case scheduler.Done, scheduler.Failed, scheduler.Cancelled:
			m.done++
		}
		m.mu.Unlock()
	case batchCompleteMsg:
		m.mu.Lock()
		m.finished = true
		m.mu.Unlock()
		return m, tea.Quit
	case progress.FrameMsg:
		barModel, cmd := m.bar.Update(msg)
		m.bar = barModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	m.mu.Lock()
	done, total, finished := m.done, m.total, m.finished
	m.mu.Unlock()

	percent := 0.0
	if total > 0 {
		percent = float64(done) / float64(total)
	}
	if finished {
		return fmt.Sprintf("\n%s\nEpisodes: %d/%d (complete)\n", m.bar.ViewAs(percent), done, total)
	}
	return fmt.Sprintf("\n%s\nEpisodes: %d/%d\n", m.bar.ViewAs(percent), done, total)
}
