package main

import (
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	stageStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#8BE9FD"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))
)

const refreshEvery = 100 * time.Millisecond

type tickMsg time.Time
type stageMsg string
type doneMsg struct{ err error }

// loadModel renders generation progress. Workers only touch the counter; the
// model polls it on every tick.
type loadModel struct {
	total    int
	counter  *atomic.Int64
	stage    string
	spinner  spinner.Model
	progress progress.Model

	finished    bool
	interrupted bool
	err         error
}

func newLoadModel(total int, counter *atomic.Int64) loadModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF79C6"))

	return loadModel{
		total:    total,
		counter:  counter,
		stage:    "Generating routers",
		spinner:  s,
		progress: progress.New(progress.WithDefaultGradient()),
	}
}

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m loadModel) percent() float64 {
	if m.total <= 0 {
		return 1
	}
	return min(1, float64(m.counter.Load())/float64(m.total))
}

func (m loadModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, tick())
}

func (m loadModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.progress.Width = min(msg.Width-10, 80)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.interrupted = true
			return m, tea.Quit
		}

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		progressModel, cmd := m.progress.Update(msg)
		m.progress = progressModel.(progress.Model)
		return m, cmd

	case tickMsg:
		if m.finished {
			return m, nil
		}
		return m, tea.Batch(m.progress.SetPercent(m.percent()), tick())

	case stageMsg:
		m.stage = string(msg)
		return m, nil

	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m loadModel) View() string {
	count := dimStyle.Render(fmt.Sprintf("%d/%d routers", m.counter.Load(), m.total))
	if m.finished {
		return fmt.Sprintf("\n %s %s\n\n", stageStyle.Render("Done"), count)
	}
	return fmt.Sprintf("\n %s %s\n\n %s\n %s\n\n",
		m.spinner.View(), stageStyle.Render(m.stage), m.progress.View(), count)
}

// logProgress prints the counter every interval until stop is called. It is
// the output used when stdout is not a terminal.
func logProgress(counter *atomic.Int64, total int, interval time.Duration) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				n := counter.Load()
				log.Printf("Generated %d/%d routers (%.0f%%)\n", n, total, 100*float64(n)/float64(max(total, 1)))
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}
