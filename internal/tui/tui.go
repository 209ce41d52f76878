// Package tui shows scan progress in an interactive terminal view.
package tui

import (
	"context"

	"codesig/internal/scan"

	tea "github.com/charmbracelet/bubbletea"
)

// Job runs a scan and reports progress through the supplied callback.
type Job func(ctx context.Context, progress scan.ProgressFunc) (*scan.Run, error)

// programRef is an indirect pointer to the tea.Program so background goroutines
// can send messages. It must be set after tea.NewProgram returns but before Run.
type programRef struct {
	p *tea.Program
}

func (r *programRef) send(msg tea.Msg) {
	if r != nil && r.p != nil {
		r.p.Send(msg)
	}
}

// Model is the top-level Bubble Tea model.
type Model struct {
	title    string
	ctx      context.Context
	cancel   context.CancelFunc
	job      Job
	program  *programRef
	progress progressModel
	width    int
	height   int
}

// New creates a model that runs job when the program starts.
func New(ctx context.Context, title string, job Job) Model {
	ctx, cancel := context.WithCancel(ctx)
	return Model{
		title:    title,
		ctx:      ctx,
		cancel:   cancel,
		job:      job,
		program:  &programRef{},
		progress: newProgressModel(),
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.progress.spinner.Tick, m.runJob())
}

func (m Model) runJob() tea.Cmd {
	ref := m.program
	return func() tea.Msg {
		run, err := m.job(m.ctx, func(phase string, done, total int) {
			ref.send(progressMsg{phase: phase, done: done, total: total})
		})
		return doneMsg{run: run, err: err}
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, tea.Quit
		case "enter":
			if m.progress.finished {
				return m, tea.Quit
			}
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.progress, cmd = m.progress.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	return m.progress.View(m.title)
}

// Result returns what the job produced, once it has finished.
func (m Model) Result() (*scan.Run, error) {
	if !m.progress.finished {
		return nil, context.Canceled
	}
	return m.progress.run, m.progress.err
}

// Run starts the program and blocks until the user exits. A user who quits
// before the scan finishes gets context.Canceled.
func Run(ctx context.Context, title string, job Job) (*scan.Run, error) {
	model := New(ctx, title, job)
	defer model.cancel()
	p := tea.NewProgram(model, tea.WithAltScreen())
	model.program.p = p
	final, err := p.Run()
	if err != nil {
		return nil, err
	}
	return final.(Model).Result()
}
