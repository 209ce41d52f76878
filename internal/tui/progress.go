package tui

import (
	"fmt"
	"strings"

	"codesig/internal/scan"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

type progressModel struct {
	spinner spinner.Model
	phase   string
	done    int
	total   int

	finished bool
	run      *scan.Run
	err      error
}

func newProgressModel() progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = selectedStyle
	return progressModel{
		spinner: sp,
		phase:   "Starting...",
	}
}

// progressMsg is sent by the scan goroutine as work completes.
type progressMsg struct {
	phase string
	done  int
	total int
}

// doneMsg is sent once the job returns.
type doneMsg struct {
	run *scan.Run
	err error
}

func (m progressModel) Update(msg tea.Msg) (progressModel, tea.Cmd) {
	switch msg := msg.(type) {
	case doneMsg:
		m.finished = true
		m.run = msg.run
		m.err = msg.err
		return m, nil
	case progressMsg:
		m.phase = msg.phase
		m.done = msg.done
		m.total = msg.total
		return m, nil
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View(title string) string {
	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(titleStyle.Render("  "+title) + "\n\n")

	if m.finished {
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("  Error: %v", m.err)) + "\n\n")
			b.WriteString(dimStyle.Render("  Press q to quit.") + "\n")
			return b.String()
		}
		b.WriteString(successStyle.Render("  ✓ Scan complete") + "\n\n")
		if m.run != nil {
			s := m.run.Summary
			fmt.Fprintf(&b, "  Files: %d scored, %d rejected, %d without signal\n",
				s.Total, m.run.Stats.Rejected, m.run.Stats.NoSignal)
			if s.Flagged > 0 {
				b.WriteString(warnStyle.Render(fmt.Sprintf("  Malicious: %d", s.Flagged)) + "\n")
				for _, f := range s.FlaggedFiles() {
					b.WriteString(warnStyle.Render("    "+f) + "\n")
				}
			} else {
				b.WriteString(successStyle.Render("  Malicious: 0") + "\n")
			}
			fmt.Fprintf(&b, "  Safe: %d\n", s.Safe)
		}
		b.WriteString("\n")
		b.WriteString(dimStyle.Render("  Press Enter or q to exit") + "\n")
		return b.String()
	}

	fmt.Fprintf(&b, "  %s %s\n", m.spinner.View(), m.phase)
	if m.total > 0 {
		fmt.Fprintf(&b, "  %d / %d\n", m.done, m.total)
	}
	b.WriteString("\n")
	b.WriteString(subtitleStyle.Render("  Embedding is slow on large repositories...") + "\n")
	return b.String()
}
