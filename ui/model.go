// Package ui renders the live progress of a pipeline run in the terminal.
package ui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/impromptu-ai/circuitflow"
	"github.com/impromptu-ai/circuitflow/event"
)

// Model is a bubbletea model that subscribes to a run's snapshot channel and
// redraws the stage list on every update.
type Model struct {
	run      *circuitflow.Run
	snapshot circuitflow.Snapshot
	spinner  spinner.Model
	finished bool
	err      error
	quitting bool
}

func NewModel(run *circuitflow.Run) Model {
	s := spinner.New()
	s.Spinner = spinner.MiniDot
	s.Style = lipgloss.NewStyle().Foreground(yellow)
	return Model{
		run:     run,
		spinner: s,
	}
}

type snapshotMsg circuitflow.Snapshot

type runDoneMsg struct{ err error }

func (m Model) listen() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.run.Next()
		if !ok {
			return runDoneMsg{err: m.run.Wait()}
		}
		return snapshotMsg(snap)
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listen())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.run.Cancel()
			m.quitting = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case snapshotMsg:
		m.snapshot = circuitflow.Snapshot(msg)
		return m, m.listen()
	case runDoneMsg:
		m.finished = true
		m.err = msg.err
		m.snapshot = m.run.Snapshot()
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return "Cancelled.\n"
	}

	s := "\n " + titleStyle.Render("Impromptu Pipeline") + "\n\n"

	for _, st := range m.snapshot.Stages {
		icon, color := statusGlyph(st.Status, m.spinner)
		name := stageStyle
		if st.ID == m.snapshot.Focused {
			name = focusedStyle
		}
		line := fmt.Sprintf(" %s %s", lipgloss.NewStyle().Foreground(color).Render(icon), name.Render(st.Name))
		if st.Status.IsTerminal() && st.DurationMS > 0 {
			line += footerStyle.Render(fmt.Sprintf("  %s", formatMS(st.DurationMS)))
		}
		if st.TokenCost != nil && st.TokenCost.TotalTokens > 0 {
			line += footerStyle.Render(fmt.Sprintf("  %d tok / $%.4f", st.TokenCost.TotalTokens, st.TokenCost.EstimatedCost))
		}
		s += line + "\n"

		for _, sub := range st.Substages {
			icon, color := statusGlyph(sub.Status, m.spinner)
			s += fmt.Sprintf("   %s %s\n",
				lipgloss.NewStyle().Foreground(color).Render(icon),
				substageStyle.Render(sub.Name))
		}
	}

	s += "\n " + footerStyle.Render(fmt.Sprintf("%.0f%%  •  %d tokens  •  $%.4f",
		m.snapshot.Progress(), m.snapshot.TotalTokens(), m.snapshot.TotalCost()))

	switch {
	case m.finished && m.err != nil:
		s += "\n\n " + errorStyle.Render(fmt.Sprintf("run failed: %v", m.err)) + "\n"
	case m.finished:
		s += "\n\n " + footerStyle.Render(fmt.Sprintf("done in %s", m.snapshot.TotalDuration().Round(time.Millisecond))) + "\n"
	default:
		s += "\n\n " + footerStyle.Render("press 'q' to cancel") + "\n"
	}
	return s
}

func statusGlyph(status event.Status, sp spinner.Model) (string, lipgloss.Color) {
	switch {
	case status.IsSuccess():
		return "✔", green
	case status == event.StatusError:
		return "✖", red
	case status == event.StatusRunning:
		return sp.View(), yellow
	default:
		return "○", gray
	}
}

func formatMS(ms int64) string {
	return (time.Duration(ms) * time.Millisecond).Round(time.Millisecond).String()
}
