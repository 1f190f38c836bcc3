// Package ui renders the terminal progress view of a stepping session.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
)

// Event is a progress report sent after every Continue batch.
type Event struct {
	// Steps counts the observed lane's steps; GlobalSteps counts
	// scheduler rounds.
	Steps       int
	GlobalSteps uint64
	Finished    int
	Lanes       int
	Err         error
}

type progressModel struct {
	title   string
	events  <-chan Event
	spinner spinner.Model
	prog    progress.Model
	last    Event
	width   int
	done    bool
}

type eventMsg Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders stepping
// progress until events is closed.
func NewProgressModel(title string, lanes int, events <-chan Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		last:    Event{Lanes: lanes},
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.last = Event(msg)
		return m, tea.Batch(m.prog.SetPercent(m.percent()), m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case progress.FrameMsg:
		pm, cmd := m.prog.Update(msg)
		m.prog = pm.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) percent() float64 {
	if m.last.Lanes <= 0 {
		return 0
	}
	return float64(m.last.Finished) / float64(m.last.Lanes)
}

func (m *progressModel) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	header := truncate(m.title, max(m.width-4, 20))
	switch {
	case m.last.Err != nil:
		header = "failed: " + header
	case m.done:
		header = "done: " + header
	default:
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")
	rows := []struct{ label, value string }{
		{"steps", fmt.Sprint(m.last.Steps)},
		{"rounds", fmt.Sprint(m.last.GlobalSteps)},
		{"lanes done", fmt.Sprintf("%d/%d", m.last.Finished, m.last.Lanes)},
	}
	if m.last.Err != nil {
		rows = append(rows, struct{ label, value string }{"error", m.last.Err.Error()})
	}
	for _, r := range rows {
		b.WriteString("  ")
		b.WriteString(styleLabel(r.label).Render(runewidth.FillLeft(r.label, 12)))
		b.WriteString(" ")
		b.WriteString(truncate(r.value, max(m.width-18, 20)))
		b.WriteString("\n")
	}
	b.WriteString("\n")
	if m.done && m.last.Err == nil {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func styleLabel(label string) lipgloss.Style {
	if label == "error" {
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	}
	return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
