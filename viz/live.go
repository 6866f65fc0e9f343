package viz

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
)

const (
	graphWidth  = 70
	graphHeight = 16
)

var (
	headerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true).MarginBottom(1)
	statsStyle  = lipgloss.NewStyle().Border(lipgloss.NormalBorder(), false, false, false, true).BorderForeground(lipgloss.Color("240")).Padding(0, 2)
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(12)
	valueStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	eventStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).MarginTop(1)
)

// Snapshot is one live update from a running continuation.
type Snapshot struct {
	Step      int
	Param     float64
	PrintSol  float64
	Ds        float64
	Iters     int
	NUnstable int
	Event     string
	Done      bool
	Stop      string
}

// LiveModel is a bubbletea model showing the branch as it grows: the
// printsol trace, the current step stats, and the detected events.
type LiveModel struct {
	updates <-chan Snapshot
	system  string

	series []float64
	last   Snapshot
	events []string
	done   bool
}

// NewLive builds the model around a channel the driving loop feeds.
func NewLive(system string, updates <-chan Snapshot) LiveModel {
	return LiveModel{updates: updates, system: system}
}

func (m LiveModel) wait() tea.Cmd {
	return func() tea.Msg {
		snap, ok := <-m.updates
		if !ok {
			return Snapshot{Done: true, Stop: "channel closed"}
		}
		return snap
	}
}

func (m LiveModel) Init() tea.Cmd {
	return m.wait()
}

func (m LiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
	case Snapshot:
		if msg.Done {
			m.done = true
			m.last.Stop = msg.Stop
			return m, nil
		}
		m.last = msg
		m.series = append(m.series, msg.PrintSol)
		if msg.Event != "" {
			m.events = append(m.events, msg.Event)
		}
		return m, m.wait()
	}
	return m, nil
}

func (m LiveModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(fmt.Sprintf("palc · %s", m.system)))
	b.WriteString("\n")

	if len(m.series) > 1 {
		b.WriteString(asciigraph.Plot(m.series,
			asciigraph.Width(graphWidth),
			asciigraph.Height(graphHeight)))
	} else {
		b.WriteString("waiting for the first confirmed step...")
	}
	b.WriteString("\n\n")

	row := func(label string, format string, a ...any) string {
		return labelStyle.Render(label) + valueStyle.Render(fmt.Sprintf(format, a...)) + "\n"
	}
	stats := row("step", "%d", m.last.Step) +
		row("p", "%.6f", m.last.Param) +
		row("printsol", "%.6f", m.last.PrintSol) +
		row("ds", "%+.2e", m.last.Ds) +
		row("newton", "%d it", m.last.Iters) +
		row("unstable", "%d", m.last.NUnstable)
	b.WriteString(statsStyle.Render(stats))
	b.WriteString("\n")

	for _, e := range m.events {
		b.WriteString(eventStyle.Render("• " + e))
		b.WriteString("\n")
	}
	if m.done {
		b.WriteString(eventStyle.Render(fmt.Sprintf("run finished: %s", m.last.Stop)))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("q: quit"))
	return b.String()
}
