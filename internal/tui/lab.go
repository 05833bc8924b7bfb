package tui

import (
	"errors"
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/myth/coroner/internal/lab"
)

// recomputedMsg carries the result of a recompute started by the editor.
type recomputedMsg struct {
	generation uint64
	traj       *lab.Trajectory
	err        error
}

func newRecomputedMsg(traj *lab.Trajectory, err error) recomputedMsg {
	msg := recomputedMsg{traj: traj, err: err}
	var fault *lab.FaultError
	switch {
	case traj != nil:
		msg.generation = traj.Generation()
	case errors.As(err, &fault):
		msg.generation = fault.Generation
	}
	return msg
}

// Model is a bubbletea form over a lab.Controller. Every accepted edit
// triggers a recompute in a command; results that arrive out of order are
// dropped by generation.
type Model struct {
	ctrl    *lab.Controller
	params  []lab.ParameterInfo
	cursor  int
	editing bool
	editBuf string
	traj    *lab.Trajectory
	shown   uint64 // generation of the newest result applied
	lastErr error
	rows    int
}

func New(ctrl *lab.Controller) Model {
	m := Model{ctrl: ctrl, rows: 10}
	m.refreshParams()
	return m
}

func (m *Model) refreshParams() {
	m.params = nil
	for _, p := range m.ctrl.Parameters() {
		if p.Editable {
			m.params = append(m.params, p)
		}
	}
}

func (m Model) Init() tea.Cmd {
	return m.recompute()
}

func (m Model) recompute() tea.Cmd {
	ctrl := m.ctrl
	return func() tea.Msg {
		return newRecomputedMsg(ctrl.Recompute())
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.editing {
			return m.editKey(msg)
		}
		return m.formKey(msg)
	case recomputedMsg:
		if msg.generation <= m.shown {
			return m, nil
		}
		m.shown = msg.generation
		if msg.err != nil {
			m.lastErr = msg.err
			return m, nil
		}
		m.traj = msg.traj
		if errors.Is(m.lastErr, lab.ErrIntegratorFault) {
			m.lastErr = nil
		}
		return m, nil
	}
	return m, nil
}

func (m Model) formKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j", "tab":
		if m.cursor < len(m.params)-1 {
			m.cursor++
		}
	case "left", "h":
		return m.nudge(-1)
	case "right", "l":
		return m.nudge(1)
	case "enter", " ":
		m.editing = true
		m.editBuf = formatValue(m.params[m.cursor])
	}
	return m, nil
}

func (m Model) editKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		m.editing = false
		raw := m.editBuf
		m.editBuf = ""
		return m.apply(func(name string) error { return m.ctrl.SetParameterText(name, raw) })
	case "esc":
		m.editing, m.editBuf = false, ""
	case "backspace":
		if len(m.editBuf) > 0 {
			m.editBuf = m.editBuf[:len(m.editBuf)-1]
		}
	case "ctrl+c":
		return m, tea.Quit
	default:
		if len(msg.String()) == 1 {
			c := msg.String()[0]
			if (c >= '0' && c <= '9') || c == '.' || c == '-' || c == 'e' {
				m.editBuf += string(c)
			}
		}
	}
	return m, nil
}

// nudge moves the selected parameter one step in dir.
func (m Model) nudge(dir float64) (tea.Model, tea.Cmd) {
	p := m.params[m.cursor]
	value := p.Value + dir*stepFor(p)
	if p.Kind == "float" {
		value = math.Round(value*1000) / 1000
	}
	return m.apply(func(name string) error { return m.ctrl.SetParameter(name, value) })
}

func (m Model) apply(edit func(name string) error) (tea.Model, tea.Cmd) {
	if err := edit(m.params[m.cursor].Name); err != nil {
		m.lastErr = err
		return m, nil
	}
	m.lastErr = nil
	m.refreshParams()
	return m, m.recompute()
}

func stepFor(p lab.ParameterInfo) float64 {
	if p.Kind == "float" {
		return 0.01
	}
	// counts move by about one percent, never less than one
	return math.Max(1, math.Round(p.Value/100))
}

func formatValue(p lab.ParameterInfo) string {
	if p.Kind == "float" {
		return fmt.Sprintf("%.3f", p.Value)
	}
	return fmt.Sprintf("%.0f", p.Value)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString("\n  " + titleStyle.Render("SIR LAB") + "\n  " + subtleStyle.Render("susceptible → infectious → removed") + "\n\n")

	for i, p := range m.params {
		val := formatValue(p)
		if m.editing && i == m.cursor {
			val = m.editBuf + "_"
		}
		if i == m.cursor {
			b.WriteString(fmt.Sprintf("  %s %s %s\n", cursorStyle.Render("▸"), selectedStyle.Render(fmt.Sprintf("%-14s", p.Name)), valueStyle.Render(fmt.Sprintf("%12s", val))))
		} else {
			b.WriteString(fmt.Sprintf("    %s %s\n", dimStyle.Render(fmt.Sprintf("%-14s", p.Name)), dimStyle.Render(fmt.Sprintf("%12s", val))))
		}
	}
	if m.cursor < len(m.params) {
		b.WriteString("  " + subtleStyle.Render(m.params[m.cursor].Description) + "\n")
	}

	if m.lastErr != nil {
		b.WriteString("\n  " + errorStyle.Render(m.lastErr.Error()) + "\n")
	}

	if m.traj != nil {
		b.WriteString("\n" + lipgloss.JoinHorizontal(lipgloss.Top, panelStyle.Render(m.viewSummary()), " ", panelStyle.Render(m.viewTable())) + "\n")
	}

	b.WriteString("\n  " + keyHint("j/k", "select") + keyHint("h/l", "adjust") + keyHint("enter", "edit") + keyHint("q", "quit") + "\n")
	return b.String()
}

func (m Model) viewSummary() string {
	s := m.traj.Summary()
	lines := []string{
		labelStyle.Render("peak day") + metricStyle.Render(fmt.Sprintf("%d", s.PeakDay)),
		labelStyle.Render("peak infectious") + metricStyle.Render(formatCount(s.PeakInfectious)),
		labelStyle.Render("final susceptible") + metricStyle.Render(formatCount(s.FinalSusceptible)),
		labelStyle.Render("final removed") + metricStyle.Render(formatCount(s.FinalRemoved)),
		labelStyle.Render("attack rate") + metricStyle.Render(fmt.Sprintf("%.1f%%", s.AttackRate*100)),
		labelStyle.Render("R0") + metricStyle.Render(fmt.Sprintf("%.2f", s.R0)),
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewTable() string {
	last := m.traj.Len() - 1
	every := last / m.rows
	if every < 1 {
		every = 1
	}

	lines := []string{fmt.Sprintf("%5s %12s %12s %12s", "day",
		susceptibleStyle.Render(fmt.Sprintf("%12s", "S")),
		infectiousStyle.Render(fmt.Sprintf("%12s", "I")),
		removedStyle.Render(fmt.Sprintf("%12s", "R")))}
	for d := 0; d <= last; d += every {
		s, _ := m.traj.At(d)
		lines = append(lines, fmt.Sprintf("%5d %12s %12s %12s", d, formatCount(s.Susceptible), formatCount(s.Infectious), formatCount(s.Removed)))
	}
	if last%every != 0 {
		s, _ := m.traj.At(last)
		lines = append(lines, fmt.Sprintf("%5d %12s %12s %12s", last, formatCount(s.Susceptible), formatCount(s.Infectious), formatCount(s.Removed)))
	}
	return strings.Join(lines, "\n")
}

func formatCount(v float64) string {
	return fmt.Sprintf("%.0f", v)
}

// Run starts the editor on the terminal.
func Run(ctrl *lab.Controller) error {
	_, err := tea.NewProgram(New(ctrl), tea.WithAltScreen()).Run()
	return err
}
