package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#00cccc")).Bold(true)
	subtleStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#666688"))
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ffff")).Bold(true)
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffffff")).Bold(true)
	valueStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff88ff")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#555566"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff4444")).Bold(true)
	keyStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#00aaaa")).Bold(true)
	labelStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	metricStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ccff")).Bold(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444466")).
			Padding(0, 1)

	susceptibleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5599ff"))
	infectiousStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#ffaa00"))
	removedStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#00ff88"))
)

func keyHint(key, action string) string {
	return keyStyle.Render(key) + dimStyle.Render(" "+action+"  ")
}
