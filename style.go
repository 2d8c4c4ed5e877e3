package main

import (
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

var (
	keywordStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	paragraphStyle = lipgloss.NewStyle().Width(78).Padding(0, 0, 0, 2)
	headingStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4")).Bold(true)
	dimStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	failStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

func init() {
	if termenv.EnvNoColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func keyword(s string) string {
	return keywordStyle.Render(s)
}

func paragraph(s string) string {
	return paragraphStyle.Render(s)
}

// styled applies st only when stdout is a terminal and NO_COLOR is unset, so
// piped reports stay plain.
func styled(st lipgloss.Style, s string) string {
	if !stdoutIsTerminal() || termenv.EnvNoColor() {
		return s
	}
	return st.Render(s)
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec
}
