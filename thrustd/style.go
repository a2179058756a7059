package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#F0F0F0")).
			Padding(0, 1).
			Border(lipgloss.RoundedBorder(), true).
			BorderForeground(lipgloss.Color("#C89A3A"))
	labelStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8C8C8C")).Width(14)
	valueStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F0F0F0"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#52C41A")).Bold(true)
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4D4F")).Bold(true)
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#C89A3A"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6E6E6E"))
)

// renderFields renders label/value pairs, one per line.
func renderFields(pairs ...string) string {
	var b strings.Builder
	for i := 0; i+1 < len(pairs); i += 2 {
		b.WriteString(labelStyle.Render(pairs[i]))
		b.WriteString(valueStyle.Render(pairs[i+1]))
		if i+2 < len(pairs) {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// renderProgress renders a step bar like "■■■□□□□".
func renderProgress(step, total int) string {
	if step > total {
		step = total
	}
	if step < 0 {
		step = 0
	}
	return pendingStyle.Render(strings.Repeat("■", step)) + mutedStyle.Render(strings.Repeat("□", total-step))
}

func writeLine(w io.Writer, s string) {
	if _, err := fmt.Fprintln(w, s); err != nil {
		_ = err
	}
}
