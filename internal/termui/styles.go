// Package termui renders records, reconciliation decisions and statistics
// for the terminal, and prompts the operator to arbitrate conflicts.
package termui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"

	"github.com/ehr/fieldtriage/internal/domain/assessment"
)

var (
	ColorRed    = lipgloss.Color("#E74C3C")
	ColorYellow = lipgloss.Color("#F4D03F")
	ColorGreen  = lipgloss.Color("#2ECC71")
	ColorAccent = lipgloss.Color("#20B9B4")
	ColorMuted  = lipgloss.Color("#7F8C8D")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Label   lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Box     lipgloss.Style
	Header  lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Label:   lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorGreen),
	Warning: lipgloss.NewStyle().Foreground(ColorYellow),
	Error:   lipgloss.NewStyle().Foreground(ColorRed),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorAccent).
		Padding(0, 1),
	Header: lipgloss.NewStyle().Bold(true).Underline(true),
}

var priorityColor = map[assessment.Priority]lipgloss.Color{
	assessment.PriorityRed:    ColorRed,
	assessment.PriorityYellow: ColorYellow,
	assessment.PriorityGreen:  ColorGreen,
}

// Badge renders a triage priority as a bold coloured tag.
func Badge(p assessment.Priority) string {
	st := lipgloss.NewStyle().Bold(true)
	if c, ok := priorityColor[p]; ok {
		st = st.Foreground(c)
	}
	return st.Render(fmt.Sprintf("[%s]", p))
}

func Success(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", Styles.Success.Render("✓"), fmt.Sprintf(format, args...))
}

func Warning(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", Styles.Warning.Render("⚠"), fmt.Sprintf(format, args...))
}

func Error(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, "%s %s\n", Styles.Error.Render("✗"), fmt.Sprintf(format, args...))
}
