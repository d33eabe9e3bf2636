package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// LipGloss signature purple/pink palette
var (
	headerColor  = lipgloss.Color("#F780FF") // Bright pink/magenta
	nameColor    = lipgloss.Color("#BD93F9") // Purple
	numberColor  = lipgloss.Color("#FF79C6") // Pink
	textColor    = lipgloss.Color("#E9E9F4") // Light purple/white
	borderColor  = lipgloss.Color("#6272A4") // Muted purple
	summaryColor = lipgloss.Color("#8BE9FD") // Cyan accent
)

// column describes one table column.
type column struct {
	title   string
	width   int
	color   lipgloss.TerminalColor
	numeric bool
}

// table renders rows as aligned, colored columns separated by box-drawing
// borders.
type table struct {
	out     io.Writer
	columns []column
}

func (t table) header() {
	borderStyle := lipgloss.NewStyle().Foreground(borderColor)
	headerStyle := lipgloss.NewStyle().
		Foreground(headerColor).
		Bold(true).
		Padding(0, 1)

	headers := make([]string, len(t.columns))
	separator := make([]string, len(t.columns))
	for i, c := range t.columns {
		headers[i] = headerStyle.Width(c.width).Render(c.title)
		separator[i] = strings.Repeat("─", c.width)
	}
	fmt.Fprintln(t.out, strings.Join(headers, borderStyle.Render("│")))
	fmt.Fprintln(t.out, borderStyle.Render(strings.Join(separator, "┼")))
}

func (t table) row(values ...string) {
	borderStyle := lipgloss.NewStyle().Foreground(borderColor)
	cells := make([]string, len(t.columns))
	for i, c := range t.columns {
		style := lipgloss.NewStyle().
			Foreground(c.color).
			Padding(0, 1).
			Width(c.width)
		if c.numeric {
			style = style.Align(lipgloss.Right)
		}
		var v string
		if i < len(values) {
			v = values[i]
		}
		cells[i] = style.Render(truncate(v, c.width-2))
	}
	fmt.Fprintln(t.out, strings.Join(cells, borderStyle.Render("│")))
}

func summary(out io.Writer, text string) {
	summaryStyle := lipgloss.NewStyle().
		Foreground(summaryColor).
		Italic(true)
	fmt.Fprintln(out)
	fmt.Fprintln(out, summaryStyle.Render(text))
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
