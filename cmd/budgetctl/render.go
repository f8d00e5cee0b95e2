package main

import (
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"budgetshare/internal/core"
)

var (
	colorBorder = lipgloss.Color("#575653")
	colorText   = lipgloss.Color("#FFFCF0")
	colorMuted  = lipgloss.Color("#6F6E69")
	colorAccent = lipgloss.Color("#3AA99F")
	colorGreen  = lipgloss.Color("#879A39")
	colorRed    = lipgloss.Color("#D14D41")
	colorOrange = lipgloss.Color("#DA702C")
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	borderStyle = lipgloss.NewStyle().Foreground(colorBorder)
	valueStyle  = lipgloss.NewStyle().Foreground(colorText)
	mutedStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	incomeStyle = lipgloss.NewStyle().Foreground(colorGreen)
	overStyle   = lipgloss.NewStyle().Foreground(colorRed)
	warnStyle   = lipgloss.NewStyle().Foreground(colorOrange)
)

// table is a bordered text table. Columns listed in right are right-aligned.
type table struct {
	title   string
	headers []string
	rows    [][]string
	right   map[int]bool
}

func (t table) render() string {
	cols := len(t.headers)
	widths := make([]int, cols)
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i := 0; i < cols && i < len(row); i++ {
			if w := lipgloss.Width(row[i]); w > widths[i] {
				widths[i] = w
			}
		}
	}

	line := func(left, mid, right string) string {
		parts := make([]string, cols)
		for i, w := range widths {
			parts[i] = strings.Repeat("─", w+2)
		}
		return borderStyle.Render(left+strings.Join(parts, mid)+right) + "\n"
	}
	cells := func(values []string, style lipgloss.Style) string {
		var b strings.Builder
		b.WriteString(borderStyle.Render("│"))
		for i, w := range widths {
			v := ""
			if i < len(values) {
				v = values[i]
			}
			cell := lipgloss.NewStyle().Width(w)
			if t.right[i] {
				cell = cell.Align(lipgloss.Right)
			}
			b.WriteString(" " + style.Render(cell.Render(v)) + " ")
			b.WriteString(borderStyle.Render("│"))
		}
		return b.String() + "\n"
	}

	var b strings.Builder
	if t.title != "" {
		b.WriteString(titleStyle.Render(t.title) + "\n")
	}
	b.WriteString(line("╭", "┬", "╮"))
	b.WriteString(cells(t.headers, headerStyle))
	b.WriteString(line("├", "┼", "┤"))
	for _, row := range t.rows {
		b.WriteString(cells(row, valueStyle))
	}
	b.WriteString(line("╰", "┴", "╯"))
	return b.String()
}

// formatMoney renders cents with thousands separators, e.g. "€1,234.50".
func formatMoney(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	frac := core.FormatCents(cents % 100)
	return sign + "€" + humanize.Comma(cents/100) + frac[strings.Index(frac, "."):]
}

// formatSigned shows income as positive and expenses as negative.
func formatSigned(cents int64, kind string) string {
	if core.TransactionKind(kind) == core.KindExpense {
		return formatMoney(-cents)
	}
	return "+" + formatMoney(cents)
}

func formatWhen(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}

func formatPercent(used int, over bool) string {
	s := humanize.Comma(int64(used)) + "%"
	switch {
	case over:
		return overStyle.Render(s)
	case used >= 80:
		return warnStyle.Render(s)
	}
	return s
}
