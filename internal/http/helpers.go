package http

import (
	"html/template"
	"net/url"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"budgetshare/internal/core"
)

// formatMoney formats cents as a Euro amount, e.g. "€1,234.56".
func formatMoney(cents int64) string {
	neg := cents < 0
	if neg {
		cents = -cents
	}
	s := "€" + humanize.FormatFloat("#,###.##", float64(cents)/100)
	if neg {
		return "-" + s
	}
	return s
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}

// safeNext only allows same-site relative redirect targets.
func safeNext(next string) string {
	if next == "" || !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return "/"
	}
	u, err := url.Parse(next)
	if err != nil || u.Host != "" || u.Scheme != "" {
		return "/"
	}
	return next
}

var monthNames = [...]string{"", "January", "February", "March", "April", "May", "June",
	"July", "August", "September", "October", "November", "December"}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"money": formatMoney,
		"signed": func(t core.Transaction) string {
			return formatMoney(t.Signed())
		},
		"monthName": func(m int) string {
			if m < 1 || m > 12 {
				return ""
			}
			return monthNames[m]
		},
		"date": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		// barWidth caps progress bars at 100%.
		"barWidth": func(pct int) int {
			if pct > 100 {
				return 100
			}
			if pct < 0 {
				return 0
			}
			return pct
		},
		"plain": func(cents int64) string {
			return core.FormatCents(cents)
		},
		"ago":        humanize.Time,
		"pathEscape": url.PathEscape,
		"neg":        func(v int64) int64 { return -v },
	}
}
