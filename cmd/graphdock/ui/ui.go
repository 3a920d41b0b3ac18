package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// 256-color palette tuned for dark terminals.
var (
	teal  = lipgloss.Color("37")
	green = lipgloss.Color("78")
	red   = lipgloss.Color("203")
	amber = lipgloss.Color("214")
	gray  = lipgloss.Color("245")
	edge  = lipgloss.Color("240")
)

var (
	accentStyle  = lipgloss.NewStyle().Foreground(teal)
	successStyle = lipgloss.NewStyle().Foreground(green)
	errorStyle   = lipgloss.NewStyle().Foreground(red)
	warnStyle    = lipgloss.NewStyle().Foreground(amber)
	mutedStyle   = lipgloss.NewStyle().Foreground(gray)
	boldStyle    = lipgloss.NewStyle().Bold(true)
)

// Bold, Muted, Success, Warn and Error style a text fragment for inline use.

func Bold(s string) string    { return boldStyle.Render(s) }
func Muted(s string) string   { return mutedStyle.Render(s) }
func Success(s string) string { return successStyle.Render(s) }
func Warn(s string) string    { return warnStyle.Render(s) }
func Error(s string) string   { return errorStyle.Render(s) }

// SuccessMsg formats a completed-action line with a leading check mark.
func SuccessMsg(format string, a ...any) string {
	return successStyle.Render("✓") + " " + fmt.Sprintf(format, a...)
}

// WarnMsg formats a cautionary line with a leading exclamation mark.
func WarnMsg(format string, a ...any) string {
	return warnStyle.Render("!") + " " + fmt.Sprintf(format, a...)
}

// ErrorMsg formats a failure line with a leading cross.
func ErrorMsg(format string, a ...any) string {
	return errorStyle.Render("✗") + " " + fmt.Sprintf(format, a...)
}

// InfoMsg formats a neutral status line with a leading dot.
func InfoMsg(format string, a ...any) string {
	return accentStyle.Render("●") + " " + fmt.Sprintf(format, a...)
}

// Pair is one row of a KeyValues block. Build it with KV.
type Pair struct {
	key   string
	value string
}

func KV(key, value string) Pair { return Pair{key: key, value: value} }

// KeyValues renders pairs as "key:  value" lines with every value starting
// in the same column. Each line carries the indent prefix and the result
// ends in a newline.
func KeyValues(indent string, pairs ...Pair) string {
	widest := 0
	for _, p := range pairs {
		if n := len(p.key); n > widest {
			widest = n
		}
	}

	var b strings.Builder
	for _, p := range pairs {
		b.WriteString(indent)
		b.WriteString(mutedStyle.Render(p.key + ":"))
		b.WriteString(strings.Repeat(" ", widest-len(p.key)+2))
		b.WriteString(p.value)
		b.WriteByte('\n')
	}
	return b.String()
}

// Table renders rows under a header inside a rounded border. Alternating
// body rows are dimmed to keep wide tables scannable.
func Table(headers []string, rows [][]string) string {
	head := lipgloss.NewStyle().Foreground(teal).Bold(true).Padding(0, 1)
	body := lipgloss.NewStyle().Padding(0, 1)
	dimmed := body.Foreground(gray)

	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(edge)).
		StyleFunc(func(row, _ int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return head
			case row%2 == 1:
				return dimmed
			default:
				return body
			}
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}
