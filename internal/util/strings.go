// Package util provides text helpers shared by the log sink and the live view.
package util

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

const ellipsis = "..."

// Truncate shortens s to maxLen runes, ending in "..." when cut.
// It does not account for ANSI escape codes; use Fit for styled text.
func Truncate(s string, maxLen int) string {
	if maxLen <= len(ellipsis) {
		return ellipsis
	}
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-len(ellipsis)]) + ellipsis
}

// Fit shortens styled s to maxWidth terminal columns, keeping escape
// sequences intact. A non-positive width leaves s unchanged.
func Fit(s string, maxWidth int) string {
	if maxWidth <= 0 || lipgloss.Width(s) <= maxWidth {
		return s
	}
	if maxWidth <= len(ellipsis) {
		return ellipsis
	}
	return ansi.Truncate(s, maxWidth, ellipsis)
}

// OneLine collapses runs of whitespace, newlines included, into single
// spaces so provider output fits a single log or activity line.
func OneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
