// Package ui renders CLI output.
package ui

import (
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#2E7D32", Dark: "#81C784"})
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#B26A00", Dark: "#FFB74D"})
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#C62828", Dark: "#E57373"})
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1565C0", Dark: "#64B5F6"})
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#757575", Dark: "#9E9E9E"})
	boldStyle   = lipgloss.NewStyle().Bold(true)
	keyStyle    = lipgloss.NewStyle().Bold(true)
)

var styled atomic.Bool

func init() {
	styled.Store(IsTerminal(os.Stdout))
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// SetStyled turns styling on or off. Styling defaults to on when stdout is
// a terminal.
func SetStyled(on bool) {
	styled.Store(on)
}

func render(style lipgloss.Style, s string) string {
	if !styled.Load() {
		return s
	}
	return style.Render(s)
}

// RenderPass renders a success marker or message.
func RenderPass(s string) string { return render(passStyle, s) }

// RenderWarn renders a warning.
func RenderWarn(s string) string { return render(warnStyle, s) }

// RenderFail renders a failure.
func RenderFail(s string) string { return render(failStyle, s) }

// RenderAccent renders a heading marker.
func RenderAccent(s string) string { return render(accentStyle, s) }

// RenderMuted renders secondary text.
func RenderMuted(s string) string { return render(mutedStyle, s) }

// RenderBold renders emphasized text.
func RenderBold(s string) string { return render(boldStyle, s) }

// KeyValue renders rows as aligned "key: value" lines.
func KeyValue(rows [][2]string) string {
	width := 0
	for _, r := range rows {
		if w := lipgloss.Width(r[0]); w > width {
			width = w
		}
	}
	var b strings.Builder
	for _, r := range rows {
		key := r[0] + ":"
		b.WriteString(render(keyStyle, key))
		b.WriteString(strings.Repeat(" ", width-lipgloss.Width(r[0])+1))
		b.WriteString(r[1])
		b.WriteByte('\n')
	}
	return b.String()
}

// Width returns the terminal width of stdout, or 80 when unknown.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// Truncate shortens s to at most n cells, ending in an ellipsis when cut.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if lipgloss.Width(s) <= n {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 && lipgloss.Width(string(runes))+1 > n {
		runes = runes[:len(runes)-1]
	}
	return string(runes) + "…"
}
