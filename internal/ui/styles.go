// Package ui renders terminal output for the jot CLI.
package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/jotdeck/jotdeck/internal/schema"
)

func init() {
	if !ShouldUseColor() {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// ShouldUseColor honours NO_COLOR and CLICOLOR_FORCE, then falls back to
// whether stdout is a terminal.
func ShouldUseColor() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if v := os.Getenv("CLICOLOR_FORCE"); v != "" && v != "0" {
		return true
	}
	return IsTerminal(os.Stdout)
}

// Width returns the terminal width of stdout, or 80.
func Width() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

var (
	ColorPass   = lipgloss.AdaptiveColor{Light: "#2e7d32", Dark: "#acfab4"}
	ColorWarn   = lipgloss.AdaptiveColor{Light: "#b26a00", Dark: "#ffcb6b"}
	ColorFail   = lipgloss.AdaptiveColor{Light: "#c62828", Dark: "#e61f44"}
	ColorAccent = lipgloss.AdaptiveColor{Light: "#1565c0", Dark: "#89ddff"}
	ColorMuted  = lipgloss.AdaptiveColor{Light: "#757575", Dark: "#6c7086"}

	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	boldStyle   = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
	panelStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderBold(s string) string   { return boldStyle.Render(s) }

// RenderState colours a sync state name.
func RenderState(state string) string {
	switch state {
	case "idle", "synced":
		return RenderPass(state)
	case "syncing":
		return RenderAccent(state)
	case "error":
		return RenderFail(state)
	default:
		return state
	}
}

// RenderPriority colours a task priority.
func RenderPriority(p schema.Priority) string {
	switch p {
	case schema.PriorityHigh:
		return RenderFail(string(p))
	case schema.PriorityLow:
		return RenderMuted(string(p))
	default:
		return RenderWarn(string(p))
	}
}

// TaskLine renders one task for list output.
func TaskLine(t schema.Task, width int) string {
	box := "[ ]"
	if t.Completed {
		box = RenderPass("[x]")
	}
	var meta []string
	meta = append(meta, RenderPriority(t.Priority))
	if t.DueDate != "" {
		meta = append(meta, "due "+t.DueDate)
	}
	title := Truncate(t.Title, max(width-40, 20))
	if t.Completed {
		title = RenderMuted(title)
	}
	return box + " " + title + "  " + RenderMuted(t.ID) + "  " + strings.Join(meta, " ")
}

// Header renders a section title.
func Header(s string) string {
	return headerStyle.Render(s)
}

// Panel draws a rounded box around body.
func Panel(title, body string) string {
	if title != "" {
		body = Header(title) + "\n" + body
	}
	return panelStyle.Render(body)
}

// Truncate shortens s to at most n runes, ending in an ellipsis when cut.
func Truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 {
		return ""
	}
	if len(r) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(r[:n-1]) + "…"
}
