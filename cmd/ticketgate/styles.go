package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorValid   = lipgloss.Color("#9ece6a")
	colorInvalid = lipgloss.Color("#f7768e")
	colorMuted   = lipgloss.Color("#565f89")
)

// styles renders for a specific writer so piped output stays free of escape codes.
type styles struct {
	valid   lipgloss.Style
	invalid lipgloss.Style
	muted   lipgloss.Style
}

func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		valid:   r.NewStyle().Foreground(colorValid),
		invalid: r.NewStyle().Foreground(colorInvalid),
		muted:   r.NewStyle().Foreground(colorMuted),
	}
}
