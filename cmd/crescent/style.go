package main

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// theme styles text output. The zero-styled theme renders text unchanged.
type theme struct {
	success lipgloss.Style
	failure lipgloss.Style
	dim     lipgloss.Style
}

func plainTheme() theme {
	s := lipgloss.NewStyle()
	return theme{success: s, failure: s, dim: s}
}

func colorTheme(w io.Writer) theme {
	r := lipgloss.NewRenderer(w, termenv.WithColorCache(true))
	return theme{
		success: r.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#008000", Dark: "#55FF55"}),
		failure: r.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#D00000", Dark: "#FF5555"}).
			Bold(true),
		dim: r.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "#666666", Dark: "#888888"}),
	}
}

func (c *cli) theme() theme {
	if c.isTTY != nil && c.isTTY() {
		return colorTheme(c.stdout)
	}
	return plainTheme()
}
