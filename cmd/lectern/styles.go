package main

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/pders01/lectern/internal/config"
)

type styles struct {
	title   lipgloss.Style
	accent  lipgloss.Style
	muted   lipgloss.Style
	err     lipgloss.Style
	success lipgloss.Style
	label   lipgloss.Style
}

func newStyles(c config.UIColors) styles {
	return styles{
		title:   lipgloss.NewStyle().Foreground(lipgloss.Color(c.Primary)).Bold(true),
		accent:  lipgloss.NewStyle().Foreground(lipgloss.Color(c.Accent)),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color(c.Muted)),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color(c.Error)).Bold(true),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color(c.Success)),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color(c.Muted)).Width(12),
	}
}

func defaultStyles() styles {
	return newStyles(config.Default().UI.Colors)
}

// flag renders a capability as a short marker, or padding when unset.
func (s styles) flag(set bool, marker string) string {
	if !set {
		return s.muted.Render("-")
	}
	return s.success.Render(marker)
}

func banner(s styles) string {
	border := lipgloss.Border{
		Top:         "═",
		Bottom:      "═",
		Left:        "║",
		Right:       "║",
		TopLeft:     "╔",
		TopRight:    "╗",
		BottomLeft:  "╚",
		BottomRight: "╝",
	}
	body := lipgloss.JoinVertical(lipgloss.Center,
		s.title.Render("lectern "+Version),
		s.accent.Render("one catalog over many text sources"),
		s.muted.Render("github.com/pders01/lectern"),
	)
	return lipgloss.NewStyle().
		Border(border).
		BorderForeground(s.accent.GetForeground()).
		Padding(0, 3).
		Render(body)
}
