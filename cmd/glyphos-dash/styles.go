package main

import (
	"hash/fnv"

	"github.com/charmbracelet/lipgloss"
)

// styles are the prebuilt styles of the dashboard. Every color is adaptive so
// the dashboard reads on light and dark terminals alike.
type styles struct {
	heading lipgloss.Style
	field   lipgloss.Style
	faint   lipgloss.Style
	alert   lipgloss.Style
	caution lipgloss.Style
	calm    lipgloss.Style

	gateInks []lipgloss.AdaptiveColor
}

func newStyles() styles {
	return styles{
		heading: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#4B3F72", Dark: "#C3B1E1"}),
		field:   lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#1F6F78", Dark: "#7FC8C2"}),
		faint:   lipgloss.NewStyle().Italic(true).Foreground(lipgloss.AdaptiveColor{Light: "#8A8A8A", Dark: "#6C6C6C"}),
		alert:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#B00020", Dark: "#FF6B6B"}),
		caution: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#A86400", Dark: "#F2B84B"}),
		calm:    lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#3C7A3C", Dark: "#9CCC9C"}),
		gateInks: []lipgloss.AdaptiveColor{
			{Light: "#7A3E65", Dark: "#E6A4C9"},
			{Light: "#2E5E8C", Dark: "#9EC5EC"},
			{Light: "#6B5B1E", Dark: "#E3D18A"},
			{Light: "#3E6B48", Dark: "#A8D8B0"},
			{Light: "#7B4A2A", Dark: "#E9B48F"},
			{Light: "#4F4F8F", Dark: "#B7B7F0"},
		},
	}
}

// gate returns the style of a gate name. A gate keeps its ink across
// refreshes and sessions.
func (s styles) gate(name string) lipgloss.Style {
	if len(s.gateInks) == 0 {
		return s.field
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	return lipgloss.NewStyle().Bold(true).Foreground(s.gateInks[h.Sum32()%uint32(len(s.gateInks))])
}
