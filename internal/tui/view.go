package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const (
	sidebarWidth = 28
	headerHeight = 1
	footerHeight = 2
)

// layout returns the origin and size, in cells, of the map area.
func (m Model) layout() (x, y, w, h int) {
	w = max(10, m.width)
	if m.showSidebar {
		x = sidebarWidth + 1
		w = max(10, w-x)
	}
	h = max(4, m.height-headerHeight-footerHeight)
	return x, headerHeight, w, h
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}
	_, _, mapWidth, mapHeight := m.layout()
	contentWidth := max(10, m.width)

	// Header
	title := " fgbmap ─ " + m.sourceName() + " "
	if m.loading {
		title += "⟳ "
	}
	header := titleStyle.Render(title)
	header = lipgloss.NewStyle().Width(contentWidth).Padding(0).Render(header)

	// Sidebar
	var sidebar string
	if m.showSidebar {
		sidebar = lipgloss.NewStyle().Width(sidebarWidth).Render(m.l.View())
	}

	var mapView string
	switch {
	case m.showAttrs:
		// Render attributes table centered in the map area
		colW := 0
		for _, c := range m.tbl.Columns() {
			colW += c.Width + 3
		}
		maxW := min(mapWidth, max(32, colW))
		m.tbl.SetWidth(maxW - 4)
		m.tbl.SetHeight(min(mapHeight-2, 20))
		attrsBox := boxStyle.Width(maxW).Render(m.tbl.View())
		mapView = lipgloss.Place(mapWidth, mapHeight, lipgloss.Center, lipgloss.Center, attrsBox)
	case m.prompt != promptNone:
		// size textarea to map area
		m.ta.SetWidth(mapWidth)
		m.ta.SetHeight(min(mapHeight, 12))
		mapView = lipgloss.NewStyle().Width(mapWidth).Height(mapHeight).Render(m.ta.View())
	case m.inspectPopup != "":
		box := boxStyle.MaxWidth(min(60, mapWidth)).Render(m.inspectPopup)
		mapView = lipgloss.Place(mapWidth, mapHeight, lipgloss.Left, lipgloss.Center, box)
	default:
		// plain map canvas: no border, no background highlight
		mapView = lipgloss.NewStyle().Width(mapWidth).Height(mapHeight).Render(m.renderMap(mapWidth, mapHeight))
	}

	body := mapView
	if m.showSidebar {
		body = lipgloss.JoinHorizontal(lipgloss.Top, sidebar, " ", mapView)
	}

	// Footer / help
	help := m.renderHelp()
	status := dimStyle.Render(" " + m.status + " ")
	coords := ""
	if m.hovering && m.hoverHasGeo {
		coords = dimStyle.Render(fmt.Sprintf("  x=%.5f y=%.5f  ", m.hoverLon, m.hoverLat))
	}
	camera := dimStyle.Render(fmt.Sprintf(" zoom=%.3g %s ", m.deb.LiveZoom(), m.deb.State()))
	left := lipgloss.JoinHorizontal(lipgloss.Bottom, status, camera)
	spacerW := max(0, contentWidth-lipgloss.Width(left)-lipgloss.Width(coords))
	right := lipgloss.Place(spacerW+lipgloss.Width(coords), 1, lipgloss.Right, lipgloss.Center, coords)
	footer := lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.NewStyle().Width(contentWidth).MaxHeight(1).Render(lipgloss.JoinHorizontal(lipgloss.Bottom, left, right)),
		lipgloss.NewStyle().Width(contentWidth).MaxHeight(1).Render(help),
	)

	ui := lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
	return appStyle.Width(contentWidth).Height(m.height).Render(ui)
}

func (m Model) sourceName() string {
	if m.location == "" {
		return "no source"
	}
	return m.location
}

func (m Model) renderHelp() string {
	if !m.helpVisible {
		return ""
	}
	keys := []string{
		"drag/↑↓←→ pan",
		"wheel/+- zoom",
		"c fit",
		"g goto",
		"s tess",
		"w wire",
		"r reload",
		"Tab files",
		"p paste",
		"a schema",
		"i inspect",
		"h help",
		"q quit",
	}
	return dimStyle.Render(" " + strings.Join(keys, "  "))
}
