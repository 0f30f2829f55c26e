// Package tui is the terminal front-end of the MCP node wizard. It drives a
// wizard.Wizard with Bubble Tea, loading servers and tools from the host.
package tui

import "github.com/charmbracelet/lipgloss"

// Step progress glyphs.
const (
	GlyphDone    = "✓"
	GlyphCurrent = "▸"
	GlyphPending = "○"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var stepBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

var (
	progressDone = lipgloss.NewStyle().
			Foreground(colorGreen)

	progressCurrent = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorYellow)

	progressPending = lipgloss.NewStyle().
			Faint(true)
)

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim).
			Padding(0, 1)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan)

	itemNormal = lipgloss.NewStyle().
			PaddingLeft(2).
			Foreground(colorWhite)

	itemSelected = lipgloss.NewStyle().
			PaddingLeft(1).
			Bold(true).
			Foreground(colorYellow)

	itemDesc = lipgloss.NewStyle().
			Foreground(colorDim)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	requiredStyle = lipgloss.NewStyle().
			Foreground(colorRed)
)

var (
	keyStyle = lipgloss.NewStyle().
			Foreground(colorCyan).
			Bold(true)

	keyDescStyle = lipgloss.NewStyle().
			Foreground(colorDim)

	keyBarStyle = lipgloss.NewStyle().
			Padding(0, 1)
)

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

var spinnerStyle = lipgloss.NewStyle().
	Foreground(colorYellow)
