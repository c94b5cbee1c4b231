// SPDX-License-Identifier: MIT
package tui

import "github.com/charmbracelet/lipgloss"

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	highlightStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true)

	beatStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5F87")).
			Bold(true)

	// Bar colors from the bottom of the graph to the top.
	barLow  = lipgloss.NewStyle().Foreground(lipgloss.Color("#25A065"))
	barMid  = lipgloss.NewStyle().Foreground(lipgloss.Color("#E5C07B"))
	barHigh = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
)

// eighths are the partial block glyphs, index n fills n/8 of a cell.
var eighths = []string{" ", "▁", "▂", "▃", "▄", "▅", "▆", "▇", "█"}

// meter renders a horizontal bar of width cells filled to level in [0, 1].
func meter(level float64, width int) string {
	if width < 1 {
		return ""
	}
	filled := int(clamp01(level)*float64(width) + 0.5)
	bar := make([]rune, width)
	for i := range bar {
		if i < filled {
			bar[i] = '█'
		} else {
			bar[i] = '·'
		}
	}
	return string(bar)
}

func clamp01(v float64) float64 {
	switch {
	case v != v, v < 0: // NaN or negative
		return 0
	case v > 1:
		return 1
	}
	return v
}
