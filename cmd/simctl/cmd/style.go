package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Theme holds the color scheme for terminal output.
type Theme struct {
	Queued   lipgloss.Color
	Running  lipgloss.Color
	Finished lipgloss.Color
	Error    lipgloss.Color
	Hint     lipgloss.Color
}

var defaultTheme = Theme{
	Queued:   lipgloss.Color("#5FAFD7"), // light blue
	Running:  lipgloss.Color("#FFAF00"), // amber
	Finished: lipgloss.Color("#00D787"), // green
	Error:    lipgloss.Color("#FF005F"), // red
	Hint:     lipgloss.Color("#6C6C6C"), // dim gray
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true)
	labelStyle = lipgloss.NewStyle().Foreground(defaultTheme.Hint)
)

func (t Theme) stateStyle(state string) lipgloss.Style {
	switch state {
	case "queued":
		return lipgloss.NewStyle().Foreground(t.Queued)
	case "running":
		return lipgloss.NewStyle().Foreground(t.Running)
	case "finished":
		return lipgloss.NewStyle().Foreground(t.Finished).Bold(true)
	default:
		return lipgloss.NewStyle().Foreground(t.Error)
	}
}

func stateIcon(state string) string {
	switch state {
	case "finished":
		return "✓"
	case "running":
		return "⏳"
	case "queued":
		return "◯"
	default:
		return "•"
	}
}

func colorizeState(state string) string {
	return defaultTheme.stateStyle(state).Render(stateIcon(state) + " " + state)
}

// progressBar renders pct as a fixed-width bar.
func progressBar(pct, width int) string {
	pct = min(max(pct, 0), 100)
	filled := pct * width / 100
	bar := ""
	for i := range width {
		if i < filled {
			bar += "█"
		} else {
			bar += "░"
		}
	}
	return fmt.Sprintf("%s %3d%%", bar, pct)
}

func formatScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return strconv.FormatFloat(*score, 'f', 4, 64)
}

func relativeTime(t time.Time) string {
	duration := time.Since(t)

	if duration < time.Minute {
		return fmt.Sprintf("%ds", int(duration.Seconds()))
	} else if duration < time.Hour {
		return fmt.Sprintf("%dm", int(duration.Minutes()))
	} else if duration < 24*time.Hour {
		return fmt.Sprintf("%dh", int(duration.Hours()))
	}
	days := int(duration.Hours() / 24)
	if days == 1 {
		return "1 day"
	}
	return fmt.Sprintf("%d days", days)
}
