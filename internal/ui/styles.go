package ui

import "github.com/charmbracelet/lipgloss"

var (
	// TitleStyle renders the application header.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	// SubtleStyle renders secondary text (timestamps, origins).
	SubtleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	// SelectedStyle highlights the row under the cursor.
	SelectedStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("236"))

	// ChipStyle renders an inactive category chip.
	ChipStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	// ActiveChipStyle renders the selected category chip.
	ActiveChipStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	// BannerStyle renders the "new content available" banner.
	BannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("214")).
			Padding(0, 1)

	// StatusStyle renders the bottom status bar.
	StatusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Background(lipgloss.Color("236")).
			Padding(0, 1)

	// FavoriteStyle renders the favorite marker.
	FavoriteStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	// ErrorStyle renders error text.
	ErrorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("160")).
			Padding(0, 1)
)
