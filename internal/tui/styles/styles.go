package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/Iron-Ham/arbiter/internal/resource"
)

var (
	// Colors - all colors meet WCAG AA contrast (4.5:1) on both black and dark surfaces
	PrimaryColor   = lipgloss.Color("#A78BFA") // Purple (violet-400)
	SecondaryColor = lipgloss.Color("#10B981") // Green
	WarningColor   = lipgloss.Color("#F59E0B") // Amber
	ErrorColor     = lipgloss.Color("#F87171") // Red (red-400)
	MutedColor     = lipgloss.Color("#9CA3AF") // Gray
	SurfaceColor   = lipgloss.Color("#1F2937") // Dark surface
	TextColor      = lipgloss.Color("#F9FAFB") // Light text
	BorderColor    = lipgloss.Color("#6B7280") // Gray (gray-500)

	// Access colors
	AccessBlockingColor = lipgloss.Color("#F87171") // Red
	AccessSharedColor   = lipgloss.Color("#10B981") // Green
	AccessNoneColor     = lipgloss.Color("#9CA3AF") // Gray
	AccessUnknownColor  = lipgloss.Color("#FB923C") // Orange

	// Convenience styles for colors
	Primary   = lipgloss.NewStyle().Foreground(PrimaryColor)
	Secondary = lipgloss.NewStyle().Foreground(SecondaryColor)
	Warning   = lipgloss.NewStyle().Foreground(WarningColor)
	Error     = lipgloss.NewStyle().Foreground(ErrorColor)
	Muted     = lipgloss.NewStyle().Foreground(MutedColor)
	Text      = lipgloss.NewStyle().Foreground(TextColor)

	// Base styles
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(PrimaryColor).
		MarginBottom(1)

	Subtitle = lipgloss.NewStyle().
			Foreground(MutedColor).
			Italic(true)

	// Table cells
	TableHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			Padding(0, 1)

	TableCell = lipgloss.NewStyle().
			Padding(0, 1)

	TableSelf = lipgloss.NewStyle().
			Bold(true).
			Foreground(TextColor).
			Padding(0, 1)

	// Help bar
	HelpBar = lipgloss.NewStyle().
		Foreground(MutedColor).
		MarginTop(1)

	HelpKey = lipgloss.NewStyle().
		Bold(true).
		Foreground(SecondaryColor)

	// Footer / status bar
	StatusBar = lipgloss.NewStyle().
			Foreground(TextColor).
			Background(SurfaceColor).
			Padding(0, 1)

	// Event log area
	EventLog = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(BorderColor).
			Padding(0, 1)

	// Error message
	ErrorMsg = lipgloss.NewStyle().
			Foreground(ErrorColor).
			Bold(true)

	// Success message
	SuccessMsg = lipgloss.NewStyle().
			Foreground(SecondaryColor).
			Bold(true)

	// Warning message
	WarningMsg = lipgloss.NewStyle().
			Foreground(WarningColor).
			Bold(true)
)

// AccessColor returns the color for an access level
func AccessColor(a resource.Access) lipgloss.Color {
	switch a {
	case resource.AccessBlocking:
		return AccessBlockingColor
	case resource.AccessShared:
		return AccessSharedColor
	case resource.AccessUnknown:
		return AccessUnknownColor
	default:
		return AccessNoneColor
	}
}

// AccessIcon returns an icon for an access level
func AccessIcon(a resource.Access) string {
	switch a {
	case resource.AccessBlocking:
		return "●"
	case resource.AccessShared:
		return "◐"
	case resource.AccessUnknown:
		return "?"
	default:
		return "○"
	}
}

// Access renders an access level with its icon and color
func Access(a resource.Access) string {
	return lipgloss.NewStyle().Foreground(AccessColor(a)).Render(AccessIcon(a) + " " + a.String())
}

// ResultStyle returns the message style for a negotiation result
func ResultStyle(r resource.Result) lipgloss.Style {
	switch r {
	case resource.ResultSuccess:
		return SuccessMsg
	case resource.ResultDeny:
		return WarningMsg
	default:
		return ErrorMsg
	}
}
