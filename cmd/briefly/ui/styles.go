// Package ui provides the visual styling for the briefly terminal client.
// Light and dark themes share the semantic colors; only surfaces flip.
package ui

import (
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	// Light Mode Colors (Default)
	LightBackground = lipgloss.Color("#f7f8fa")
	LightForeground = lipgloss.Color("#1f2937")
	LightPrimary    = lipgloss.Color("#3b5bdb") // Indigo
	LightAccent     = lipgloss.Color("#0ca678") // Teal
	LightSecondary  = lipgloss.Color("#e9ecef")
	LightMuted      = lipgloss.Color("#868e96")
	LightBorder     = lipgloss.Color("#dee2e6")
	LightCard       = lipgloss.Color("#ffffff")

	// Dark Mode Colors
	DarkBackground = lipgloss.Color("#12151c")
	DarkForeground = lipgloss.Color("#e9ecef")
	DarkPrimary    = lipgloss.Color("#748ffc")
	DarkAccent     = lipgloss.Color("#38d9a9")
	DarkSecondary  = lipgloss.Color("#1c212b")
	DarkMuted      = lipgloss.Color("#6c757d")
	DarkBorder     = lipgloss.Color("#343a40")
	DarkCard       = lipgloss.Color("#1a1f29")

	// Semantic Colors (same in both modes)
	Destructive = lipgloss.Color("#e03131")
	Success     = lipgloss.Color("#2f9e44")
	Warning     = lipgloss.Color("#f59f00")
	Info        = lipgloss.Color("#1c7ed6")
)

// Theme holds the current color scheme
type Theme struct {
	Background lipgloss.Color
	Foreground lipgloss.Color
	Primary    lipgloss.Color
	Accent     lipgloss.Color
	Secondary  lipgloss.Color
	Muted      lipgloss.Color
	Border     lipgloss.Color
	Card       lipgloss.Color
	IsDark     bool
}

// LightTheme returns the light mode theme
func LightTheme() Theme {
	return Theme{
		Background: LightBackground,
		Foreground: LightForeground,
		Primary:    LightPrimary,
		Accent:     LightAccent,
		Secondary:  LightSecondary,
		Muted:      LightMuted,
		Border:     LightBorder,
		Card:       LightCard,
		IsDark:     false,
	}
}

// DarkTheme returns the dark mode theme
func DarkTheme() Theme {
	return Theme{
		Background: DarkBackground,
		Foreground: DarkForeground,
		Primary:    DarkPrimary,
		Accent:     DarkAccent,
		Secondary:  DarkSecondary,
		Muted:      DarkMuted,
		Border:     DarkBorder,
		Card:       DarkCard,
		IsDark:     true,
	}
}

// ThemeFor returns the dark or light theme.
func ThemeFor(dark bool) Theme {
	if dark {
		return DarkTheme()
	}
	return LightTheme()
}

// DetectTheme guesses the terminal background. Used only when the user has
// no stored preference.
func DetectTheme() Theme {
	if v := os.Getenv("BRIEFLY_DARK_MODE"); v != "" {
		if dark, err := strconv.ParseBool(v); err == nil {
			return ThemeFor(dark)
		}
	}

	// COLORFGBG is "foreground;background"; ANSI 0-6 and 8 are dark backgrounds.
	if colorTerm := os.Getenv("COLORFGBG"); colorTerm != "" {
		parts := strings.Split(colorTerm, ";")
		if bgIdx, err := strconv.Atoi(parts[len(parts)-1]); err == nil {
			if (bgIdx >= 0 && bgIdx <= 6) || bgIdx == 8 {
				return DarkTheme()
			}
			return LightTheme()
		}
	}

	return LightTheme()
}

// Styles holds all the styled components
type Styles struct {
	Theme Theme

	// Layout
	Header  lipgloss.Style
	Footer  lipgloss.Style
	Content lipgloss.Style

	// Text
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Body     lipgloss.Style
	Muted    lipgloss.Style
	Bold     lipgloss.Style

	// Conversation
	Prompt        lipgloss.Style
	UserMessage   lipgloss.Style
	UserLabel     lipgloss.Style
	BotMessage    lipgloss.Style
	BotLabel      lipgloss.Style
	SystemMessage lipgloss.Style
	Cursor        lipgloss.Style

	// Status
	Success lipgloss.Style
	Error   lipgloss.Style
	Warning lipgloss.Style
	Info    lipgloss.Style

	// Components
	Spinner     lipgloss.Style
	ProgressBar lipgloss.Style
	Divider     lipgloss.Style
	Badge       lipgloss.Style
	Button      lipgloss.Style
	ButtonKey   lipgloss.Style
	Toast       lipgloss.Style
	Dialog      lipgloss.Style
}

// NewStyles creates a new Styles instance with the given theme
func NewStyles(theme Theme) Styles {
	return Styles{
		Theme: theme,

		Header: lipgloss.NewStyle().
			Background(theme.Primary).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 2).
			Bold(true),

		Footer: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Padding(0, 2),

		Content: lipgloss.NewStyle().
			Padding(0, 1),

		Title: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Subtitle: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true),

		Body: lipgloss.NewStyle().
			Foreground(theme.Foreground),

		Muted: lipgloss.NewStyle().
			Foreground(theme.Muted),

		Bold: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Bold(true),

		Prompt: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		UserMessage: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderForeground(theme.Primary),

		UserLabel: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		BotMessage: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			PaddingLeft(2).
			BorderLeft(true).
			BorderStyle(lipgloss.ThickBorder()).
			BorderForeground(theme.Accent),

		BotLabel: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Bold(true),

		SystemMessage: lipgloss.NewStyle().
			Foreground(theme.Muted).
			Italic(true).
			PaddingLeft(2),

		Cursor: lipgloss.NewStyle().
			Foreground(theme.Accent).
			Blink(true),

		Success: lipgloss.NewStyle().
			Foreground(Success).
			Bold(true),

		Error: lipgloss.NewStyle().
			Foreground(Destructive).
			Bold(true),

		Warning: lipgloss.NewStyle().
			Foreground(Warning).
			Bold(true),

		Info: lipgloss.NewStyle().
			Foreground(Info),

		Spinner: lipgloss.NewStyle().
			Foreground(theme.Accent),

		ProgressBar: lipgloss.NewStyle().
			Foreground(theme.Accent),

		Divider: lipgloss.NewStyle().
			Foreground(theme.Border),

		Badge: lipgloss.NewStyle().
			Background(theme.Accent).
			Foreground(lipgloss.Color("#ffffff")).
			Padding(0, 1).
			Bold(true),

		Button: lipgloss.NewStyle().
			Foreground(theme.Foreground).
			Background(theme.Secondary).
			Padding(0, 1).
			MarginRight(1),

		ButtonKey: lipgloss.NewStyle().
			Foreground(theme.Primary).
			Bold(true),

		Toast: lipgloss.NewStyle().
			Padding(0, 1).
			Border(lipgloss.RoundedBorder()),

		Dialog: lipgloss.NewStyle().
			Padding(1, 2).
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Warning),
	}
}

// DefaultStyles returns styles for the detected theme
func DefaultStyles() Styles {
	return NewStyles(DetectTheme())
}

// RenderDivider returns a horizontal divider
func (s Styles) RenderDivider(width int) string {
	if width < 1 {
		width = 1
	}
	return s.Divider.Render(strings.Repeat("─", width))
}
