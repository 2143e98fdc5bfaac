// Package theme provides the color palettes used for terminal output.
package theme

import "github.com/charmbracelet/lipgloss"

// Theme defines the colors used when rendering panel output.
type Theme struct {
	Accent    lipgloss.Color
	Border    lipgloss.Color
	MutedFg   lipgloss.Color
	TextFg    lipgloss.Color
	SuccessFg lipgloss.Color // staged
	WarnFg    lipgloss.Color // unstaged
	ErrorFg   lipgloss.Color
	Cyan      lipgloss.Color // partially staged
	Pink      lipgloss.Color // untracked
}

// Theme names.
const (
	DraculaName        = "dracula"
	DraculaLightName   = "dracula-light"
	NordName           = "nord"
	GruvboxDarkName    = "gruvbox-dark"
	SolarizedLightName = "solarized-light"
)

// Dracula returns the Dracula theme (dark background, vibrant colors).
func Dracula() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#BD93F9"),
		Border:    lipgloss.Color("#6272A4"),
		MutedFg:   lipgloss.Color("#6272A4"),
		TextFg:    lipgloss.Color("#F8F8F2"),
		SuccessFg: lipgloss.Color("#50FA7B"),
		WarnFg:    lipgloss.Color("#FFB86C"),
		ErrorFg:   lipgloss.Color("#FF5555"),
		Cyan:      lipgloss.Color("#8BE9FD"),
		Pink:      lipgloss.Color("#FF79C6"),
	}
}

// DraculaLight returns the Dracula theme adapted for light backgrounds.
func DraculaLight() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#7C3AED"),
		Border:    lipgloss.Color("#D0D7DE"),
		MutedFg:   lipgloss.Color("#6E7781"),
		TextFg:    lipgloss.Color("#24292F"),
		SuccessFg: lipgloss.Color("#059669"),
		WarnFg:    lipgloss.Color("#D97706"),
		ErrorFg:   lipgloss.Color("#DC2626"),
		Cyan:      lipgloss.Color("#0891B2"),
		Pink:      lipgloss.Color("#DB2777"),
	}
}

// Nord returns the Nord theme.
func Nord() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#88C0D0"),
		Border:    lipgloss.Color("#4C566A"),
		MutedFg:   lipgloss.Color("#81A1C1"),
		TextFg:    lipgloss.Color("#E5E9F0"),
		SuccessFg: lipgloss.Color("#A3BE8C"),
		WarnFg:    lipgloss.Color("#EBCB8B"),
		ErrorFg:   lipgloss.Color("#BF616A"),
		Cyan:      lipgloss.Color("#88C0D0"),
		Pink:      lipgloss.Color("#B48EAD"),
	}
}

// GruvboxDark returns the Gruvbox dark theme.
func GruvboxDark() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#FABD2F"),
		Border:    lipgloss.Color("#504945"),
		MutedFg:   lipgloss.Color("#928374"),
		TextFg:    lipgloss.Color("#EBDBB2"),
		SuccessFg: lipgloss.Color("#B8BB26"),
		WarnFg:    lipgloss.Color("#FABD2F"),
		ErrorFg:   lipgloss.Color("#FB4934"),
		Cyan:      lipgloss.Color("#83A598"),
		Pink:      lipgloss.Color("#D3869B"),
	}
}

// SolarizedLight returns the Solarized light theme.
func SolarizedLight() *Theme {
	return &Theme{
		Accent:    lipgloss.Color("#268BD2"),
		Border:    lipgloss.Color("#93A1A1"),
		MutedFg:   lipgloss.Color("#93A1A1"),
		TextFg:    lipgloss.Color("#073642"),
		SuccessFg: lipgloss.Color("#859900"),
		WarnFg:    lipgloss.Color("#B58900"),
		ErrorFg:   lipgloss.Color("#DC322F"),
		Cyan:      lipgloss.Color("#2AA198"),
		Pink:      lipgloss.Color("#D33682"),
	}
}

// GetTheme returns a theme by name, or Dracula if not found.
func GetTheme(name string) *Theme {
	switch name {
	case DraculaLightName:
		return DraculaLight()
	case NordName:
		return Nord()
	case GruvboxDarkName:
		return GruvboxDark()
	case SolarizedLightName:
		return SolarizedLight()
	default:
		return Dracula()
	}
}

// IsLight returns true if the theme is a light theme.
func IsLight(name string) bool {
	return name == DraculaLightName || name == SolarizedLightName
}

// AvailableThemes returns a list of available theme names.
func AvailableThemes() []string {
	return []string{
		DraculaName,
		DraculaLightName,
		NordName,
		GruvboxDarkName,
		SolarizedLightName,
	}
}
