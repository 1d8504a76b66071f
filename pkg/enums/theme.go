package enums

import (
	"fmt"
	"strings"
)

// Theme is the UI color scheme preference.
type Theme string

const (
	ThemeLight  Theme = "light"
	ThemeDark   Theme = "dark"
	ThemeSystem Theme = "system"
)

var validThemes = []Theme{
	ThemeLight,
	ThemeDark,
	ThemeSystem,
}

// String implements fmt.Stringer.
func (t Theme) String() string {
	return string(t)
}

// IsValid reports whether the value is a known Theme.
func (t Theme) IsValid() bool {
	for _, candidate := range validThemes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTheme converts raw input into a Theme.
func ParseTheme(value string) (Theme, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	for _, candidate := range validThemes {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid theme %q", value)
}
