package validators

import "strings"

// SanitizeString trims surrounding whitespace and truncates to maxRunes
// characters without splitting a multi-byte rune.
func SanitizeString(input string, maxRunes int) string {
	trimmed := strings.TrimSpace(input)
	if maxRunes <= 0 {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) <= maxRunes {
		return trimmed
	}
	return strings.TrimSpace(string(runes[:maxRunes]))
}
