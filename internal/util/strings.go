package util

// TruncateString truncates a string to maxRunes characters (rune-based).
// If truncated, appends "..." to the result.
func TruncateString(s string, maxRunes int) string {
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

func Min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
