package sanitize

import "strings"

// Line strips CR/LF and trims whitespace. Form clients are known to smuggle
// carriage returns into single-line fields; every persisted single-line
// string goes through this.
func Line(s string) string {
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", "")
	return strings.TrimSpace(s)
}

// Summary truncates s to max bytes at a word boundary for listings.
func Summary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	i := max
	for i > 0 && i < len(s) && s[i] != ' ' {
		i--
	}
	if i <= 0 {
		i = max
	}
	return s[:i] + "…"
}
