package util

import "strings"

// CleanText makes user or model supplied text safe for a Postgres TEXT
// column: invalid UTF-8 and NUL bytes are dropped and surrounding space is
// trimmed.
func CleanText(value string) string {
	if value == "" {
		return value
	}
	cleaned := strings.ToValidUTF8(value, "")
	return strings.TrimSpace(strings.ReplaceAll(cleaned, "\x00", ""))
}
