package scoring

import "strings"

// SanitizeUTF8 replaces invalid UTF-8 sequences with U+FFFD and drops NUL
// bytes so extracted text is safe to send to an LLM or store.
func SanitizeUTF8(s string) string {
	s = strings.ToValidUTF8(s, "�")
	if strings.IndexByte(s, 0) >= 0 {
		s = strings.ReplaceAll(s, "\x00", "")
	}
	return s
}

// truncate cuts s to maxLen runes, appending an ellipsis when shortened.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
