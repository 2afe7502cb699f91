package utils

import (
	"strings"
	"unicode"
)

// CleanPlateText upper-cases raw OCR or user input and drops all whitespace.
func CleanPlateText(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range strings.ToUpper(raw) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
