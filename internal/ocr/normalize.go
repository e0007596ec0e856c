package ocr

import (
	"regexp"
	"strings"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize canonicalizes raw OCR text for pattern search: upper-case,
// collapse every whitespace run (including newlines) to a single space, trim.
// Empty input yields empty output; the caller decides what that means.
func Normalize(text string) string {
	return strings.TrimSpace(whitespaceRun.ReplaceAllString(strings.ToUpper(text), " "))
}
