package ocr

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrIdentifierNotFound reports that the recognized text contains no valid
// passport identifier.
var ErrIdentifierNotFound = errors.New("no passport identifier found")

// Accepted identifier shapes. Digit-only is tried before letter+digit at
// every search stage because digit-only identifiers dominate the target
// document family.
var (
	digitPattern       = regexp.MustCompile(`\b[0-9]{9}\b`)
	letterDigitPattern = regexp.MustCompile(`\b[A-Z][0-9]{8}\b`)
)

// DefaultKeywords are the document-field labels the extractor searches near,
// in priority order.
var DefaultKeywords = []string{
	"DOCUMENT NUMBER",
	"PASSPORT NO",
	"DOCUMENT NO",
	"PASSPORT NUMBER",
}

// DefaultSearchWindow is the number of characters after a keyword match that
// are searched preferentially.
const DefaultSearchWindow = 300

// ExtractorConfig carries the tuning knobs of the keyword-proximity search.
// Zero values fall back to the defaults.
type ExtractorConfig struct {
	Keywords     []string
	SearchWindow int
}

// Extractor finds a validated passport identifier in normalized OCR text.
type Extractor struct {
	keywords []string
	window   int
}

// NewExtractor builds an extractor from the given configuration. Keywords are
// upper-cased so they match normalized text.
func NewExtractor(cfg ExtractorConfig) *Extractor {
	keywords := cfg.Keywords
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	normalized := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToUpper(strings.TrimSpace(kw))
		if kw != "" {
			normalized = append(normalized, kw)
		}
	}
	window := cfg.SearchWindow
	if window <= 0 {
		window = DefaultSearchWindow
	}
	return &Extractor{keywords: normalized, window: window}
}

// Extract searches normalized text for a passport identifier. Keyword
// windows are searched first, in keyword order, then the full text. Within
// each stage the 9-digit shape wins over the letter+8-digit shape.
func (e *Extractor) Extract(normalized string) (string, error) {
	if normalized == "" {
		return "", fmt.Errorf("%w: no text provided", ErrIdentifierNotFound)
	}

	for _, keyword := range e.keywords {
		idx := strings.Index(normalized, keyword)
		if idx < 0 {
			continue
		}
		end := idx + e.window
		if end > len(normalized) {
			end = len(normalized)
		}
		if id := matchIdentifier(normalized[idx:end]); id != "" {
			return id, nil
		}
	}

	if id := matchIdentifier(normalized); id != "" {
		return id, nil
	}

	return "", fmt.Errorf("%w: expected 9 digits or 1 letter followed by 8 digits", ErrIdentifierNotFound)
}

func matchIdentifier(text string) string {
	if m := digitPattern.FindString(text); m != "" {
		return m
	}
	return letterDigitPattern.FindString(text)
}
