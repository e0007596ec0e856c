package ocr

import (
	"context"
	"errors"
	"image"
	"strings"
)

// ErrNoTextDetected reports that the OCR engine produced no recognized lines
// for the image.
var ErrNoTextDetected = errors.New("no text detected in image")

// TextLine is a single recognized line of text with its bounding box in image
// pixel coordinates and the engine's confidence in [0, 1].
type TextLine struct {
	Text       string
	Bounds     image.Rectangle
	Confidence float64
}

// Engine is the OCR provider contract: one image in, recognized lines out.
// Implementations must be safe for concurrent use; they are constructed once
// at process start and shared across requests.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, img image.Image) ([]TextLine, error)
}

// JoinLines concatenates recognized lines into the text block the identifier
// extractor searches.
func JoinLines(lines []TextLine) string {
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		parts = append(parts, line.Text)
	}
	return strings.Join(parts, "\n")
}
