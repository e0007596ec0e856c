// Package tesseract provides the Tesseract-backed OCR engine. It requires
// the tesseract C library and language data at runtime.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/Max0Past/passport-api/internal/imageutil"
	"github.com/Max0Past/passport-api/internal/ocr"
)

// Engine implements ocr.Engine on gosseract. A gosseract client is not safe
// for concurrent use, so a fresh client is created per call instead of
// serializing requests behind a shared one.
type Engine struct {
	clientFactory func() *gosseract.Client
	languages     []string
}

// NewEngine constructs a Tesseract-backed engine. Language hints are
// three-letter trained-data names ("eng", "ukr"); none means gosseract's
// default.
func NewEngine(languages ...string) *Engine {
	return &Engine{
		clientFactory: gosseract.NewClient,
		languages:     languages,
	}
}

// Name identifies the backend.
func (e *Engine) Name() string { return "tesseract" }

// Recognize runs OCR over the image and returns the recognized text lines
// with their bounding boxes and confidences.
func (e *Engine) Recognize(ctx context.Context, img image.Image) ([]ocr.TextLine, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := imageutil.EncodePNG(img)
	if err != nil {
		return nil, err
	}

	client := e.clientFactory()
	defer client.Close()

	if err := client.SetImageFromBytes(data); err != nil {
		return nil, fmt.Errorf("set image: %w", err)
	}
	if len(e.languages) > 0 {
		if err := client.SetLanguage(e.languages...); err != nil {
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("line boxes: %w", err)
	}

	return LinesFromBoxes(boxes), nil
}

// LinesFromBoxes converts raw gosseract line boxes into engine-neutral text
// lines, dropping entries whose text is empty after trimming.
func LinesFromBoxes(boxes []gosseract.BoundingBox) []ocr.TextLine {
	lines := make([]ocr.TextLine, 0, len(boxes))
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		lines = append(lines, ocr.TextLine{
			Text:       text,
			Bounds:     box.Box,
			Confidence: box.Confidence / 100.0,
		})
	}
	return lines
}
