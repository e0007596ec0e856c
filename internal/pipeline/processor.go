// Package pipeline sequences the passport extraction stages over a decoded
// image: bounded resize, OCR and identifier extraction, face detection,
// validation and cropping. Every failure it returns is one of the typed
// kinds in Taxonomy.
package pipeline

import (
	"context"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/Max0Past/passport-api/internal/facedetect"
	"github.com/Max0Past/passport-api/internal/imageutil"
	"github.com/Max0Past/passport-api/internal/ocr"
)

// Defaults for the tuning knobs in Config.
const (
	DefaultMaxWidth        = 1920
	DefaultMaxHeight       = 1080
	DefaultPaddingFraction = 0.1
)

// Config carries the pipeline tuning knobs. Zero values fall back to the
// defaults.
type Config struct {
	MaxWidth        int
	MaxHeight       int
	PaddingFraction float64
}

func (c Config) withDefaults() Config {
	if c.MaxWidth <= 0 {
		c.MaxWidth = DefaultMaxWidth
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = DefaultMaxHeight
	}
	if c.PaddingFraction <= 0 {
		c.PaddingFraction = DefaultPaddingFraction
	}
	return c
}

// Result is the outcome of one successful pipeline run. It is assembled once
// and never mutated.
type Result struct {
	PassportID       string
	Face             image.Image
	OriginalFilename string
}

// Processor runs the extraction pipeline. Construct one at process start and
// share it; the engine and detector it holds must be safe for concurrent use.
type Processor struct {
	engine    ocr.Engine
	detector  facedetect.Detector
	extractor *ocr.Extractor
	cfg       Config
	logger    *zap.Logger
}

// NewProcessor wires the capability providers into a processor.
func NewProcessor(engine ocr.Engine, detector facedetect.Detector, extractor *ocr.Extractor, cfg Config, logger *zap.Logger) *Processor {
	return &Processor{
		engine:    engine,
		detector:  detector,
		extractor: extractor,
		cfg:       cfg.withDefaults(),
		logger:    logger.Named("pipeline"),
	}
}

// Process extracts the passport identifier and the cropped face from a
// decoded image. Stages run in strict order with no retries; the first
// failure wins and no partial result is ever returned. The resize runs once
// and feeds both branches, so face coordinates are valid in the returned
// image.
func (p *Processor) Process(ctx context.Context, img image.Image, originalFilename string) (*Result, error) {
	working := imageutil.FitWithinBounds(img, p.cfg.MaxWidth, p.cfg.MaxHeight)
	if working != img {
		p.logger.Debug("resized oversized image",
			zap.Int("width", working.Bounds().Dx()),
			zap.Int("height", working.Bounds().Dy()))
	}

	passportID, err := p.extractIdentifier(ctx, working)
	if err != nil {
		return nil, ensureTyped(err)
	}

	face, err := p.extractFace(ctx, working)
	if err != nil {
		return nil, ensureTyped(err)
	}

	return &Result{
		PassportID:       passportID,
		Face:             face,
		OriginalFilename: originalFilename,
	}, nil
}

func (p *Processor) extractIdentifier(ctx context.Context, img image.Image) (string, error) {
	lines, err := p.engine.Recognize(ctx, img)
	if err != nil {
		return "", fmt.Errorf("ocr recognition: %w", err)
	}
	if len(lines) == 0 {
		return "", ocr.ErrNoTextDetected
	}

	normalized := ocr.Normalize(ocr.JoinLines(lines))
	if normalized == "" {
		return "", ocr.ErrNoTextDetected
	}
	p.logger.Debug("recognized text", zap.Int("lines", len(lines)), zap.Int("chars", len(normalized)))

	return p.extractor.Extract(normalized)
}

func (p *Processor) extractFace(ctx context.Context, img image.Image) (image.Image, error) {
	boxes, err := p.detector.Detect(ctx, img)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", facedetect.ErrFaceLocator, err)
	}
	p.logger.Debug("detected faces", zap.Int("count", len(boxes)))

	box, err := facedetect.ValidateSingleFace(boxes)
	if err != nil {
		return nil, err
	}

	return facedetect.CropWithPadding(img, box, p.cfg.PaddingFraction)
}
