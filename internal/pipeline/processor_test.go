package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"testing"

	"go.uber.org/zap"

	"github.com/Max0Past/passport-api/internal/facedetect"
	"github.com/Max0Past/passport-api/internal/imageutil"
	"github.com/Max0Past/passport-api/internal/ocr"
)

type stubEngine struct {
	lines []ocr.TextLine
	err   error
	calls int
	seen  []image.Image
}

func (s *stubEngine) Name() string { return "stub" }

func (s *stubEngine) Recognize(ctx context.Context, img image.Image) ([]ocr.TextLine, error) {
	s.calls++
	s.seen = append(s.seen, img)
	return s.lines, s.err
}

type stubDetector struct {
	boxes []facedetect.FaceBox
	err   error
	seen  []image.Image
}

func (s *stubDetector) Name() string { return "stub" }

func (s *stubDetector) Detect(ctx context.Context, img image.Image) ([]facedetect.FaceBox, error) {
	s.seen = append(s.seen, img)
	return s.boxes, s.err
}

func textLines(texts ...string) []ocr.TextLine {
	lines := make([]ocr.TextLine, 0, len(texts))
	for _, text := range texts {
		lines = append(lines, ocr.TextLine{Text: text, Confidence: 0.9})
	}
	return lines
}

func newTestProcessor(engine ocr.Engine, detector facedetect.Detector) *Processor {
	return NewProcessor(engine, detector, ocr.NewExtractor(ocr.ExtractorConfig{}), Config{}, zap.NewNop())
}

func testImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 251), G: uint8(y % 241), B: uint8((x + y) % 239), A: 255})
		}
	}
	return img
}

func TestProcessSuccess(t *testing.T) {
	engine := &stubEngine{lines: textLines("Document Number", "A12345678", "EXP 2030")}
	detector := &stubDetector{boxes: []facedetect.FaceBox{{X: 10, Y: 10, Width: 100, Height: 100}}}
	processor := newTestProcessor(engine, detector)

	result, err := processor.Process(context.Background(), testImage(200, 200), "passport.png")
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if result.PassportID != "A12345678" {
		t.Fatalf("expected A12345678, got %s", result.PassportID)
	}
	if result.OriginalFilename != "passport.png" {
		t.Fatalf("unexpected filename: %s", result.OriginalFilename)
	}
	bounds := result.Face.Bounds()
	if bounds.Dx() != 120 || bounds.Dy() != 120 {
		t.Fatalf("expected 120x120 face crop, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestProcessBothBranchesSeeSameImage(t *testing.T) {
	engine := &stubEngine{lines: textLines("123456789")}
	detector := &stubDetector{boxes: []facedetect.FaceBox{{X: 5, Y: 5, Width: 60, Height: 60}}}
	processor := newTestProcessor(engine, detector)

	// 4000x3000 exceeds 1920x1080, so both stages must receive the one
	// resized buffer, not the original.
	src := testImage(4000, 3000)
	if _, err := processor.Process(context.Background(), src, ""); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if len(engine.seen) != 1 || len(detector.seen) != 1 {
		t.Fatalf("expected one call per stage, got %d and %d", len(engine.seen), len(detector.seen))
	}
	if engine.seen[0] != detector.seen[0] {
		t.Fatal("OCR and detection received different buffers")
	}
	bounds := engine.seen[0].Bounds()
	if bounds.Dx() > 1920 || bounds.Dy() > 1080 {
		t.Fatalf("stage input not resized: %dx%d", bounds.Dx(), bounds.Dy())
	}
	if bounds == src.Bounds() {
		t.Fatal("oversized image passed through without resize")
	}
}

func TestProcessSmallImagePassesThroughUnchanged(t *testing.T) {
	engine := &stubEngine{lines: textLines("123456789")}
	detector := &stubDetector{boxes: []facedetect.FaceBox{{X: 5, Y: 5, Width: 60, Height: 60}}}
	processor := newTestProcessor(engine, detector)

	src := testImage(200, 200)
	if _, err := processor.Process(context.Background(), src, ""); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if engine.seen[0] != image.Image(src) {
		t.Fatal("in-bounds image should pass through without copying")
	}
}

func TestProcessNoTextDetected(t *testing.T) {
	for _, lines := range [][]ocr.TextLine{nil, textLines("  ", "\n")} {
		engine := &stubEngine{lines: lines}
		detector := &stubDetector{boxes: []facedetect.FaceBox{{X: 5, Y: 5, Width: 60, Height: 60}}}
		processor := newTestProcessor(engine, detector)

		_, err := processor.Process(context.Background(), testImage(100, 100), "")
		if !errors.Is(err, ocr.ErrNoTextDetected) {
			t.Fatalf("expected ErrNoTextDetected, got %v", err)
		}
	}
}

func TestProcessIdentifierNotFoundPropagates(t *testing.T) {
	engine := &stubEngine{lines: textLines("NO IDENTIFIER HERE")}
	detector := &stubDetector{boxes: []facedetect.FaceBox{{X: 5, Y: 5, Width: 60, Height: 60}}}
	processor := newTestProcessor(engine, detector)

	_, err := processor.Process(context.Background(), testImage(100, 100), "")
	if !errors.Is(err, ocr.ErrIdentifierNotFound) {
		t.Fatalf("expected ErrIdentifierNotFound, got %v", err)
	}
	if errors.Is(err, ErrPipelineFailure) {
		t.Fatal("typed error must not be wrapped into the catch-all kind")
	}
}

func TestProcessIdentifierFailureShortCircuitsFaceStage(t *testing.T) {
	engine := &stubEngine{lines: nil}
	detector := &stubDetector{boxes: []facedetect.FaceBox{{X: 5, Y: 5, Width: 60, Height: 60}}}
	processor := newTestProcessor(engine, detector)

	if _, err := processor.Process(context.Background(), testImage(100, 100), ""); err == nil {
		t.Fatal("expected error, got nil")
	}
	if len(detector.seen) != 0 {
		t.Fatal("face stage must not run after an identifier failure")
	}
}

func TestProcessDetectorFaultBecomesFaceLocatorError(t *testing.T) {
	engine := &stubEngine{lines: textLines("123456789")}
	detector := &stubDetector{err: errors.New("cascade exploded")}
	processor := newTestProcessor(engine, detector)

	_, err := processor.Process(context.Background(), testImage(100, 100), "")
	if !errors.Is(err, facedetect.ErrFaceLocator) {
		t.Fatalf("expected ErrFaceLocator, got %v", err)
	}
}

func TestProcessZeroFacesIsNoFaceDetected(t *testing.T) {
	engine := &stubEngine{lines: textLines("123456789")}
	detector := &stubDetector{boxes: nil}
	processor := newTestProcessor(engine, detector)

	_, err := processor.Process(context.Background(), testImage(100, 100), "")
	if !errors.Is(err, facedetect.ErrNoFaceDetected) {
		t.Fatalf("expected ErrNoFaceDetected, got %v", err)
	}
}

func TestProcessMultipleFacesPropagates(t *testing.T) {
	engine := &stubEngine{lines: textLines("123456789")}
	detector := &stubDetector{boxes: []facedetect.FaceBox{
		{X: 5, Y: 5, Width: 60, Height: 60},
		{X: 80, Y: 5, Width: 60, Height: 60},
	}}
	processor := newTestProcessor(engine, detector)

	_, err := processor.Process(context.Background(), testImage(200, 100), "")
	if !errors.Is(err, facedetect.ErrMultipleFacesDetected) {
		t.Fatalf("expected ErrMultipleFacesDetected, got %v", err)
	}
}

func TestProcessWrapsUnknownErrors(t *testing.T) {
	engine := &stubEngine{err: errors.New("tesseract segfault")}
	detector := &stubDetector{}
	processor := newTestProcessor(engine, detector)

	_, err := processor.Process(context.Background(), testImage(100, 100), "")
	if !errors.Is(err, ErrPipelineFailure) {
		t.Fatalf("expected ErrPipelineFailure, got %v", err)
	}
	if !bytes.Contains([]byte(err.Error()), []byte("tesseract segfault")) {
		t.Fatalf("original message must be preserved, got %q", err.Error())
	}
}

func TestProcessIsDeterministic(t *testing.T) {
	engine := &stubEngine{lines: textLines("DOCUMENT NUMBER 123456789")}
	detector := &stubDetector{boxes: []facedetect.FaceBox{{X: 10, Y: 10, Width: 100, Height: 100}}}
	processor := newTestProcessor(engine, detector)

	src := testImage(200, 200)
	first, err := processor.Process(context.Background(), src, "a.png")
	if err != nil {
		t.Fatalf("first run failed: %v", err)
	}
	second, err := processor.Process(context.Background(), src, "a.png")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}

	if first.PassportID != second.PassportID {
		t.Fatalf("identifier differs across runs: %s vs %s", first.PassportID, second.PassportID)
	}
	firstPNG, err := imageutil.EncodePNG(first.Face)
	if err != nil {
		t.Fatalf("encode first face: %v", err)
	}
	secondPNG, err := imageutil.EncodePNG(second.Face)
	if err != nil {
		t.Fatalf("encode second face: %v", err)
	}
	if !bytes.Equal(firstPNG, secondPNG) {
		t.Fatal("face crop differs across identical runs")
	}
}
