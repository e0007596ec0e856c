package facedetect

import (
	"errors"
	"image"
	"strings"
	"testing"
)

func TestValidateSingleFaceEmpty(t *testing.T) {
	_, err := ValidateSingleFace(nil)
	if !errors.Is(err, ErrNoFaceDetected) {
		t.Fatalf("expected ErrNoFaceDetected, got %v", err)
	}
}

func TestValidateSingleFaceMultiple(t *testing.T) {
	boxes := []FaceBox{
		{X: 10, Y: 10, Width: 50, Height: 50},
		{X: 100, Y: 10, Width: 50, Height: 50},
	}
	_, err := ValidateSingleFace(boxes)
	if !errors.Is(err, ErrMultipleFacesDetected) {
		t.Fatalf("expected ErrMultipleFacesDetected, got %v", err)
	}
	if !strings.Contains(err.Error(), "2") {
		t.Fatalf("error message should report the count, got %q", err.Error())
	}
}

func TestValidateSingleFaceOne(t *testing.T) {
	box := FaceBox{X: 5, Y: 6, Width: 70, Height: 80}
	got, err := ValidateSingleFace([]FaceBox{box})
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	if got != box {
		t.Fatalf("expected %+v, got %+v", box, got)
	}
}

func TestCropWithPaddingClampsToImage(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	box := FaceBox{X: 10, Y: 10, Width: 100, Height: 100}

	cropped, err := CropWithPadding(img, box, 0.1)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	// pad = floor(100*0.1) = 10 on each side, clamped at the origin.
	bounds := cropped.Bounds()
	if bounds.Dx() != 120 || bounds.Dy() != 120 {
		t.Fatalf("expected 120x120 crop, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}

func TestCropWithPaddingNeverExceedsImageBounds(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 300, 150))
	boxes := []FaceBox{
		{X: 0, Y: 0, Width: 300, Height: 150},
		{X: 250, Y: 100, Width: 100, Height: 100},
		{X: -20, Y: -20, Width: 60, Height: 60},
		{X: 120, Y: 40, Width: 55, Height: 70},
	}
	fractions := []float64{0, 0.1, 0.5, 2.0}

	for _, box := range boxes {
		for _, fraction := range fractions {
			cropped, err := CropWithPadding(img, box, fraction)
			if err != nil {
				if errors.Is(err, ErrEmptyCropRegion) {
					continue
				}
				t.Fatalf("box %+v fraction %v: unexpected error: %v", box, fraction, err)
			}
			bounds := cropped.Bounds()
			if bounds.Dx() > 300 || bounds.Dy() > 150 || bounds.Dx() <= 0 || bounds.Dy() <= 0 {
				t.Fatalf("box %+v fraction %v: crop %dx%d exceeds 300x150 source",
					box, fraction, bounds.Dx(), bounds.Dy())
			}
		}
	}
}

func TestCropWithPaddingDegenerateRegion(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))

	// Box entirely outside the image clamps to zero area.
	_, err := CropWithPadding(img, FaceBox{X: 500, Y: 500, Width: 40, Height: 40}, 0.1)
	if !errors.Is(err, ErrEmptyCropRegion) {
		t.Fatalf("expected ErrEmptyCropRegion, got %v", err)
	}
}

func TestCropWithPaddingZeroPadding(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 100, 100))
	cropped, err := CropWithPadding(img, FaceBox{X: 20, Y: 30, Width: 40, Height: 50}, 0)
	if err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}
	bounds := cropped.Bounds()
	if bounds.Dx() != 40 || bounds.Dy() != 50 {
		t.Fatalf("expected 40x50 crop, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}
