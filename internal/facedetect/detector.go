package facedetect

import (
	"context"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

var (
	// ErrFaceLocator reports a detector backend fault. Zero detected faces
	// is a valid result, not this error.
	ErrFaceLocator = errors.New("face detection failed")
	// ErrNoFaceDetected reports that no candidate face was found.
	ErrNoFaceDetected = errors.New("no face detected")
	// ErrMultipleFacesDetected reports more than one candidate face.
	ErrMultipleFacesDetected = errors.New("multiple faces detected")
	// ErrEmptyCropRegion reports that padding and clamping collapsed the
	// crop to zero area.
	ErrEmptyCropRegion = errors.New("cropped face region is empty")
)

// FaceBox is a detected face rectangle in image pixel coordinates.
// Width and Height are positive for any box a detector returns.
type FaceBox struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Detector locates candidate face regions in an image. Implementations must
// be safe for concurrent use; they are constructed once at process start and
// shared across requests.
type Detector interface {
	Name() string
	Detect(ctx context.Context, img image.Image) ([]FaceBox, error)
}

// ValidateSingleFace enforces the exactly-one-face policy over detector
// output.
func ValidateSingleFace(boxes []FaceBox) (FaceBox, error) {
	switch {
	case len(boxes) == 0:
		return FaceBox{}, fmt.Errorf("%w in the passport image", ErrNoFaceDetected)
	case len(boxes) > 1:
		return FaceBox{}, fmt.Errorf("%w: found %d, expected exactly one", ErrMultipleFacesDetected, len(boxes))
	}
	return boxes[0], nil
}

// CropWithPadding slices the face region out of the image with a margin of
// paddingFraction of the box dimensions on every side. The expanded region
// is clamped to the image bounds; a region that clamps to zero area fails.
func CropWithPadding(img image.Image, box FaceBox, paddingFraction float64) (image.Image, error) {
	padX := int(float64(box.Width) * paddingFraction)
	padY := int(float64(box.Height) * paddingFraction)

	bounds := img.Bounds()
	x0 := box.X - padX
	y0 := box.Y - padY
	x1 := box.X + box.Width + padX
	y1 := box.Y + box.Height + padY

	if x0 < 0 {
		x0 = 0
	}
	if y0 < 0 {
		y0 = 0
	}
	if x1 > bounds.Dx() {
		x1 = bounds.Dx()
	}
	if y1 > bounds.Dy() {
		y1 = bounds.Dy()
	}

	if x0 >= x1 || y0 >= y1 {
		return nil, fmt.Errorf("%w: box (%d,%d %dx%d) lies outside the %dx%d image",
			ErrEmptyCropRegion, box.X, box.Y, box.Width, box.Height, bounds.Dx(), bounds.Dy())
	}

	return imaging.Crop(img, image.Rect(x0, y0, x1, y1)), nil
}
