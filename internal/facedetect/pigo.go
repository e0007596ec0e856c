package facedetect

import (
	"context"
	"fmt"
	"image"

	pigo "github.com/esimov/pigo/core"
)

// Detection parameters. The cascade walks an image pyramid with scale step
// 1.1 and rejects candidates smaller than 50x50 pixels. Pigo has no
// minNeighbors vote; overlapping detections are merged by IoU clustering and
// the merged cluster quality is cut off at qualityThreshold instead.
const (
	minFaceSize      = 50
	maxFaceSize      = 2000
	scaleFactor      = 1.1
	shiftFactor      = 0.1
	clusterIoU       = 0.2
	qualityThreshold = 5.0
)

// PigoDetector implements Detector on the pure-Go Pico cascade. The unpacked
// classifier is read-only during detection, so one instance serves all
// requests concurrently.
type PigoDetector struct {
	classifier *pigo.Pigo
}

// NewPigoDetector unpacks a binary Pico cascade (the stock "facefinder"
// frontal-face cascade). A cascade that fails to unpack is a startup fault.
func NewPigoDetector(cascade []byte) (*PigoDetector, error) {
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, fmt.Errorf("unpack face cascade: %w", err)
	}
	return &PigoDetector{classifier: classifier}, nil
}

// Name identifies the backend.
func (d *PigoDetector) Name() string { return "pigo" }

// Detect converts the image to the grayscale plane the cascade consumes and
// returns the clustered candidate boxes. An empty slice means no face.
func (d *PigoDetector) Detect(ctx context.Context, img image.Image) ([]FaceBox, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	src := pigo.ImgToNRGBA(img)
	pixels := pigo.RgbToGrayscale(src)
	cols := src.Bounds().Dx()
	rows := src.Bounds().Dy()

	maxSize := maxFaceSize
	if cols < maxSize {
		maxSize = cols
	}
	if rows < maxSize {
		maxSize = rows
	}

	params := pigo.CascadeParams{
		MinSize:     minFaceSize,
		MaxSize:     maxSize,
		ShiftFactor: shiftFactor,
		ScaleFactor: scaleFactor,
		ImageParams: pigo.ImageParams{
			Pixels: pixels,
			Rows:   rows,
			Cols:   cols,
			Dim:    cols,
		},
	}

	detections := d.classifier.RunCascade(params, 0.0)
	detections = d.classifier.ClusterDetections(detections, clusterIoU)

	boxes := make([]FaceBox, 0, len(detections))
	for _, det := range detections {
		if det.Q < qualityThreshold {
			continue
		}
		half := det.Scale / 2
		boxes = append(boxes, FaceBox{
			X:      det.Col - half,
			Y:      det.Row - half,
			Width:  det.Scale,
			Height: det.Scale,
		})
	}
	return boxes, nil
}
