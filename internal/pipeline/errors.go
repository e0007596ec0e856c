package pipeline

import (
	"errors"
	"fmt"

	"github.com/Max0Past/passport-api/internal/facedetect"
	"github.com/Max0Past/passport-api/internal/imageutil"
	"github.com/Max0Past/passport-api/internal/ocr"
)

// ErrPipelineFailure is the catch-all kind wrapping any failure that is not
// already part of the taxonomy, so the boundary never sees an unrecognized
// error shape.
var ErrPipelineFailure = errors.New("passport processing failed")

// Taxonomy lists every typed failure kind the pipeline may surface, in the
// order boundary layers should match them.
var Taxonomy = []error{
	imageutil.ErrUnreadableImage,
	imageutil.ErrUnsupportedFileType,
	ocr.ErrNoTextDetected,
	ocr.ErrIdentifierNotFound,
	facedetect.ErrFaceLocator,
	facedetect.ErrNoFaceDetected,
	facedetect.ErrMultipleFacesDetected,
	facedetect.ErrEmptyCropRegion,
	ErrPipelineFailure,
}

// IsTyped reports whether err carries one of the taxonomy kinds.
func IsTyped(err error) bool {
	for _, kind := range Taxonomy {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// ensureTyped passes typed errors through unchanged and wraps anything else
// into the catch-all kind, preserving the original message.
func ensureTyped(err error) error {
	if err == nil || IsTyped(err) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrPipelineFailure, err)
}
