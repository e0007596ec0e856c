package imageutil

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
)

// ErrUnreadableImage reports that the uploaded bytes could not be decoded
// into a pixel buffer.
var ErrUnreadableImage = errors.New("unreadable image")

// ErrUnsupportedFileType reports an upload whose filename extension is not in
// the accepted set.
var ErrUnsupportedFileType = errors.New("unsupported file type")

var supportedExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".gif"}

// ValidateFilename checks the upload filename against the supported image
// extensions.
func ValidateFilename(filename string) error {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 {
		return fmt.Errorf("%w: missing extension", ErrUnsupportedFileType)
	}
	ext := strings.ToLower(filename[idx:])
	for _, supported := range supportedExtensions {
		if ext == supported {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedFileType, ext, strings.Join(supportedExtensions, ", "))
}

// Decode turns encoded image bytes into a pixel buffer. The format is
// detected from the registered codecs (jpeg, png, gif, bmp).
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableImage, err)
	}
	return img, nil
}

// FitWithinBounds downscales the image to fit maxWidth x maxHeight while
// preserving aspect ratio. Images already within bounds are returned
// unchanged. Downscaling uses the Box filter, which averages the source area
// covered by each destination pixel.
func FitWithinBounds(img image.Image, maxWidth, maxHeight int) image.Image {
	bounds := img.Bounds()
	if bounds.Dx() <= maxWidth && bounds.Dy() <= maxHeight {
		return img
	}
	return imaging.Fit(img, maxWidth, maxHeight, imaging.Box)
}

// EncodePNG serializes the image to PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ToBase64PNG serializes the image to PNG and returns it base64-encoded for
// inclusion in a JSON response.
func ToBase64PNG(img image.Image) (string, error) {
	data, err := EncodePNG(img)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
