package scanning

import (
	"bytes"
	"fmt"
	"log/slog"

	"github.com/disintegration/imaging"
)

const (
	// MaxImageBytes is the inbound payload ceiling of the model endpoint
	MaxImageBytes = 1024 * 1024

	shrinkFactor = 0.9
	minDimension = 100
	jpegQuality  = 75
)

// PreparedImage is an image ready to be attached to a model request
type PreparedImage struct {
	Data      []byte
	MediaType string
	Width     int
	Height    int
	Passes    int // resize passes performed, 0 when the original was used
}

// Reducer shrinks images until their encoded size fits a byte budget
type Reducer struct {
	logger *slog.Logger
}

// NewReducer creates a Reducer. A nil logger uses slog.Default().
func NewReducer(logger *slog.Logger) *Reducer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reducer{logger: logger}
}

// Reduce returns an encoding of imageData that is at most maxSizeBytes long.
//
// JPEG, PNG and GIF input that already fits is returned unchanged. Anything
// else is scaled by 0.9 per pass, compounding, and re-encoded as JPEG until
// it fits. ErrImageTooSmallToShrink is returned once either side would drop
// to 100 pixels or less.
func (r *Reducer) Reduce(imageData []byte, maxSizeBytes int) (*PreparedImage, error) {
	img, format, err := decodeImage(imageData)
	if err != nil {
		return nil, err
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	if mediaType, ok := nativeMediaTypes[format]; ok && len(imageData) <= maxSizeBytes {
		return &PreparedImage{
			Data:      imageData,
			MediaType: mediaType,
			Width:     width,
			Height:    height,
		}, nil
	}

	for passes := 1; ; passes++ {
		width, height = shrink(width), shrink(height)
		if width <= minDimension || height <= minDimension {
			return nil, fmt.Errorf("%w: reached %dx%d without fitting %d bytes",
				ErrImageTooSmallToShrink, width, height, maxSizeBytes)
		}

		resized := imaging.Resize(img, width, height, imaging.Lanczos)
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
			return nil, fmt.Errorf("encoding JPEG: %w", err)
		}

		if buf.Len() <= maxSizeBytes {
			return &PreparedImage{
				Data:      buf.Bytes(),
				MediaType: "image/jpeg",
				Width:     width,
				Height:    height,
				Passes:    passes,
			}, nil
		}

		r.logger.Info("Resized image still over budget",
			"pass", passes,
			"width", width,
			"height", height,
			"size", buf.Len(),
			"max_size", maxSizeBytes,
		)
	}
}

// shrink applies one shrink pass to a dimension, truncating toward zero
func shrink(n int) int {
	return int(float64(n) * shrinkFactor)
}
