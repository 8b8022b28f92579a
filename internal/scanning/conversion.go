package scanning

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder

	"github.com/disintegration/imaging"
	"github.com/gen2brain/go-fitz"
	"github.com/gen2brain/heic"
)

// maxDecodePixels bounds the frame size accepted before a full decode
const maxDecodePixels = 64 * 1024 * 1024

// nativeMediaTypes are the decoded formats the model accepts without re-encoding
var nativeMediaTypes = map[string]string{
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
}

// decodeImage decodes a receipt photo or scan. The returned format is the
// name registered with the image package, or "heic"/"pdf". JPEG input is
// rotated according to its EXIF orientation tag.
func decodeImage(data []byte) (image.Image, string, error) {
	switch {
	case isPDFFormat(data):
		img, err := pdfToImage(data)
		if err != nil {
			return nil, "", fmt.Errorf("%w: %w", ErrDecodeImage, err)
		}
		return img, "pdf", nil
	case isHEICFormat(data):
		config, err := heic.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("%w: HEIC/HEIF: %w", ErrDecodeImage, err)
		}
		if err := checkPixelCount(config); err != nil {
			return nil, "", err
		}
		// Go's standard image package doesn't support HEIC
		img, err := heic.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, "", fmt.Errorf("%w: HEIC/HEIF: %w", ErrDecodeImage, err)
		}
		return img, "heic", nil
	}

	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: supported formats are JPEG, PNG, GIF, HEIC, HEIF, PDF: %w", ErrDecodeImage, err)
	}
	if err := checkPixelCount(config); err != nil {
		return nil, "", err
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %w", ErrDecodeImage, format, err)
	}
	return img, format, nil
}

// checkPixelCount rejects frames whose header declares more than maxDecodePixels
func checkPixelCount(config image.Config) error {
	if config.Width <= 0 || config.Height <= 0 {
		return fmt.Errorf("%w: invalid dimensions %dx%d", ErrDecodeImage, config.Width, config.Height)
	}
	if int64(config.Width)*int64(config.Height) > maxDecodePixels {
		return fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrDecodeImage, config.Width, config.Height, maxDecodePixels)
	}
	return nil
}

// pdfToImage renders the first page of a PDF (most receipts are single page)
func pdfToImage(pdfData []byte) (image.Image, error) {
	doc, err := fitz.NewFromMemory(pdfData)
	if err != nil {
		return nil, fmt.Errorf("opening PDF: %w", err)
	}
	defer doc.Close()

	img, err := doc.Image(0)
	if err != nil {
		return nil, fmt.Errorf("rendering PDF page: %w", err)
	}
	return img, nil
}

func isPDFFormat(data []byte) bool {
	return bytes.HasPrefix(data, []byte("%PDF-"))
}

// isHEICFormat checks if the image data is in HEIC/HEIF format
// HEIC files carry an ftyp box at offset 4 with a HEIC-related brand
func isHEICFormat(data []byte) bool {
	if len(data) < 12 || string(data[4:8]) != "ftyp" {
		return false
	}
	switch string(data[8:12]) {
	case "heic", "heix", "heif", "mif1", "msf1":
		return true
	}
	return false
}
