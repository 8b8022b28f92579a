package scanning

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"log/slog"
	"math/rand"
	"sync"

	. "github.com/onsi/gomega"
)

// noiseImage returns an image of random pixels, which compresses badly
func noiseImage(width, height int, seed int64) *image.RGBA {
	r := rand.New(rand.NewSource(seed))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := range img.Pix {
		if i%4 == 3 {
			img.Pix[i] = 0xff
			continue
		}
		img.Pix[i] = uint8(r.Intn(256))
	}
	return img
}

func solidImage(width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: 240, G: 240, B: 230, A: 0xff})
		}
	}
	return img
}

func encodeJPEG(img image.Image, quality int) []byte {
	var buf bytes.Buffer
	Expect(jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality})).To(Succeed())
	return buf.Bytes()
}

func encodePNG(img image.Image) []byte {
	var buf bytes.Buffer
	Expect(png.Encode(&buf, img)).To(Succeed())
	return buf.Bytes()
}

// withOrientation inserts an EXIF APP1 segment carrying the given
// orientation tag right after the JPEG SOI marker
func withOrientation(jpegData []byte, orientation uint16) []byte {
	var exif bytes.Buffer
	exif.WriteString("Exif\x00\x00")
	// big-endian TIFF header followed by IFD0 at offset 8
	exif.WriteString("MM\x00\x2a")
	binary.Write(&exif, binary.BigEndian, uint32(8))
	// a single SHORT entry for the Orientation tag, then no next IFD
	binary.Write(&exif, binary.BigEndian, uint16(1))
	binary.Write(&exif, binary.BigEndian, uint16(0x0112))
	binary.Write(&exif, binary.BigEndian, uint16(3))
	binary.Write(&exif, binary.BigEndian, uint32(1))
	binary.Write(&exif, binary.BigEndian, orientation)
	binary.Write(&exif, binary.BigEndian, uint16(0))
	binary.Write(&exif, binary.BigEndian, uint32(0))

	var out bytes.Buffer
	out.Write(jpegData[:2])
	out.Write([]byte{0xff, 0xe1})
	binary.Write(&out, binary.BigEndian, uint16(exif.Len()+2))
	out.Write(exif.Bytes())
	out.Write(jpegData[2:])
	return out.Bytes()
}

// withPNGDimensions rewrites the IHDR width and height of an encoded PNG
func withPNGDimensions(pngData []byte, width, height uint32) []byte {
	out := append([]byte{}, pngData...)
	binary.BigEndian.PutUint32(out[16:20], width)
	binary.BigEndian.PutUint32(out[20:24], height)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

// recordingHandler keeps every log record for inspection
type recordingHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordingHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *recordingHandler) WithGroup(string) slog.Handler      { return h }

// attempts returns the width and height of every over-budget resize pass
func (h *recordingHandler) attempts() [][2]int {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out [][2]int
	for _, r := range h.records {
		if r.Message != "Resized image still over budget" {
			continue
		}
		var dims [2]int
		r.Attrs(func(a slog.Attr) bool {
			switch a.Key {
			case "width":
				dims[0] = int(a.Value.Int64())
			case "height":
				dims[1] = int(a.Value.Int64())
			}
			return true
		})
		out = append(out, dims)
	}
	return out
}
