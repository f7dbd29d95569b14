// Package codec normalises generated images into the stored artifact format.
package codec

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/chai2010/webp"
	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/tiff"
)

// DefaultQuality is the lossy WebP quality used for stored covers.
const DefaultQuality = 85

var ErrDecode = errors.New("decode image")
var ErrEncode = errors.New("encode image")

// WebP re-encodes any registered input format as lossy WebP.
type WebP struct {
	Quality float32
}

// NewWebP returns a codec at DefaultQuality.
func NewWebP() *WebP {
	return &WebP{Quality: DefaultQuality}
}

func (c *WebP) ContentType() string { return "image/webp" }

func (c *WebP) Extension() string { return ".webp" }

// Reencode decodes raw, flattens it onto an opaque white RGBA canvas and
// encodes the result.
func (c *WebP) Reencode(raw []byte) ([]byte, error) {
	src, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty %s image", ErrDecode, format)
	}
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, canvas.Bounds(), src, b.Min, draw.Over)

	var out bytes.Buffer
	if err := webp.Encode(&out, canvas, &webp.Options{Quality: c.Quality}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return out.Bytes(), nil
}
