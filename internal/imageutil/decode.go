// Package imageutil decodes uploaded photos into pixel buffers.
package imageutil

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image is a decoded upload. Raw keeps the original bytes so they can be
// forwarded to the face service without re-encoding.
type Image struct {
	Raw    []byte
	Pixels image.Image
	Format string
}

// Bounds returns the pixel bounds of the decoded image.
func (i *Image) Bounds() image.Rectangle {
	return i.Pixels.Bounds()
}

// Decoder decodes uploads with the registered image formats.
type Decoder struct{}

// Decode implements the attendance decoder contract.
func (Decoder) Decode(data []byte) (*Image, bool) {
	return Decode(data)
}

// Decode decodes data as jpeg, png, gif, bmp, tiff or webp.
// It returns false for empty, corrupt or unsupported input and never panics.
func Decode(data []byte) (img *Image, ok bool) {
	if len(data) == 0 {
		return nil, false
	}

	defer func() {
		if r := recover(); r != nil {
			img, ok = nil, false
		}
	}()

	pixels, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, false
	}
	b := pixels.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, false
	}

	return &Image{Raw: data, Pixels: pixels, Format: format}, true
}
