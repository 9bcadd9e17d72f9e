package frame

import (
	"errors"
	"fmt"
	"image"
	"image/color"
)

// ErrMalformedFrame is returned when a frame cannot participate in the
// stereo pipeline: odd width, empty dimensions, or dimensions that differ
// from the ones the session was established with. It is fatal to the
// session that produced the frame.
var ErrMalformedFrame = errors.New("malformed frame")

// Frame is a packed 24-bit RGB pixel buffer. Frames are treated as
// immutable once constructed; the pipeline never writes into a frame it
// received, only into frames it allocated itself.
type Frame struct {
	Width  int
	Height int
	// Pix holds R, G, B bytes in row-major order, 3 bytes per pixel.
	Pix []uint8
}

// New allocates a zeroed (black) frame of the given dimensions.
func New(width, height int) *Frame {
	return &Frame{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

// PixOffset returns the index of the first byte of pixel (x, y).
func (f *Frame) PixOffset(x, y int) int {
	return (y*f.Width + x) * 3
}

// RGB returns the color components of pixel (x, y).
func (f *Frame) RGB(x, y int) (r, g, b uint8) {
	i := f.PixOffset(x, y)
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// SetRGB writes the color components of pixel (x, y).
func (f *Frame) SetRGB(x, y int, r, g, b uint8) {
	i := f.PixOffset(x, y)
	f.Pix[i] = r
	f.Pix[i+1] = g
	f.Pix[i+2] = b
}

// Geometry returns the frame's dimensions.
func (f *Frame) Geometry() Geometry {
	return Geometry{Width: f.Width, Height: f.Height}
}

// Clone returns a deep copy of the frame.
func (f *Frame) Clone() *Frame {
	c := New(f.Width, f.Height)
	copy(c.Pix, f.Pix)
	return c
}

// FromImage converts any image into a Frame, dropping alpha.
func FromImage(img image.Image) *Frame {
	bounds := img.Bounds()
	f := New(bounds.Dx(), bounds.Dy())

	// Fast path for the decoders we actually use (JPEG yields YCbCr,
	// PNG yields RGBA/NRGBA); the generic path covers the rest.
	if rgba, ok := img.(*image.RGBA); ok {
		i := 0
		for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
			row := rgba.Pix[(y-bounds.Min.Y)*rgba.Stride:]
			for x := 0; x < f.Width; x++ {
				f.Pix[i] = row[x*4]
				f.Pix[i+1] = row[x*4+1]
				f.Pix[i+2] = row[x*4+2]
				i += 3
			}
		}
		return f
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			f.Pix[i] = uint8(r >> 8)
			f.Pix[i+1] = uint8(g >> 8)
			f.Pix[i+2] = uint8(b >> 8)
			i += 3
		}
	}
	return f
}

// ToRGBA converts the frame into an opaque image.RGBA for encoding and
// display.
func (f *Frame) ToRGBA() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, f.Width, f.Height))
	src := 0
	for y := 0; y < f.Height; y++ {
		dst := y * img.Stride
		for x := 0; x < f.Width; x++ {
			img.Pix[dst] = f.Pix[src]
			img.Pix[dst+1] = f.Pix[src+1]
			img.Pix[dst+2] = f.Pix[src+2]
			img.Pix[dst+3] = 0xff
			src += 3
			dst += 4
		}
	}
	return img
}

// Fill sets every pixel to the given color. Used by synthetic sources and
// tests.
func (f *Frame) Fill(c color.RGBA) {
	for i := 0; i < len(f.Pix); i += 3 {
		f.Pix[i] = c.R
		f.Pix[i+1] = c.G
		f.Pix[i+2] = c.B
	}
}

// Geometry identifies the fixed dimensions a session was established with.
type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Validate checks that the geometry is usable as a side-by-side source:
// non-empty and with an even width so it can be split into two eyes.
func (g Geometry) Validate() error {
	if g.Width <= 0 || g.Height <= 0 {
		return fmt.Errorf("%w: empty dimensions %dx%d", ErrMalformedFrame, g.Width, g.Height)
	}
	if g.Width%2 != 0 {
		return fmt.Errorf("%w: odd width %d cannot be split", ErrMalformedFrame, g.Width)
	}
	return nil
}

// Check verifies that a frame matches the session geometry. Dimension
// changes mid-stream are fatal, not retried.
func (g Geometry) Check(f *Frame) error {
	if f.Width != g.Width || f.Height != g.Height {
		return fmt.Errorf("%w: got %dx%d, session is %dx%d",
			ErrMalformedFrame, f.Width, f.Height, g.Width, g.Height)
	}
	return nil
}
