package stereo

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"stereocast/internal/frame"
)

// Synthesize composes a stereo pair into one presentable output frame
// according to the given parameters. It is a pure function: identical
// inputs always produce byte-identical output, and no state is carried
// between calls, so frames from different sessions may be synthesized in
// parallel.
//
// Side-by-side modes keep the source layout (full combined width); the
// offset is applied as a depth cue by cropping a centered sub-window of
// width (half - offset) out of each eye and scaling it back to the half
// slot. Anaglyph modes overlay both eyes onto one half-resolution canvas
// with the eyes shifted apart by the offset.
func Synthesize(pair frame.StereoPair, params Params) *frame.Frame {
	switch params.Mode {
	case SideBySideCrossEye:
		return sideBySide(pair.Right, pair.Left, params.Offset)
	case AnaglyphRedCyan:
		return anaglyph(pair, params.Offset, AnaglyphRedCyan)
	case AnaglyphGreenMagenta:
		return anaglyph(pair, params.Offset, AnaglyphGreenMagenta)
	default:
		return sideBySide(pair.Left, pair.Right, params.Offset)
	}
}

// sideBySide lays two eyes out as [first | second] at full combined width.
func sideBySide(first, second *frame.Frame, offset int) *frame.Frame {
	half := first.Width
	height := first.Height

	// The crop must never produce an empty window.
	if offset > half-2 {
		offset = half - 2
	}
	if offset < 0 {
		offset = 0
	}
	cropWidth := half - offset

	// No crop requested: the output is the plain concatenation and the
	// scaler must not get a chance to resample it.
	if cropWidth == half {
		out := frame.New(2*half, height)
		blit(out, first, 0)
		blit(out, second, half)
		return out
	}

	canvas := image.NewRGBA(image.Rect(0, 0, 2*half, height))
	placeEye(canvas, image.Rect(0, 0, half, height), first, cropWidth)
	placeEye(canvas, image.Rect(half, 0, 2*half, height), second, cropWidth)
	return frame.FromImage(canvas)
}

// placeEye scales the centered cropWidth-wide sub-window of eye into the
// given slot of the canvas.
func placeEye(canvas *image.RGBA, slot image.Rectangle, eye *frame.Frame, cropWidth int) {
	x0 := (eye.Width - cropWidth) / 2
	src := eye.ToRGBA()
	srcRect := image.Rect(x0, 0, x0+cropWidth, eye.Height)
	xdraw.ApproxBiLinear.Scale(canvas, slot, src, srcRect, xdraw.Src, nil)
}

// blit copies a whole eye into the output frame starting at column x0.
func blit(dst *frame.Frame, eye *frame.Frame, x0 int) {
	rowBytes := eye.Width * 3
	for y := 0; y < eye.Height; y++ {
		di := dst.PixOffset(x0, y)
		copy(dst.Pix[di:di+rowBytes], eye.Pix[y*rowBytes:(y+1)*rowBytes])
	}
}

// anaglyph composes both eyes onto one half-resolution canvas. The left
// eye is shifted right by offset and the right eye left by offset; the
// border a shift exposes is filled by replicating the nearest edge pixel.
func anaglyph(pair frame.StereoPair, offset int, mode Mode) *frame.Frame {
	width := pair.Left.Width
	height := pair.Left.Height
	out := frame.New(width, height)

	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			lx := clampColumn(x-offset, width)
			rx := clampColumn(x+offset, width)

			lleft := luma(pair.Left.RGB(lx, y))
			lright := luma(pair.Right.RGB(rx, y))

			if mode == AnaglyphGreenMagenta {
				out.SetRGB(x, y, lright, lleft, lright)
			} else {
				out.SetRGB(x, y, lleft, lright, lright)
			}
		}
	}
	return out
}

func clampColumn(x, width int) int {
	if x < 0 {
		return 0
	}
	if x >= width {
		return width - 1
	}
	return x
}

// luma converts a pixel to its BT.601 luminance with integer arithmetic,
// matching the grayscale conversion the eyes go through before channel
// assignment.
func luma(r, g, b uint8) uint8 {
	return uint8((299*int(r) + 587*int(g) + 114*int(b)) / 1000)
}
