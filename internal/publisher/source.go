package publisher

import (
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"stereocast/internal/frame"
)

// Source yields successive raw side-by-side frames of fixed geometry.
// The publisher paces calls to Next at the source's native rate.
type Source interface {
	// Geometry returns the fixed frame dimensions. Must have even width.
	Geometry() frame.Geometry

	// FPS returns the source's native frame rate.
	FPS() int

	// Next returns the next frame. A looping source never ends; a finite
	// one returns io.EOF semantics via its own error.
	Next() (*frame.Frame, error)
}

// barColors are the seven SMPTE color bar stripes used by the synthetic
// source.
var barColors = [7]color.RGBA{
	{R: 192, G: 192, B: 192}, // Gray
	{R: 192, G: 192, B: 0},   // Yellow
	{R: 0, G: 192, B: 192},   // Cyan
	{R: 0, G: 192, B: 0},     // Green
	{R: 192, G: 0, B: 192},   // Magenta
	{R: 192, G: 0, B: 0},     // Red
	{R: 0, G: 0, B: 192},     // Blue
}

// PatternSource generates a synthetic side-by-side stereo stream: color
// bars in both halves with a white block bouncing across them. The block
// is drawn at slightly different horizontal positions in the two halves,
// so it carries real disparity for eyeballing the 3D modes.
type PatternSource struct {
	geom      frame.Geometry
	fps       int
	disparity int
	tick      int
}

// NewPatternSource creates a pattern source. Width is the full
// side-by-side width and must be even.
func NewPatternSource(width, height, fps int) (*PatternSource, error) {
	geom := frame.Geometry{Width: width, Height: height}
	if err := geom.Validate(); err != nil {
		return nil, err
	}
	if fps <= 0 {
		fps = 30
	}
	return &PatternSource{geom: geom, fps: fps, disparity: 12}, nil
}

func (p *PatternSource) Geometry() frame.Geometry { return p.geom }

func (p *PatternSource) FPS() int { return p.fps }

// Next renders the next animation frame.
func (p *PatternSource) Next() (*frame.Frame, error) {
	f := frame.New(p.geom.Width, p.geom.Height)
	half := p.geom.Width / 2

	fillBars(f, 0, half)
	fillBars(f, half, half)

	// Bouncing block, left eye leads by the disparity. Tall narrow
	// frames shrink the block to keep at least one column of travel; a
	// half too narrow for any block gets bars only.
	blockSize := p.geom.Height / 8
	if limit := half - p.disparity - 1; blockSize > limit {
		blockSize = limit
	}
	if blockSize > 0 {
		span := half - blockSize - p.disparity
		pos := p.tick % (2 * span)
		if pos >= span {
			pos = 2*span - pos
		}
		y := (p.geom.Height - blockSize) / 2

		drawBlock(f, pos+p.disparity, y, blockSize)
		drawBlock(f, half+pos, y, blockSize)
	}

	p.tick++
	return f, nil
}

// fillBars paints the seven color bar stripes into one half of the frame.
// Halves narrower than seven pixels get one-pixel stripes, truncated.
func fillBars(f *frame.Frame, x0, width int) {
	barWidth := width / 7
	if barWidth == 0 {
		barWidth = 1
	}
	for y := 0; y < f.Height; y++ {
		for x := 0; x < width; x++ {
			idx := x / barWidth
			if idx >= 7 {
				idx = 6
			}
			c := barColors[idx]
			f.SetRGB(x0+x, y, c.R, c.G, c.B)
		}
	}
}

func drawBlock(f *frame.Frame, x0, y0, size int) {
	for y := y0; y < y0+size && y < f.Height; y++ {
		for x := x0; x < x0+size && x < f.Width; x++ {
			f.SetRGB(x, y, 255, 255, 255)
		}
	}
}

// FileSource loops over a directory of image frames (JPEG or PNG, played
// in filename order). It stands in for a real video decoder, which is an
// external collaborator.
type FileSource struct {
	geom  frame.Geometry
	fps   int
	paths []string
	index int
}

// NewFileSource scans dir for frames and probes the first one for the
// stream geometry. All frames must share that geometry.
func NewFileSource(dir string, fps int) (*FileSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".jpg", ".jpeg", ".png":
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no frames found in %s", dir)
	}
	sort.Strings(paths)

	if fps <= 0 {
		fps = 30
	}
	s := &FileSource{fps: fps, paths: paths}

	first, err := s.load(paths[0])
	if err != nil {
		return nil, err
	}
	s.geom = first.Geometry()
	if err := s.geom.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileSource) Geometry() frame.Geometry { return s.geom }

func (s *FileSource) FPS() int { return s.fps }

// Next decodes the next frame in sequence, looping at the end.
func (s *FileSource) Next() (*frame.Frame, error) {
	path := s.paths[s.index]
	s.index = (s.index + 1) % len(s.paths)

	f, err := s.load(path)
	if err != nil {
		return nil, err
	}
	if err := s.geom.Check(f); err != nil {
		return nil, err
	}
	return f, nil
}

func (s *FileSource) load(path string) (*frame.Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open frame %s: %w", path, err)
	}
	defer file.Close()

	img, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode frame %s: %w", path, err)
	}
	return frame.FromImage(img), nil
}
