package frame

// StereoPair holds the two eye views derived from one side-by-side frame.
// Both halves are width/2 × height. A pair is consumed once per render
// cycle and not retained.
type StereoPair struct {
	Left  *Frame
	Right *Frame
}

// Split divides a side-by-side frame into its left and right eye halves.
// Left is columns [0, w/2), right is columns [w/2, w). Pure function, safe
// to call from any goroutine.
func Split(f *Frame) (StereoPair, error) {
	if err := f.Geometry().Validate(); err != nil {
		return StereoPair{}, err
	}

	half := f.Width / 2
	left := New(half, f.Height)
	right := New(half, f.Height)

	rowBytes := half * 3
	for y := 0; y < f.Height; y++ {
		src := f.PixOffset(0, y)
		copy(left.Pix[y*rowBytes:(y+1)*rowBytes], f.Pix[src:src+rowBytes])
		copy(right.Pix[y*rowBytes:(y+1)*rowBytes], f.Pix[src+rowBytes:src+2*rowBytes])
	}

	return StereoPair{Left: left, Right: right}, nil
}
