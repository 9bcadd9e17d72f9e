package stereo

import (
	"errors"
	"fmt"
)

// ErrInvalidParameter is returned when a viewer submits a presentation
// parameter outside the accepted domain. The store is left unchanged and
// the stream is unaffected.
var ErrInvalidParameter = errors.New("invalid parameter")

// Mode selects how a stereo pair is composed into one output frame.
type Mode int

const (
	// SideBySideParallel lays the eyes out as [left | right] for
	// parallel (wall-eyed) free viewing.
	SideBySideParallel Mode = iota
	// SideBySideCrossEye lays the eyes out as [right | left] for
	// cross-eyed free viewing.
	SideBySideCrossEye
	// AnaglyphRedCyan encodes the left eye in the red channel and the
	// right eye in green+blue, for red/cyan glasses.
	AnaglyphRedCyan
	// AnaglyphGreenMagenta encodes the left eye in the green channel and
	// the right eye in red+blue, for green/magenta glasses.
	AnaglyphGreenMagenta
)

var modeNames = map[Mode]string{
	SideBySideParallel:   "side_by_side_parallel",
	SideBySideCrossEye:   "side_by_side_cross_eye",
	AnaglyphRedCyan:      "anaglyph_red_cyan",
	AnaglyphGreenMagenta: "anaglyph_green_magenta",
}

// String returns the wire name of the mode.
func (m Mode) String() string {
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// Valid reports whether m is one of the four enumerated modes.
func (m Mode) Valid() bool {
	_, ok := modeNames[m]
	return ok
}

// ParseMode converts a wire name into a Mode.
func ParseMode(name string) (Mode, error) {
	for m, n := range modeNames {
		if n == name {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrInvalidParameter, name)
}

// MarshalText implements encoding.TextMarshaler so modes serialize by
// name in JSON and YAML.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: mode %d", ErrInvalidParameter, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	parsed, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Modes lists the accepted modes in a stable order.
func Modes() []Mode {
	return []Mode{
		SideBySideParallel,
		SideBySideCrossEye,
		AnaglyphRedCyan,
		AnaglyphGreenMagenta,
	}
}
