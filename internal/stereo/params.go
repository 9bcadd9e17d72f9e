package stereo

import "sync"

// Offset bounds, in pixels. Values outside the range are clamped at the
// point of assignment and never propagate out-of-range.
const (
	MinOffset     = 10
	MaxOffset     = 100
	DefaultOffset = 50
)

// DefaultMode is the presentation used until the viewer picks another.
const DefaultMode = SideBySideParallel

// Params is one consistent presentation parameter snapshot. A render
// cycle takes exactly one snapshot, so a synthesis call never observes a
// half-applied update.
type Params struct {
	Mode   Mode `json:"mode"`
	Offset int  `json:"offset"`
}

// ClampOffset forces an offset into [MinOffset, MaxOffset].
func ClampOffset(offset int) int {
	if offset < MinOffset {
		return MinOffset
	}
	if offset > MaxOffset {
		return MaxOffset
	}
	return offset
}

// Store is the shared parameter cell between viewer input and the render
// loop. Last write wins per field; reads are atomic copies, never torn.
type Store struct {
	mu     sync.RWMutex
	params Params
}

// NewStore creates a store holding the given initial parameters. The
// offset is clamped and an invalid mode falls back to the default, so a
// store always starts valid.
func NewStore(mode Mode, offset int) *Store {
	if !mode.Valid() {
		mode = DefaultMode
	}
	return &Store{
		params: Params{Mode: mode, Offset: ClampOffset(offset)},
	}
}

// SetMode updates the presentation mode. An unknown mode is rejected with
// ErrInvalidParameter and the previous value is retained.
func (s *Store) SetMode(mode Mode) error {
	if !mode.Valid() {
		return ErrInvalidParameter
	}
	s.mu.Lock()
	s.params.Mode = mode
	s.mu.Unlock()
	return nil
}

// SetModeName parses and applies a mode by its wire name.
func (s *Store) SetModeName(name string) error {
	mode, err := ParseMode(name)
	if err != nil {
		return err
	}
	return s.SetMode(mode)
}

// SetOffset updates the depth offset, clamping into [MinOffset, MaxOffset].
// Out-of-range values are never an error.
func (s *Store) SetOffset(offset int) {
	clamped := ClampOffset(offset)
	s.mu.Lock()
	s.params.Offset = clamped
	s.mu.Unlock()
}

// Snapshot returns a consistent copy of the current parameters.
func (s *Store) Snapshot() Params {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}
