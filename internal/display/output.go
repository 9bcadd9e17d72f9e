package display

import (
	"image"
	"sync"
)

// Output defines the interface for presenting synthesized frames.
// This allows us to swap between different presentation surfaces:
// - MJPEG HTTP stream
// - a null sink for tests
// - etc.
type Output interface {
	// Start initializes the output mechanism
	Start() error

	// Stop cleanly shuts down the output
	Stop() error

	// WriteFrame presents one frame
	// The image is expected to be in RGBA format
	WriteFrame(frame *image.RGBA) error

	// Name returns a human-readable name for this output type
	Name() string

	// IsRunning returns true if the output is currently active
	IsRunning() bool
}

// NullOutput swallows frames. Used in tests and headless runs.
type NullOutput struct {
	mu      sync.Mutex
	running bool
	frames  int
	last    *image.RGBA
}

func (n *NullOutput) Start() error {
	n.mu.Lock()
	n.running = true
	n.mu.Unlock()
	return nil
}

func (n *NullOutput) Stop() error {
	n.mu.Lock()
	n.running = false
	n.mu.Unlock()
	return nil
}

func (n *NullOutput) WriteFrame(frame *image.RGBA) error {
	n.mu.Lock()
	n.frames++
	n.last = frame
	n.mu.Unlock()
	return nil
}

func (n *NullOutput) Name() string { return "null" }

func (n *NullOutput) IsRunning() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.running
}

// Frames returns how many frames were written.
func (n *NullOutput) Frames() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frames
}

// Last returns the most recently written frame.
func (n *NullOutput) Last() *image.RGBA {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.last
}
