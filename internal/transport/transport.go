package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/jpeg"

	"stereocast/internal/frame"
)

// ErrEndOfStream signals a clean end of the frame stream; the session is
// finished and the render loop should leave Streaming.
var ErrEndOfStream = errors.New("end of stream")

// TransientError wraps a single-frame delivery failure. The affected
// frame is skipped and delivery resumes on the next one; there is no
// replay in a live stream.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient transport error: %v", e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// IsTransient reports whether err is recoverable by skipping one frame.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Session is the receiving end of a real-time frame channel. The
// handshake has already completed by the time a Session exists, so the
// stream geometry and native rate are known up front.
type Session interface {
	// Geometry returns the fixed frame dimensions negotiated for this
	// session. Frames that differ are malformed.
	Geometry() frame.Geometry

	// FPS returns the source's native frame rate.
	FPS() int

	// NextFrame blocks until the next frame arrives, the context is
	// canceled, or the stream ends. A *TransientError means the frame
	// was lost but the session is still alive.
	NextFrame(ctx context.Context) (*frame.Frame, error)

	// Close tears the session down. Safe to call more than once.
	Close() error
}

// Kind selects the channel implementation used between publisher and
// viewer.
type Kind string

const (
	KindWebSocket Kind = "websocket"
	KindWebRTC    Kind = "webrtc"
)

// Dial establishes a session of the given kind with the publisher at
// addr. The context bounds the whole handshake; exceeding it fails the
// connection attempt rather than hanging.
func Dial(ctx context.Context, kind Kind, addr string) (Session, error) {
	switch kind {
	case KindWebSocket, "":
		return DialWebSocket(ctx, addr)
	case KindWebRTC:
		return DialWebRTC(ctx, addr)
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}

// Hello is the out-of-band stream description exchanged once per session
// before any frame flows.
type Hello struct {
	Width  int `json:"width"`
	Height int `json:"height"`
	FPS    int `json:"fps"`
}

// Geometry returns the stream geometry the hello declares.
func (h Hello) Geometry() frame.Geometry {
	return frame.Geometry{Width: h.Width, Height: h.Height}
}

// decodeFrame turns one wire payload (a JPEG image) into a frame. Decode
// failures are transient: the frame is lost, the session is not.
func decodeFrame(data []byte) (*frame.Frame, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, &TransientError{Err: fmt.Errorf("decode frame: %w", err)}
	}
	return frame.FromImage(img), nil
}
