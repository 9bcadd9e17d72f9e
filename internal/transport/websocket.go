package transport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"stereocast/internal/frame"
	"stereocast/internal/logger"
)

// timeZero clears a connection deadline.
var timeZero time.Time

// wsSession receives frames as binary websocket messages after a JSON
// hello handshake.
type wsSession struct {
	conn  *websocket.Conn
	hello Hello

	closeOnce sync.Once
	closeErr  error
}

// DialWebSocket connects to a publisher's /ws endpoint and completes the
// hello handshake. The context deadline bounds both the dial and the
// handshake read.
func DialWebSocket(ctx context.Context, addr string) (Session, error) {
	url := wsURL(addr)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}

	var hello Hello
	if err := conn.ReadJSON(&hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read hello: %w", err)
	}
	if err := hello.Geometry().Validate(); err != nil {
		conn.Close()
		return nil, err
	}

	// Handshake done; frame reads are paced by the publisher, not by a
	// deadline.
	_ = conn.SetReadDeadline(timeZero)

	logger.WithComponent("transport").Info().
		Str("url", url).
		Int("width", hello.Width).
		Int("height", hello.Height).
		Int("fps", hello.FPS).
		Msg("WebSocket session established")

	return &wsSession{conn: conn, hello: hello}, nil
}

func (s *wsSession) Geometry() frame.Geometry { return s.hello.Geometry() }

func (s *wsSession) FPS() int { return s.hello.FPS }

func (s *wsSession) NextFrame(ctx context.Context) (*frame.Frame, error) {
	// gorilla reads have no context parameter; closing the connection is
	// the sanctioned way to abort a blocked read.
	stop := context.AfterFunc(ctx, func() { s.Close() })
	defer stop()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, ErrEndOfStream
			}
			return nil, fmt.Errorf("read frame: %w", err)
		}
		if msgType != websocket.BinaryMessage {
			// Control/text traffic on the frame channel is ignored.
			continue
		}
		return decodeFrame(data)
	}
}

func (s *wsSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.closeErr = s.conn.Close()
	})
	return s.closeErr
}

// wsURL rewrites an http(s) publisher address into its websocket frame
// endpoint.
func wsURL(addr string) string {
	url := addr
	switch {
	case strings.HasPrefix(url, "http://"):
		url = "ws://" + strings.TrimPrefix(url, "http://")
	case strings.HasPrefix(url, "https://"):
		url = "wss://" + strings.TrimPrefix(url, "https://")
	case !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://"):
		url = "ws://" + url
	}
	if !strings.HasSuffix(url, "/ws") {
		url = strings.TrimSuffix(url, "/") + "/ws"
	}
	return url
}
