package transport

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stereocast/internal/frame"
)

func encodeTestFrame(t *testing.T, width, height int, c color.RGBA) []byte {
	t.Helper()
	f := frame.New(width, height)
	f.Fill(c)
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, f.ToRGBA(), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

// fakePublisher serves the hello plus a fixed set of frames over /ws.
func fakePublisher(t *testing.T, hello Hello, frames [][]byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()
		if err := conn.WriteJSON(hello); err != nil {
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
				return
			}
		}
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		// Wait for the peer to acknowledge before tearing down.
		conn.SetReadDeadline(time.Now().Add(time.Second))
		conn.ReadMessage()
	})
	return httptest.NewServer(mux)
}

func TestDialWebSocket(t *testing.T) {
	hello := Hello{Width: 16, Height: 8, FPS: 30}
	payload := encodeTestFrame(t, 16, 8, color.RGBA{R: 200})
	srv := fakePublisher(t, hello, [][]byte{payload, payload})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sess, err := DialWebSocket(ctx, srv.URL)
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer sess.Close()

	if got := sess.Geometry(); got != hello.Geometry() {
		t.Errorf("Geometry = %+v; want %+v", got, hello.Geometry())
	}
	if sess.FPS() != 30 {
		t.Errorf("FPS = %d; want 30", sess.FPS())
	}

	for i := 0; i < 2; i++ {
		f, err := sess.NextFrame(context.Background())
		if err != nil {
			t.Fatalf("NextFrame %d: %v", i, err)
		}
		if f.Width != 16 || f.Height != 8 {
			t.Errorf("frame dims = %dx%d; want 16x8", f.Width, f.Height)
		}
	}

	if _, err := sess.NextFrame(context.Background()); !errors.Is(err, ErrEndOfStream) {
		t.Errorf("NextFrame after close = %v; want ErrEndOfStream", err)
	}
}

func TestDialWebSocketRejectsOddWidth(t *testing.T) {
	srv := fakePublisher(t, Hello{Width: 15, Height: 8, FPS: 30}, nil)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := DialWebSocket(ctx, srv.URL); !errors.Is(err, frame.ErrMalformedFrame) {
		t.Fatalf("DialWebSocket(odd hello) = %v; want ErrMalformedFrame", err)
	}
}

func TestNextFrameDecodeFailureIsTransient(t *testing.T) {
	hello := Hello{Width: 16, Height: 8, FPS: 30}
	good := encodeTestFrame(t, 16, 8, color.RGBA{G: 90})
	srv := fakePublisher(t, hello, [][]byte{[]byte("not a jpeg"), good})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sess, err := DialWebSocket(ctx, srv.URL)
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer sess.Close()

	_, err = sess.NextFrame(context.Background())
	if !IsTransient(err) {
		t.Fatalf("NextFrame(garbage) = %v; want transient", err)
	}

	// The session survives the lost frame.
	if _, err := sess.NextFrame(context.Background()); err != nil {
		t.Fatalf("NextFrame after transient = %v; want frame", err)
	}
}

func TestNextFrameHonorsContext(t *testing.T) {
	// A publisher that sends the hello and then goes silent.
	upgrader := websocket.Upgrader{}
	hung := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.WriteJSON(Hello{Width: 16, Height: 8, FPS: 30})
		<-hung
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	defer close(hung)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	sess, err := DialWebSocket(ctx, srv.URL)
	if err != nil {
		t.Fatalf("DialWebSocket: %v", err)
	}
	defer sess.Close()

	fctx, fcancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer fcancel()
	if _, err := sess.NextFrame(fctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("NextFrame on silent stream = %v; want deadline exceeded", err)
	}
}

func TestWSURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"http://host:3030", "ws://host:3030/ws"},
		{"https://host", "wss://host/ws"},
		{"host:3030", "ws://host:3030/ws"},
		{"ws://host/ws", "ws://host/ws"},
	}
	for _, tc := range cases {
		if got := wsURL(tc.in); got != tc.want {
			t.Errorf("wsURL(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestHTTPURL(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"ws://host:3030", "http://host:3030"},
		{"wss://host", "https://host"},
		{"http://host", "http://host"},
		{"host:3030", "http://host:3030"},
	}
	for _, tc := range cases {
		if got := httpURL(tc.in); got != tc.want {
			t.Errorf("httpURL(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
