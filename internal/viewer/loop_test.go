package viewer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stereocast/internal/display"
	"stereocast/internal/frame"
	"stereocast/internal/stereo"
	"stereocast/internal/transport"
)

type step struct {
	f   *frame.Frame
	err error
}

// fakeSession plays back a scripted sequence of frames and errors, then
// either returns its final error or blocks until the context ends.
type fakeSession struct {
	geom  frame.Geometry
	fps   int
	final error

	mu     sync.Mutex
	steps  []step
	closed bool
}

func (s *fakeSession) Geometry() frame.Geometry { return s.geom }
func (s *fakeSession) FPS() int                 { return s.fps }

func (s *fakeSession) NextFrame(ctx context.Context) (*frame.Frame, error) {
	s.mu.Lock()
	if len(s.steps) > 0 {
		st := s.steps[0]
		s.steps = s.steps[1:]
		s.mu.Unlock()
		return st.f, st.err
	}
	s.mu.Unlock()

	if s.final != nil {
		return nil, s.final
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func dialerFor(sess transport.Session) DialFunc {
	return func(ctx context.Context, kind transport.Kind, addr string) (transport.Session, error) {
		return sess, nil
	}
}

func testLoop(t *testing.T, sess transport.Session) (*Loop, *display.NullOutput) {
	t.Helper()
	out := &display.NullOutput{}
	if err := out.Start(); err != nil {
		t.Fatalf("output start: %v", err)
	}
	loop := NewLoop(Config{
		Dial:             dialerFor(sess),
		Addr:             "test",
		HandshakeTimeout: time.Second,
		QueueCapacity:    3,
		DisplayFPS:       200,
	}, stereo.NewStore(stereo.DefaultMode, stereo.DefaultOffset), out)
	return loop, out
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func frames(n int, w, h int) []step {
	steps := make([]step, n)
	for i := range steps {
		steps[i] = step{f: frame.New(w, h)}
	}
	return steps
}

func TestLoopStreamsAndStops(t *testing.T) {
	sess := &fakeSession{
		geom:  frame.Geometry{Width: 8, Height: 4},
		fps:   30,
		steps: frames(5, 8, 4),
	}
	loop, out := testLoop(t, sess)

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(context.Background()) }()

	waitFor(t, "streaming state", func() bool { return loop.State() == StateStreaming })
	waitFor(t, "first presented frame", func() bool { return out.Frames() > 0 })

	loop.Stop()
	if err := <-runErr; err != nil {
		t.Errorf("Run after Stop = %v; want nil", err)
	}
	if got := loop.State(); got != StateStopped {
		t.Errorf("state = %v; want stopped", got)
	}
	if !sess.closed {
		t.Error("session not closed on stop")
	}
}

func TestLoopHandshakeTimeout(t *testing.T) {
	out := &display.NullOutput{}
	out.Start()
	loop := NewLoop(Config{
		Dial: func(ctx context.Context, kind transport.Kind, addr string) (transport.Session, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
		Addr:             "test",
		HandshakeTimeout: 30 * time.Millisecond,
	}, stereo.NewStore(stereo.DefaultMode, stereo.DefaultOffset), out)

	err := loop.Run(context.Background())
	if err == nil {
		t.Fatal("Run = nil; want handshake timeout error")
	}
	if got := loop.State(); got != StateDisconnected {
		t.Errorf("state = %v; want disconnected", got)
	}
}

func TestLoopEndOfStream(t *testing.T) {
	sess := &fakeSession{
		geom:  frame.Geometry{Width: 8, Height: 4},
		fps:   30,
		steps: frames(2, 8, 4),
		final: transport.ErrEndOfStream,
	}
	loop, _ := testLoop(t, sess)

	if err := loop.Run(context.Background()); err != nil {
		t.Errorf("Run = %v; want nil on clean end of stream", err)
	}
	if got := loop.State(); got != StateDisconnected {
		t.Errorf("state = %v; want disconnected", got)
	}
}

func TestLoopGeometryChangeFatal(t *testing.T) {
	steps := frames(2, 8, 4)
	steps = append(steps, step{f: frame.New(10, 4)}) // dimensions changed mid-stream
	sess := &fakeSession{
		geom:  frame.Geometry{Width: 8, Height: 4},
		fps:   30,
		steps: steps,
	}
	loop, _ := testLoop(t, sess)

	err := loop.Run(context.Background())
	if !errors.Is(err, frame.ErrMalformedFrame) {
		t.Errorf("Run = %v; want ErrMalformedFrame", err)
	}
	if got := loop.State(); got != StateDisconnected {
		t.Errorf("state = %v; want disconnected", got)
	}
}

func TestLoopSkipsTransientErrors(t *testing.T) {
	steps := []step{
		{err: &transport.TransientError{Err: errors.New("packet lost")}},
		{f: frame.New(8, 4)},
		{err: &transport.TransientError{Err: errors.New("packet lost")}},
		{f: frame.New(8, 4)},
	}
	sess := &fakeSession{
		geom:  frame.Geometry{Width: 8, Height: 4},
		fps:   30,
		steps: steps,
	}
	loop, out := testLoop(t, sess)

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(context.Background()) }()

	waitFor(t, "frames despite transient errors", func() bool { return out.Frames() >= 2 })
	if got := loop.State(); got != StateStreaming {
		t.Errorf("state = %v; want streaming", got)
	}

	loop.Stop()
	<-runErr
}

func TestLoopHoldsFrameWhenQueueEmpty(t *testing.T) {
	sess := &fakeSession{
		geom:  frame.Geometry{Width: 8, Height: 4},
		fps:   30,
		steps: frames(1, 8, 4),
	}
	loop, out := testLoop(t, sess)

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(context.Background()) }()

	// One delivered frame, many display ticks: the loop must re-present
	// rather than going dark.
	waitFor(t, "held frames", func() bool { return out.Frames() >= 3 })
	if held := loop.Status().FramesHeld; held == 0 {
		t.Error("FramesHeld = 0; want re-presented frames counted")
	}

	loop.Stop()
	<-runErr
}

func TestLoopSubscribeSeesTransitions(t *testing.T) {
	sess := &fakeSession{
		geom:  frame.Geometry{Width: 8, Height: 4},
		fps:   30,
		steps: frames(3, 8, 4),
	}
	loop, _ := testLoop(t, sess)
	states := loop.Subscribe()
	defer loop.Unsubscribe(states)

	runErr := make(chan error, 1)
	go func() { runErr <- loop.Run(context.Background()) }()

	var seen []State
	for s := range states {
		seen = append(seen, s)
		if s == StateStreaming {
			break
		}
	}
	if len(seen) < 2 || seen[0] != StateConnecting || seen[len(seen)-1] != StateStreaming {
		t.Errorf("transitions = %v; want connecting then streaming", seen)
	}

	loop.Stop()
	<-runErr
}
