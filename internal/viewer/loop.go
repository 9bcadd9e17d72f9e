package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"stereocast/internal/display"
	"stereocast/internal/frame"
	"stereocast/internal/logger"
	"stereocast/internal/stereo"
	"stereocast/internal/transport"
)

// DefaultHandshakeTimeout bounds the Connecting state. Exceeding it
// transitions to Disconnected rather than hanging.
const DefaultHandshakeTimeout = 10 * time.Second

// DialFunc establishes a transport session. Tests substitute their own.
type DialFunc func(ctx context.Context, kind transport.Kind, addr string) (transport.Session, error)

// Config holds the render loop's session settings.
type Config struct {
	// Transport selects the channel implementation.
	Transport transport.Kind

	// Dial overrides the transport dialer; nil uses transport.Dial.
	Dial DialFunc `json:"-"`

	// Addr is the publisher address.
	Addr string

	// HandshakeTimeout bounds connect plus first frame.
	HandshakeTimeout time.Duration

	// QueueCapacity bounds the frame queue (drop-oldest).
	QueueCapacity int

	// DisplayFPS caps the render cadence; 0 follows the source rate.
	DisplayFPS int
}

// Status is a point-in-time view of the loop for the control API.
type Status struct {
	State          State          `json:"state"`
	Geometry       frame.Geometry `json:"geometry"`
	QueueLen       int            `json:"queue_len"`
	QueueDrops     uint64         `json:"queue_drops"`
	FramesRendered uint64         `json:"frames_rendered"`
	FramesHeld     uint64         `json:"frames_held"`
}

// Loop is the consumer-side scheduler: it pulls the next available frame,
// snapshots the presentation parameters, synthesizes the output, and
// presents it. Frame delivery and rendering run concurrently, meeting
// only at the bounded queue.
type Loop struct {
	cfg    Config
	store  *stereo.Store
	output display.Output
	queue  *Queue

	mu          sync.RWMutex
	state       State
	geom        frame.Geometry
	rendered    uint64
	held        uint64
	subscribers map[chan State]struct{}

	cancelMu sync.Mutex
	cancel   context.CancelFunc
}

// NewLoop creates a render loop presenting to the given output.
func NewLoop(cfg Config, store *stereo.Store, output display.Output) *Loop {
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	return &Loop{
		cfg:         cfg,
		store:       store,
		output:      output,
		queue:       NewQueue(cfg.QueueCapacity),
		state:       StateIdle,
		subscribers: make(map[chan State]struct{}),
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Status returns a consistent snapshot for the status API.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{
		State:          l.state,
		Geometry:       l.geom,
		QueueLen:       l.queue.Len(),
		QueueDrops:     l.queue.Drops(),
		FramesRendered: l.rendered,
		FramesHeld:     l.held,
	}
}

// Subscribe returns a channel receiving state transitions. Slow
// subscribers miss intermediate states, never block the loop.
func (l *Loop) Subscribe() chan State {
	ch := make(chan State, 4)
	l.mu.Lock()
	l.subscribers[ch] = struct{}{}
	l.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (l *Loop) Unsubscribe(ch chan State) {
	l.mu.Lock()
	if _, ok := l.subscribers[ch]; ok {
		delete(l.subscribers, ch)
		close(ch)
	}
	l.mu.Unlock()
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	if l.state == s {
		l.mu.Unlock()
		return
	}
	l.state = s
	for ch := range l.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
	l.mu.Unlock()

	logger.WithComponent("viewer").Info().
		Str("state", s.String()).
		Msg("Render loop state changed")
}

// Stop ends the session: the loop abandons in-flight work, releases the
// queue, closes the transport, and lands in Stopped.
func (l *Loop) Stop() {
	l.cancelMu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.cancelMu.Unlock()
}

// Run drives one session from Connecting to a terminal state. It returns
// nil on a user stop or clean end of stream, the fatal error otherwise.
func (l *Loop) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	l.cancelMu.Lock()
	l.cancel = cancel
	l.cancelMu.Unlock()
	defer cancel()

	l.setState(StateConnecting)

	dial := l.cfg.Dial
	if dial == nil {
		dial = transport.Dial
	}

	// Connect and wait for the first frame under one handshake bound.
	hctx, hcancel := context.WithTimeout(ctx, l.cfg.HandshakeTimeout)
	sess, err := dial(hctx, l.cfg.Transport, l.cfg.Addr)
	if err != nil {
		hcancel()
		return l.failConnect(ctx, fmt.Errorf("connect: %w", err))
	}
	defer sess.Close()
	defer l.queue.Clear()

	geom := sess.Geometry()
	l.mu.Lock()
	l.geom = geom
	l.mu.Unlock()

	first, err := l.nextLiveFrame(hctx, sess, geom)
	hcancel()
	if err != nil {
		return l.failConnect(ctx, fmt.Errorf("first frame: %w", err))
	}
	l.queue.Push(first)
	l.setState(StateStreaming)

	recvErr := make(chan error, 1)
	go l.receive(ctx, sess, geom, recvErr)

	fps := l.cfg.DisplayFPS
	if fps <= 0 {
		fps = sess.FPS()
	}
	if fps <= 0 {
		fps = 30
	}
	ticker := time.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	var lastOutput *frame.Frame
	for {
		select {
		case <-ctx.Done():
			l.setState(StateStopped)
			return nil

		case err := <-recvErr:
			l.setState(StateDisconnected)
			if errors.Is(err, transport.ErrEndOfStream) {
				return nil
			}
			return err

		case <-ticker.C:
			f, ok := l.queue.Pop()
			if !ok {
				// Frame hold: re-present rather than blocking on the
				// network.
				if lastOutput != nil {
					_ = l.output.WriteFrame(lastOutput.ToRGBA())
					l.mu.Lock()
					l.held++
					l.mu.Unlock()
				}
				continue
			}

			pair, err := frame.Split(f)
			if err != nil {
				l.setState(StateDisconnected)
				return err
			}

			out := stereo.Synthesize(pair, l.store.Snapshot())
			if ctx.Err() != nil {
				// Session ended mid-cycle; the result is abandoned, not
				// presented.
				l.setState(StateStopped)
				return nil
			}
			if err := l.output.WriteFrame(out.ToRGBA()); err != nil {
				logger.WithComponent("viewer").Warn().Err(err).Msg("Present failed")
			}
			lastOutput = out
			l.mu.Lock()
			l.rendered++
			l.mu.Unlock()
		}
	}
}

// failConnect maps a Connecting failure to the right terminal state.
func (l *Loop) failConnect(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		l.setState(StateStopped)
		return nil
	}
	l.setState(StateDisconnected)
	return err
}

// nextLiveFrame returns the next deliverable frame, skipping transient
// losses, and enforces the session geometry.
func (l *Loop) nextLiveFrame(ctx context.Context, sess transport.Session, geom frame.Geometry) (*frame.Frame, error) {
	for {
		f, err := sess.NextFrame(ctx)
		if err != nil {
			if transport.IsTransient(err) {
				logger.WithComponent("viewer").Debug().Err(err).Msg("Frame skipped")
				continue
			}
			return nil, err
		}
		if err := geom.Check(f); err != nil {
			return nil, err
		}
		return f, nil
	}
}

// receive is the delivery goroutine: it pulls frames off the transport
// and enqueues them until the stream ends or fails.
func (l *Loop) receive(ctx context.Context, sess transport.Session, geom frame.Geometry, errCh chan<- error) {
	for {
		f, err := l.nextLiveFrame(ctx, sess, geom)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			errCh <- err
			return
		}
		l.queue.Push(f)
	}
}
