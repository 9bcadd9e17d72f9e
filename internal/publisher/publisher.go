package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image/jpeg"
	"sync"
	"time"

	"stereocast/internal/logger"
	"stereocast/internal/transport"
)

// jpegQuality is the encoding quality for frames on the wire.
const jpegQuality = 90

// Publisher paces a frame source at its native rate and broadcasts each
// encoded frame to every attached client. A slow client skips frames; it
// never stalls the pacer or the other clients.
type Publisher struct {
	source Source

	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	frameCount uint64
	startTime  time.Time
	statsMu    sync.RWMutex
}

// New creates a publisher for the given source. The source geometry is
// validated once, up front: a source that cannot be split is a fatal
// configuration error, not a per-frame retry.
func New(source Source) (*Publisher, error) {
	if err := source.Geometry().Validate(); err != nil {
		return nil, fmt.Errorf("unusable frame source: %w", err)
	}
	return &Publisher{
		source:  source,
		clients: make(map[chan []byte]struct{}),
	}, nil
}

// Hello describes the stream to a newly attached client.
func (p *Publisher) Hello() transport.Hello {
	geom := p.source.Geometry()
	return transport.Hello{Width: geom.Width, Height: geom.Height, FPS: p.source.FPS()}
}

// HelloJSON is the serialized hello sent as the first message of every
// session.
func (p *Publisher) HelloJSON() []byte {
	data, _ := json.Marshal(p.Hello())
	return data
}

// Attach registers a client and returns its frame channel. The channel
// carries encoded frames; when the publisher shuts down it is closed.
func (p *Publisher) Attach() chan []byte {
	ch := make(chan []byte, 2)
	p.clientsMu.Lock()
	p.clients[ch] = struct{}{}
	count := len(p.clients)
	p.clientsMu.Unlock()

	logger.WithComponent("publisher").Info().
		Int("clients", count).
		Msg("Client attached")
	return ch
}

// Detach unregisters a client and closes its channel.
func (p *Publisher) Detach(ch chan []byte) {
	p.clientsMu.Lock()
	if _, ok := p.clients[ch]; ok {
		delete(p.clients, ch)
		close(ch)
	}
	count := len(p.clients)
	p.clientsMu.Unlock()

	logger.WithComponent("publisher").Info().
		Int("clients", count).
		Msg("Client detached")
}

// Run drives the source at its native rate until the context is canceled.
func (p *Publisher) Run(ctx context.Context) error {
	fps := p.source.FPS()
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.statsMu.Lock()
	p.startTime = time.Now()
	p.statsMu.Unlock()

	geom := p.source.Geometry()
	logger.WithComponent("publisher").Info().
		Int("width", geom.Width).
		Int("height", geom.Height).
		Int("fps", fps).
		Msg("Publisher running")

	defer p.closeAll()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		f, err := p.source.Next()
		if err != nil {
			return fmt.Errorf("frame source failed: %w", err)
		}
		if err := geom.Check(f); err != nil {
			return err
		}

		buf := new(bytes.Buffer)
		if err := jpeg.Encode(buf, f.ToRGBA(), &jpeg.Options{Quality: jpegQuality}); err != nil {
			return fmt.Errorf("encode frame: %w", err)
		}
		p.broadcast(buf.Bytes())
	}
}

// broadcast offers one encoded frame to every client without blocking.
func (p *Publisher) broadcast(data []byte) {
	p.statsMu.Lock()
	p.frameCount++
	p.statsMu.Unlock()

	p.clientsMu.RLock()
	for ch := range p.clients {
		select {
		case ch <- data:
		default:
			// Client is behind; it lives on the freshest frames it can
			// keep up with.
		}
	}
	p.clientsMu.RUnlock()
}

func (p *Publisher) closeAll() {
	p.clientsMu.Lock()
	for ch := range p.clients {
		close(ch)
		delete(p.clients, ch)
	}
	p.clientsMu.Unlock()
}

// Stats is a point-in-time view of publisher throughput.
type Stats struct {
	Clients    int     `json:"clients"`
	FrameCount uint64  `json:"frame_count"`
	FPS        float64 `json:"fps"`
	UptimeSec  float64 `json:"uptime_sec"`
}

// Stats reports client and frame counters.
func (p *Publisher) Stats() Stats {
	p.clientsMu.RLock()
	clients := len(p.clients)
	p.clientsMu.RUnlock()

	p.statsMu.RLock()
	frames := p.frameCount
	start := p.startTime
	p.statsMu.RUnlock()

	var fps, uptime float64
	if !start.IsZero() {
		uptime = time.Since(start).Seconds()
		if uptime > 0 {
			fps = float64(frames) / uptime
		}
	}
	return Stats{Clients: clients, FrameCount: frames, FPS: fps, UptimeSec: uptime}
}
