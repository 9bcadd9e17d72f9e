package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"stereocast/internal/frame"
	"stereocast/internal/logger"
)

// sdpPayload is the JSON body exchanged with the publisher's /offer
// endpoint.
type sdpPayload struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// rtcSession receives frames over a WebRTC data channel named "frames".
// The first (string) message on the channel is the JSON hello; every
// binary message after it is one encoded frame.
type rtcSession struct {
	pc    *webrtc.PeerConnection
	hello Hello

	frames chan []byte
	done   chan struct{}

	closeOnce sync.Once
	doneOnce  sync.Once
}

// DialWebRTC performs the offer/answer exchange against the publisher's
// /offer endpoint and waits for the data channel hello. The context
// bounds the whole handshake.
func DialWebRTC(ctx context.Context, addr string) (Session, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	s := &rtcSession{
		pc:     pc,
		frames: make(chan []byte, 1),
		done:   make(chan struct{}),
	}

	helloCh := make(chan Hello, 1)

	dc, err := pc.CreateDataChannel("frames", nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create data channel: %w", err)
	}
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if msg.IsString {
			var hello Hello
			if err := json.Unmarshal(msg.Data, &hello); err == nil {
				select {
				case helloCh <- hello:
				default:
				}
			}
			return
		}
		select {
		case s.frames <- msg.Data:
		case <-s.done:
		default:
			// Receiver is behind; the queue downstream holds only the
			// freshest frames anyway, so dropping here is harmless.
		}
	})
	dc.OnClose(func() { s.markDone() })

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		logger.WithComponent("transport").Debug().
			Str("state", state.String()).
			Msg("WebRTC connection state changed")
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			s.markDone()
		}
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return nil, fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	answer, err := exchangeSDP(ctx, addr, pc.LocalDescription())
	if err != nil {
		pc.Close()
		return nil, err
	}
	if err := pc.SetRemoteDescription(*answer); err != nil {
		pc.Close()
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	select {
	case hello := <-helloCh:
		if err := hello.Geometry().Validate(); err != nil {
			pc.Close()
			return nil, err
		}
		s.hello = hello
	case <-s.done:
		pc.Close()
		return nil, fmt.Errorf("connection closed before hello")
	case <-ctx.Done():
		pc.Close()
		return nil, ctx.Err()
	}

	logger.WithComponent("transport").Info().
		Str("addr", addr).
		Int("width", s.hello.Width).
		Int("height", s.hello.Height).
		Int("fps", s.hello.FPS).
		Msg("WebRTC session established")

	return s, nil
}

// exchangeSDP posts the local offer to the publisher and decodes the
// answer, mirroring the publisher's signaling contract.
func exchangeSDP(ctx context.Context, addr string, offer *webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	body, err := json.Marshal(sdpPayload{SDP: offer.SDP, Type: offer.Type.String()})
	if err != nil {
		return nil, err
	}

	url := strings.TrimSuffix(httpURL(addr), "/") + "/offer"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post offer: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("post offer: publisher returned %s", resp.Status)
	}

	var answer sdpPayload
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode answer: %w", err)
	}
	return &webrtc.SessionDescription{
		Type: webrtc.NewSDPType(answer.Type),
		SDP:  answer.SDP,
	}, nil
}

func (s *rtcSession) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *rtcSession) Geometry() frame.Geometry { return s.hello.Geometry() }

func (s *rtcSession) FPS() int { return s.hello.FPS }

func (s *rtcSession) NextFrame(ctx context.Context) (*frame.Frame, error) {
	select {
	case data := <-s.frames:
		return decodeFrame(data)
	case <-s.done:
		return nil, ErrEndOfStream
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *rtcSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.markDone()
		err = s.pc.Close()
	})
	return err
}

// httpURL rewrites a websocket-style publisher address into its HTTP
// signaling base.
func httpURL(addr string) string {
	switch {
	case strings.HasPrefix(addr, "ws://"):
		return "http://" + strings.TrimPrefix(addr, "ws://")
	case strings.HasPrefix(addr, "wss://"):
		return "https://" + strings.TrimPrefix(addr, "wss://")
	case strings.HasPrefix(addr, "http://"), strings.HasPrefix(addr, "https://"):
		return addr
	default:
		return "http://" + addr
	}
}
