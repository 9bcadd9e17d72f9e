package publisher

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"

	"stereocast/internal/logger"
)

// Server exposes the publisher's session endpoints: websocket frames at
// /ws, WebRTC signaling at /offer, and a small status API.
type Server struct {
	router   *mux.Router
	pub      *Publisher
	upgrader websocket.Upgrader
}

// NewServer creates the publisher HTTP server.
func NewServer(pub *Publisher) *Server {
	s := &Server{
		router: mux.NewRouter(),
		pub:    pub,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // viewers connect from anywhere
			},
		},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/ws", s.handleWS)
	s.router.HandleFunc("/offer", s.handleOffer).Methods("POST")
	s.router.HandleFunc("/api/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/api/stats", s.handleStats).Methods("GET")
}

// Handler returns the server's root handler, for embedding in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until the listener fails.
func (s *Server) Start(addr string) error {
	logger.WithComponent("publisher").Info().
		Str("addr", addr).
		Msg("Publisher server listening")
	return http.ListenAndServe(addr, s.router)
}

// handleWS upgrades the connection, sends the hello, and relays encoded
// frames until the client goes away.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("publisher").Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	if err := conn.WriteJSON(s.pub.Hello()); err != nil {
		logger.WithComponent("publisher").Warn().Err(err).Msg("Hello write failed")
		return
	}

	ch := s.pub.Attach()
	defer s.pub.Detach(ch)

	// Read side only watches for the client closing.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				s.pub.Detach(ch)
				return
			}
		}
	}()

	for data := range ch {
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			return
		}
	}
}

// sdpMessage is the signaling body shared with the original publisher's
// /offer contract.
type sdpMessage struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

// handleOffer answers a WebRTC offer. The viewer opens a "frames" data
// channel; once it is up the publisher sends the hello and starts
// relaying frames into it.
func (s *Server) handleOffer(w http.ResponseWriter, r *http.Request) {
	var offer sdpMessage
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != "frames" {
			return
		}
		var ch chan []byte
		dc.OnOpen(func() {
			if err := dc.SendText(string(s.pub.HelloJSON())); err != nil {
				logger.WithComponent("publisher").Warn().Err(err).Msg("Hello send failed")
				return
			}
			ch = s.pub.Attach()
			go func() {
				for data := range ch {
					if err := dc.Send(data); err != nil {
						s.pub.Detach(ch)
						return
					}
				}
			}()
		})
		dc.OnClose(func() {
			if ch != nil {
				s.pub.Detach(ch)
			}
		})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			_ = pc.Close()
		}
	})

	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.NewSDPType(offer.Type),
		SDP:  offer.SDP,
	}); err != nil {
		pc.Close()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	<-gathered

	local := pc.LocalDescription()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(sdpMessage{SDP: local.SDP, Type: local.Type.String()})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.pub.Stats())
}
