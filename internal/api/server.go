package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"stereocast/internal/display"
	"stereocast/internal/logger"
	"stereocast/internal/stereo"
	"stereocast/internal/viewer"
)

// Server is the viewer's control surface: presentation parameters, loop
// status, and the MJPEG presentation stream.
type Server struct {
	router   *mux.Router
	store    *stereo.Store
	loop     *viewer.Loop
	mjpeg    *display.MJPEGOutput
	upgrader websocket.Upgrader

	subsMu sync.Mutex
	subs   map[chan stereo.Params]struct{}
}

// NewServer creates the viewer API server.
func NewServer(store *stereo.Store, loop *viewer.Loop, mjpeg *display.MJPEGOutput) *Server {
	s := &Server{
		router: mux.NewRouter(),
		store:  store,
		loop:   loop,
		mjpeg:  mjpeg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // local control page only
			},
		},
		subs: make(map[chan stereo.Params]struct{}),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/params", s.handleGetParams).Methods("GET")
	api.HandleFunc("/params", s.handleUpdateParams).Methods("PUT")
	api.HandleFunc("/params/stream", s.handleParamsStream)
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.mjpeg != nil {
		s.router.HandleFunc("/stream", s.mjpeg.StreamHandler())
	}
	s.router.HandleFunc("/", display.PageHandler())
}

// Handler returns the root handler, for serving and for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	logger.WithComponent("api").Info().
		Str("addr", addr).
		Msg("Viewer control server listening")
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleGetParams(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.store.Snapshot())
}

// paramsUpdate is a partial update; absent fields keep their value.
type paramsUpdate struct {
	Mode   *string `json:"mode"`
	Offset *int    `json:"offset"`
}

func (s *Server) handleUpdateParams(w http.ResponseWriter, r *http.Request) {
	var req paramsUpdate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Mode != nil {
		if err := s.store.SetModeName(*req.Mode); err != nil {
			if errors.Is(err, stereo.ErrInvalidParameter) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusBadRequest)
				json.NewEncoder(w).Encode(map[string]string{
					"error": "invalid_parameter",
					"field": "mode",
				})
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
	if req.Offset != nil {
		// Out-of-range offsets are clamped, never rejected.
		s.store.SetOffset(*req.Offset)
	}

	params := s.store.Snapshot()
	s.notify(params)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(params)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.loop.Status())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

// streamEvent is one push on the live control feed.
type streamEvent struct {
	State  string         `json:"state,omitempty"`
	Params *stereo.Params `json:"params,omitempty"`
}

// handleParamsStream pushes parameter changes and loop state transitions
// over a websocket, so the control page reflects changes from any viewer
// input source.
func (s *Server) handleParamsStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WithComponent("api").Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	states := s.loop.Subscribe()
	defer s.loop.Unsubscribe(states)

	params := s.subscribe()
	defer s.unsubscribe(params)

	// Initial snapshot.
	initial := s.store.Snapshot()
	if err := conn.WriteJSON(streamEvent{
		State:  s.loop.State().String(),
		Params: &initial,
	}); err != nil {
		return
	}

	// Drain client messages to notice disconnects.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			if err := conn.WriteJSON(streamEvent{State: state.String()}); err != nil {
				return
			}
		case p, ok := <-params:
			if !ok {
				return
			}
			if err := conn.WriteJSON(streamEvent{Params: &p}); err != nil {
				return
			}
		}
	}
}

func (s *Server) subscribe() chan stereo.Params {
	ch := make(chan stereo.Params, 4)
	s.subsMu.Lock()
	s.subs[ch] = struct{}{}
	s.subsMu.Unlock()
	return ch
}

func (s *Server) unsubscribe(ch chan stereo.Params) {
	s.subsMu.Lock()
	if _, ok := s.subs[ch]; ok {
		delete(s.subs, ch)
		close(ch)
	}
	s.subsMu.Unlock()
}

func (s *Server) notify(params stereo.Params) {
	s.subsMu.Lock()
	for ch := range s.subs {
		select {
		case ch <- params:
		default:
		}
	}
	s.subsMu.Unlock()
}
