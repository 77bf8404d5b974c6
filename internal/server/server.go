// Package server exposes the orchestration engine over a WebSocket
// endpoint. Each connection is one session: queries in, typed events out,
// acks back.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"quorum/internal/config"
	"quorum/internal/logging"
	"quorum/internal/orchestrator"
	"quorum/internal/protocol"
)

// Server accepts WebSocket sessions and runs queries through the
// controller.
type Server struct {
	cfg        config.Config
	controller *orchestrator.Controller
	relay      protocol.Relay

	upgrader websocket.Upgrader
	httpSrv  *http.Server
}

// New creates a server. relay may be nil.
func New(cfg config.Config, ctrl *orchestrator.Controller, relay protocol.Relay) *Server {
	return &Server{
		cfg:        cfg,
		controller: ctrl,
		relay:      relay,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Sessions are local tooling connections, not browser-facing.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// ListenAndServe blocks serving the configured address until ctx is
// cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/chat/", s.handleSession)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- s.httpSrv.ListenAndServe() }()

	logging.Session("Listening on %s", s.cfg.Server.Addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// session holds one connection's run state. A session processes one query
// at a time; a failed run leaves it usable for the next query.
type session struct {
	id     string
	stream *protocol.Stream

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
}

// handleSession upgrades the connection and runs the read loop.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/ws/chat/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		sessionID = uuid.NewString()
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Session("Upgrade failed for session %s: %v", sessionID, err)
		return
	}
	defer conn.Close()

	stream := protocol.NewStream(sessionID, conn, s.relay, protocol.StreamConfig{
		AckTimeout: s.cfg.Protocol.AckTimeout,
		QueueSize:  s.cfg.Protocol.QueueSize,
	})
	defer stream.Close()

	sess := &session{id: sessionID, stream: stream}
	logging.Session("Session %s connected from %s", sessionID, r.RemoteAddr)

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			logging.Session("Session %s disconnected: %v", sessionID, err)
			sess.cancelRun()
			return
		}

		var msg protocol.ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logging.Protocol("Ignoring malformed client message on session %s: %v", sessionID, err)
			continue
		}

		switch {
		case msg.EID != 0:
			stream.Ack(msg.EID)

		case msg.Action == "cancel":
			logging.Session("Session %s requested cancel", sessionID)
			sess.cancelRun()

		case strings.TrimSpace(msg.Content) != "":
			if !sess.tryStart() {
				stream.Emit(protocol.EventError, protocol.ErrorPayload{
					Message: "a query is already being processed on this session",
				}, false)
				continue
			}
			runCtx, cancel := context.WithCancel(r.Context())
			sess.mu.Lock()
			sess.cancel = cancel
			sess.mu.Unlock()

			wg.Add(1)
			go func(query string) {
				defer wg.Done()
				defer sess.finish()
				s.controller.Run(runCtx, sessionID, query, stream)
			}(msg.Content)

		default:
			logging.Protocol("Ignoring empty client message on session %s", sessionID)
		}
	}
}

// tryStart marks the session busy; false if a run is already in flight.
func (s *session) tryStart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return false
	}
	s.running = true
	return true
}

// finish clears the busy flag so the session can take the next query.
func (s *session) finish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = false
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// cancelRun aborts the in-flight run, if any.
func (s *session) cancelRun() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}
