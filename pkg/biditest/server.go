package biditest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/vango-dev/webdriverbidi/pkg/protocol"
)

// SessionPath is the websocket endpoint served by Server.
const SessionPath = "/session"

// Server is a websocket remote end backed by httptest.
type Server struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu        sync.Mutex
	responder Responder
	conns     map[*websocket.Conn]*sync.Mutex
	received  [][]byte
}

// NewServer starts a Server. responder may be nil.
func NewServer(responder Responder) *Server {
	s := &Server{
		responder: responder,
		conns:     make(map[*websocket.Conn]*sync.Mutex),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get(SessionPath, s.serveSession)
	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value":{"ready":true,"message":"biditest"}}`))
	})

	s.srv = httptest.NewServer(r)
	return s
}

// URL returns the ws:// URL of the session endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http") + SessionPath
}

// HTTPURL returns the base http:// URL.
func (s *Server) HTTPURL() string {
	return s.srv.URL
}

// SetResponder replaces the responder.
func (s *Server) SetResponder(r Responder) {
	s.mu.Lock()
	s.responder = r
	s.mu.Unlock()
}

// Received returns a copy of every frame received so far.
func (s *Server) Received() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.received))
	copy(out, s.received)
	return out
}

// Emit writes frame to every connected client.
func (s *Server) Emit(frame []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn, wmu := range s.conns {
		wmu.Lock()
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		_ = conn.WriteMessage(websocket.TextMessage, frame)
		wmu.Unlock()
	}
}

// DropConnections closes every client socket without a close frame.
func (s *Server) DropConnections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for conn := range s.conns {
		_ = conn.Close()
	}
}

// Close shuts the server down.
func (s *Server) Close() {
	s.DropConnections()
	s.srv.Close()
}

func (s *Server) serveSession(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	wmu := &sync.Mutex{}
	s.mu.Lock()
	s.conns[conn] = wmu
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		s.mu.Lock()
		s.received = append(s.received, data)
		responder := s.responder
		s.mu.Unlock()

		if responder == nil {
			continue
		}
		cmd, err := protocol.ParseCommand(data)
		if err != nil {
			continue
		}
		for _, frame := range responder(cmd) {
			wmu.Lock()
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			err := conn.WriteMessage(websocket.TextMessage, frame)
			wmu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
