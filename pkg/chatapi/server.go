// Package chatapi serves the chat engine over HTTP: message submission and
// resumption as server-sent events, a websocket tail of live sessions,
// image uploads and artifact reads.
package chatapi

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/haivivi/chatlogo/pkg/auth"
	"github.com/haivivi/chatlogo/pkg/chat"
)

// Server holds the HTTP handlers.
type Server struct {
	svc    *chat.Service
	auth   auth.Authenticator
	logger *slog.Logger
	mux    *http.ServeMux
}

// New returns a Server with its routes registered.
func New(svc *chat.Service, a auth.Authenticator, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		auth:   a,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("POST /api/chat", s.handlePostChat)
	s.mux.HandleFunc("GET /api/chat", s.handleResume)
	s.mux.HandleFunc("DELETE /api/chat", s.handleDeleteChat)
	s.mux.HandleFunc("GET /api/chat/ws", s.handleWebSocket)
	s.mux.HandleFunc("POST /api/files/upload", s.handleUpload)
	s.mux.HandleFunc("GET /api/document", s.handleDocument)
	s.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.Write([]byte("ok\n"))
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
