package chatapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/chatlogo/pkg/apierr"
	"github.com/haivivi/chatlogo/pkg/chat"
)

const wsWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// handleWebSocket tails the newest session of a conversation. Every event
// is one JSON text frame carrying its sequence number.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Resumable() {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	id, err := conversationID(r, "chatId")
	if err != nil {
		apierr.Write(w, err)
		return
	}
	from, err := resumeFrom(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	u, err := s.authenticate(r, apierr.SurfaceChat)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	reader, err := s.svc.Resume(r.Context(), u, id, from)
	if errors.Is(err, chat.ErrNotResumable) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		apierr.Write(w, err)
		return
	}
	defer reader.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WarnContext(r.Context(), "chatapi: websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	// The read loop only notices the peer going away.
	go func() {
		for {
			if _, _, err := conn.NextReader(); err != nil {
				reader.Close()
				return
			}
		}
	}()

	for {
		e, err := reader.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			}
			return
		}
		conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := conn.WriteJSON(e); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.DebugContext(r.Context(), "chatapi: websocket write", "error", err)
			}
			return
		}
	}
}
