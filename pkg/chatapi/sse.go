package chatapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/haivivi/chatlogo/pkg/stream"
)

// writeSSE copies reader to the response until the session ends or the
// client goes away. Only the reader is closed on disconnect; the turn
// keeps running.
func (s *Server) writeSSE(w http.ResponseWriter, r *http.Request, reader *stream.Reader) {
	defer reader.Close()
	stop := context.AfterFunc(r.Context(), func() { reader.Close() })
	defer stop()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	rc.Flush()

	for {
		e, err := reader.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && r.Context().Err() == nil {
				s.logger.WarnContext(r.Context(), "chatapi: stream read", "error", err)
			}
			return
		}
		data, err := e.Wire()
		if err != nil {
			s.logger.ErrorContext(r.Context(), "chatapi: encode event", "seq", e.Seq, "error", err)
			return
		}
		if e.Seq > 0 {
			fmt.Fprintf(w, "id: %d\n", e.Seq)
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
