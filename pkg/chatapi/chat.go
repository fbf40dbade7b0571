package chatapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/haivivi/chatlogo/pkg/apierr"
	"github.com/haivivi/chatlogo/pkg/auth"
	"github.com/haivivi/chatlogo/pkg/chat"
	"github.com/haivivi/chatlogo/pkg/chatstore"
)

const (
	maxBodyBytes = 1 << 20
	maxTextRunes = 2000
)

type postMessage struct {
	ID          string                 `json:"id"`
	Role        chatstore.Role         `json:"role"`
	Parts       []chatstore.Block      `json:"parts"`
	Attachments []chatstore.Attachment `json:"attachments"`
}

type postRequest struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	Message        postMessage `json:"message"`
	Model          string      `json:"selectedChatModel"`
	Visibility     string      `json:"selectedVisibilityType"`
}

func badRequest(format string, args ...any) *apierr.Error {
	return apierr.Newf(apierr.BadRequest, apierr.SurfaceAPI, format, args...)
}

func (req *postRequest) validate() error {
	if req.ID == "" {
		req.ID = req.ConversationID
	}
	if err := uuid.Validate(req.ID); err != nil {
		return badRequest("id: %v", err)
	}
	if err := uuid.Validate(req.Message.ID); err != nil {
		return badRequest("message.id: %v", err)
	}
	if req.Message.Role != chatstore.RoleUser {
		return badRequest("message.role must be %q", chatstore.RoleUser)
	}
	if len(req.Message.Parts) == 0 {
		return badRequest("message.parts is empty")
	}
	for i, p := range req.Message.Parts {
		if p.Type != chatstore.BlockText {
			return badRequest("message.parts[%d]: unsupported type %q", i, p.Type)
		}
		if n := utf8.RuneCountInString(p.Text); n == 0 || n > maxTextRunes {
			return badRequest("message.parts[%d]: text must be 1 to %d characters", i, maxTextRunes)
		}
	}
	for i, a := range req.Message.Attachments {
		if a.URL == "" {
			return badRequest("message.attachments[%d]: url is required", i)
		}
		if a.ContentType != "image/jpeg" && a.ContentType != "image/png" {
			return badRequest("message.attachments[%d]: unsupported content type %q", i, a.ContentType)
		}
	}
	switch req.Model {
	case chat.ModelChat, chat.ModelReasoning:
	default:
		return badRequest("selectedChatModel: unknown model %q", req.Model)
	}
	if !chatstore.Visibility(req.Visibility).Valid() {
		return badRequest("selectedVisibilityType: unknown visibility %q", req.Visibility)
	}
	return nil
}

func (s *Server) authenticate(r *http.Request, surface apierr.Surface) (*auth.User, error) {
	u, err := s.auth.Authenticate(r)
	if err != nil {
		s.logger.DebugContext(r.Context(), "chatapi: authentication failed", "error", err)
		return nil, apierr.New(apierr.Unauthorized, surface)
	}
	return u, nil
}

func (s *Server) handlePostChat(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		badRequest("decode body: %v", err).Write(w)
		return
	}
	if err := req.validate(); err != nil {
		apierr.Write(w, err)
		return
	}
	u, err := s.authenticate(r, apierr.SurfaceChat)
	if err != nil {
		apierr.Write(w, err)
		return
	}

	attachments := req.Message.Attachments
	if attachments == nil {
		attachments = []chatstore.Attachment{}
	}
	reader, err := s.svc.Send(r.Context(), chat.Request{
		ConversationID: req.ID,
		Message: chatstore.Message{
			ID:          req.Message.ID,
			Role:        chatstore.RoleUser,
			Parts:       req.Message.Parts,
			Attachments: attachments,
		},
		Model:      req.Model,
		Visibility: chatstore.Visibility(req.Visibility),
		User:       u,
	})
	if err != nil {
		apierr.Write(w, err)
		return
	}
	s.writeSSE(w, r, reader)
}

// conversationID reads the conversation id query parameter, accepting the
// conversationId alias.
func conversationID(r *http.Request, key string) (string, error) {
	q := r.URL.Query()
	id := q.Get(key)
	if id == "" {
		id = q.Get("conversationId")
	}
	if id == "" {
		return "", badRequest("%s is required", key)
	}
	if err := uuid.Validate(id); err != nil {
		return "", badRequest("%s: %v", key, err)
	}
	return id, nil
}

// resumeFrom returns the first sequence number to replay. Last-Event-ID
// names the last event the client saw; from names the first it wants.
func resumeFrom(r *http.Request) (uint64, error) {
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, badRequest("Last-Event-ID: %v", err)
		}
		return n + 1, nil
	}
	if v := r.URL.Query().Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, badRequest("from: %v", err)
		}
		return max(n, 1), nil
	}
	return 1, nil
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
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
	s.writeSSE(w, r, reader)
}

func (s *Server) handleDeleteChat(w http.ResponseWriter, r *http.Request) {
	id, err := conversationID(r, "id")
	if err != nil {
		apierr.Write(w, err)
		return
	}
	u, err := s.authenticate(r, apierr.SurfaceChat)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	c, err := s.svc.Delete(r.Context(), u, id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}
