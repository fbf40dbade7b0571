// Package chat runs chat turns: it drives the model's step loop, executes
// the artifact tools, multiplexes everything onto one stream session and
// reconciles the result into the store once the turn is over.
package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/haivivi/chatlogo/pkg/apierr"
	"github.com/haivivi/chatlogo/pkg/artifact"
	"github.com/haivivi/chatlogo/pkg/auth"
	"github.com/haivivi/chatlogo/pkg/chatstore"
	"github.com/haivivi/chatlogo/pkg/genx"
	"github.com/haivivi/chatlogo/pkg/jsontime"
	"github.com/haivivi/chatlogo/pkg/storage"
	"github.com/haivivi/chatlogo/pkg/stream"
)

// Chat model names selectable by clients.
const (
	ModelChat      = "chat-model"
	ModelReasoning = "chat-model-reasoning"
)

// Generator names used besides the chat models.
const (
	TitleModel    = "title-model"
	ArtifactModel = artifact.DefaultModel
)

// ErrorMessage is the content of the terminal error event of a turn that
// failed unexpectedly.
const ErrorMessage = "Oops, an error occurred!"

const (
	DefaultMaxSteps        = 5
	DefaultTurnTimeout     = 10 * time.Minute
	DefaultFreshnessWindow = 15 * time.Second
)

// QuotaPolicy limits the user messages a user may send in a rolling
// 24 hours. A user whose count exceeds the maximum for their tier is
// rejected.
type QuotaPolicy struct {
	Enabled   bool                  `json:"enabled" yaml:"enabled"`
	MaxPerDay map[auth.UserType]int `json:"maxPerDay,omitempty" yaml:"maxPerDay,omitempty"`
}

// DefaultQuota returns the disabled policy with the standard tier limits.
func DefaultQuota() QuotaPolicy {
	return QuotaPolicy{
		MaxPerDay: map[auth.UserType]int{
			auth.UserGuest:   20,
			auth.UserRegular: 100,
		},
	}
}

// Config tunes a Service. Zero fields take their defaults.
type Config struct {
	MaxSteps        int
	TurnTimeout     time.Duration
	FreshnessWindow time.Duration
	Quota           QuotaPolicy
}

// Deps are the collaborators of a Service.
type Deps struct {
	Store     *chatstore.Store
	Streams   *stream.Registry
	Artifacts *artifact.Registry

	// Generator serves the chat, title and artifact models.
	Generator genx.Generator

	// Blobs holds uploaded attachments. Optional.
	Blobs storage.FileStore

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// Service is the chat engine.
type Service struct {
	cfg       Config
	store     *chatstore.Store
	streams   *stream.Registry
	artifacts *artifact.Registry
	gen       genx.Generator
	blobs     storage.FileStore
	logger    *slog.Logger
	now       func() time.Time

	// Turns outlive their request. Drain waits for them and, past its
	// deadline, cancels stop.
	mu       sync.Mutex
	draining bool
	turns    sync.WaitGroup
	stop     context.Context
	abort    context.CancelFunc
}

// New returns a Service.
func New(cfg Config, d Deps) *Service {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultMaxSteps
	}
	if cfg.TurnTimeout <= 0 {
		cfg.TurnTimeout = DefaultTurnTimeout
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = DefaultFreshnessWindow
	}
	if cfg.Quota.MaxPerDay == nil {
		cfg.Quota.MaxPerDay = DefaultQuota().MaxPerDay
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	stop, abort := context.WithCancel(context.Background())
	return &Service{
		stop:      stop,
		abort:     abort,
		cfg:       cfg,
		store:     d.Store,
		streams:   d.Streams,
		artifacts: d.Artifacts,
		gen:       d.Generator,
		blobs:     d.Blobs,
		logger:    d.Logger,
		now:       d.Now,
	}
}

// Resumable reports whether sessions survive a disconnect.
func (s *Service) Resumable() bool {
	return s.streams.Resumable()
}

// Request is one inbound user message.
type Request struct {
	ConversationID string
	Message        chatstore.Message
	Model          string
	Visibility     chatstore.Visibility
	User           *auth.User
}

// Send records the user message, starts the turn in the background and
// returns a reader over its stream session. The turn outlives ctx.
func (s *Service) Send(ctx context.Context, req Request) (*stream.Reader, error) {
	uid := req.User.ID
	s.mu.Lock()
	draining := s.draining
	s.mu.Unlock()
	if draining {
		return nil, apierr.New(apierr.Offline, apierr.SurfaceChat)
	}
	if err := s.checkQuota(ctx, req.User); err != nil {
		return nil, err
	}

	conv, err := s.store.GetConversation(ctx, req.ConversationID)
	switch {
	case errors.Is(err, chatstore.ErrNotFound):
		conv = &chatstore.Conversation{
			ID:         req.ConversationID,
			UserID:     uid,
			Title:      s.title(ctx, req.Message.Text()),
			Visibility: req.Visibility,
		}
		if err := s.store.SaveConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("chat: save conversation: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	case conv.UserID != uid:
		return nil, apierr.New(apierr.Forbidden, apierr.SurfaceChat)
	}

	history, err := s.store.Messages(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("chat: load messages: %w", err)
	}

	msg := req.Message
	msg.ConversationID = conv.ID
	msg.Role = chatstore.RoleUser
	msg.CreatedAt = jsontime.Milli(s.now())
	if err := s.store.SaveMessages(ctx, uid, &msg); err != nil {
		return nil, fmt.Errorf("chat: save user message: %w", err)
	}

	w, err := s.streams.Begin(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("chat: begin session: %w", err)
	}
	r := w.Subscribe()

	t := &turn{
		svc:     s,
		w:       w,
		user:    req.User,
		model:   req.Model,
		convID:  conv.ID,
		history: append(history, msg),
		logger:  s.logger.With("conversation", conv.ID, "session", w.ID()),
	}
	if !s.spawn(ctx, t) {
		r.Close()
		w.Fail(context.WithoutCancel(ctx), ErrorMessage)
		return nil, apierr.New(apierr.Offline, apierr.SurfaceChat)
	}
	return r, nil
}

// spawn starts t on its own goroutine unless the service is draining.
func (s *Service) spawn(ctx context.Context, t *turn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.draining {
		return false
	}
	tctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	unwatch := context.AfterFunc(s.stop, cancel)
	s.turns.Add(1)
	go func() {
		defer s.turns.Done()
		defer unwatch()
		defer cancel()
		t.run(tctx)
	}()
	return true
}

// Drain refuses new turns and waits for the running ones to finish. When
// ctx ends first, the remaining turns are cancelled and ctx's error is
// returned.
func (s *Service) Drain(ctx context.Context) error {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.turns.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.abort()
		return ctx.Err()
	}
}

func (s *Service) checkQuota(ctx context.Context, u *auth.User) error {
	if !s.cfg.Quota.Enabled {
		return nil
	}
	limit, ok := s.cfg.Quota.MaxPerDay[u.Type]
	if !ok {
		return nil
	}
	n, err := s.store.CountUserMessagesSince(ctx, u.ID, s.now().Add(-24*time.Hour))
	if err != nil {
		return fmt.Errorf("chat: count messages: %w", err)
	}
	if n > limit {
		return apierr.Newf(apierr.RateLimit, apierr.SurfaceChat, "%d messages in 24h, limit %d", n, limit)
	}
	return nil
}

const maxTitle = 80

// title asks the title model for a conversation title, falling back to the
// start of the first message.
func (s *Service) title(ctx context.Context, first string) string {
	var mcb genx.ModelContextBuilder
	mcb.PromptText("system", titlePrompt)
	mcb.UserText("user", first)

	t, err := collectText(ctx, s.gen, TitleModel, mcb.Build())
	t = strings.Trim(strings.TrimSpace(t), `"`)
	if err != nil || t == "" {
		if err != nil {
			s.logger.DebugContext(ctx, "chat: title generation failed", "error", err)
		}
		t = strings.TrimSpace(first)
	}
	return truncate(t, maxTitle)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

// collectText drains a generation and returns its text.
func collectText(ctx context.Context, gen genx.Generator, model string, mctx genx.ModelContext) (string, error) {
	st, err := gen.GenerateStream(ctx, model, mctx)
	if err != nil {
		return "", err
	}
	defer st.Close()
	var sb strings.Builder
	for {
		chunk, err := st.Next()
		if err != nil {
			if genx.Complete(err) {
				return sb.String(), nil
			}
			return "", err
		}
		if chunk == nil {
			continue
		}
		if t, ok := chunk.Part.(genx.Text); ok {
			sb.WriteString(string(t))
		}
	}
}

// Conversation returns a conversation the user may read.
func (s *Service) Conversation(ctx context.Context, u *auth.User, id string) (*chatstore.Conversation, error) {
	c, err := s.store.GetConversation(ctx, id)
	if errors.Is(err, chatstore.ErrNotFound) {
		return nil, apierr.New(apierr.NotFound, apierr.SurfaceChat)
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	}
	if c.Visibility == chatstore.VisibilityPrivate && c.UserID != u.ID {
		return nil, apierr.New(apierr.Forbidden, apierr.SurfaceChat)
	}
	return c, nil
}

// Delete removes a conversation owned by u and returns it.
func (s *Service) Delete(ctx context.Context, u *auth.User, id string) (*chatstore.Conversation, error) {
	c, err := s.store.GetConversation(ctx, id)
	if errors.Is(err, chatstore.ErrNotFound) {
		return nil, apierr.New(apierr.NotFound, apierr.SurfaceChat)
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load conversation: %w", err)
	}
	if c.UserID != u.ID {
		return nil, apierr.New(apierr.Forbidden, apierr.SurfaceChat)
	}
	if _, err := s.store.DeleteConversation(ctx, id); err != nil {
		return nil, fmt.Errorf("chat: delete conversation: %w", err)
	}
	return c, nil
}

// Documents returns every version of an artifact owned by u.
func (s *Service) Documents(ctx context.Context, u *auth.User, id string) ([]chatstore.Document, error) {
	docs, err := s.store.Versions(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("chat: load document: %w", err)
	}
	if len(docs) == 0 {
		return nil, apierr.New(apierr.NotFound, apierr.SurfaceDocument)
	}
	if docs[0].UserID != u.ID {
		return nil, apierr.New(apierr.Forbidden, apierr.SurfaceDocument)
	}
	return docs, nil
}

// Upload is a stored attachment and the image artifact created for it.
type Upload struct {
	Pathname    string `json:"pathname"`
	ContentType string `json:"contentType"`
	DocumentID  string `json:"documentId"`
	Title       string `json:"title"`
	Kind        string `json:"kind"`
}

// uploadDir is the blob directory holding the uploads of user uid.
func uploadDir(uid string) string {
	return "attachments/" + url.PathEscape(uid) + "/"
}

// ownUpload returns the blob path of ref if it is an upload of uid. Both
// "blob:" references and bare paths are accepted.
func ownUpload(uid, ref string) (string, bool) {
	p, ok := storage.ParseRef(ref)
	if !ok {
		p = ref
	}
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", false
	}
	p = path.Clean(p)
	return p, strings.HasPrefix(p, uploadDir(uid))
}

// UploadImage stores an uploaded image under the user's attachments
// directory and creates an image artifact referencing it. Every upload gets
// its own blob, so equal filenames never collide.
func (s *Service) UploadImage(ctx context.Context, u *auth.User, filename, contentType string, r io.Reader) (*Upload, error) {
	if s.blobs == nil {
		return nil, errors.New("chat: no file store configured")
	}
	p := uploadDir(u.ID) + uuid.NewString() + "-" + path.Base(filename)
	if err := s.blobs.Put(ctx, p, contentType, r); err != nil {
		if errors.Is(err, storage.ErrInvalidPath) {
			return nil, apierr.Newf(apierr.BadRequest, apierr.SurfaceUpload, "invalid filename %q", filename)
		}
		return nil, fmt.Errorf("chat: store upload: %w", err)
	}
	doc := &chatstore.Document{
		ID:        uuid.NewString(),
		Kind:      string(artifact.KindImage),
		Title:     "Uploaded image: " + path.Base(filename),
		Content:   storage.Ref(p),
		UserID:    u.ID,
		CreatedAt: jsontime.Milli(s.now()),
	}
	if err := s.store.SaveDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("chat: save upload document: %w", err)
	}
	return &Upload{
		Pathname:    p,
		ContentType: contentType,
		DocumentID:  doc.ID,
		Title:       doc.Title,
		Kind:        doc.Kind,
	}, nil
}
