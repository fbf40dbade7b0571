package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/chatlogo/pkg/jsontime"
	"github.com/haivivi/chatlogo/pkg/kv"
)

// Session is the persisted record of one stream.
type Session struct {
	ID             string         `json:"id" msgpack:"id"`
	ConversationID string         `json:"conversationId" msgpack:"conversationId"`
	CreatedAt      jsontime.Milli `json:"createdAt" msgpack:"createdAt"`
}

// Registry creates sessions and hands out readers for live ones.
type Registry struct {
	store  kv.Store
	log    Log
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	live map[string]*Writer
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock overrides the clock used for session timestamps.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry creates a Registry persisting session rows in store. With a
// nil log, sessions are one-shot and cannot be attached to.
func NewRegistry(store kv.Store, log Log, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  store,
		log:    log,
		now:    time.Now,
		logger: slog.Default(),
		live:   make(map[string]*Writer),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Resumable reports whether sessions can be reattached.
func (r *Registry) Resumable() bool {
	return r.log != nil
}

func sessionPrefix(cid string) kv.Key {
	return kv.Key{"chat", cid, "stream"}
}

// Begin persists a new session for the conversation and returns its writer.
func (r *Registry) Begin(ctx context.Context, conversationID string) (*Writer, error) {
	now := r.now()
	s := Session{
		ID:             shortuuid.New(),
		ConversationID: conversationID,
		CreatedAt:      jsontime.Milli(now),
	}
	b, err := msgpack.Marshal(&s)
	if err != nil {
		return nil, fmt.Errorf("stream: encode session: %w", err)
	}
	key := sessionPrefix(conversationID).Append(fmt.Sprintf("%020d", now.UnixNano()), s.ID)
	if err := r.store.Set(ctx, key, b); err != nil {
		return nil, fmt.Errorf("stream: save session: %w", err)
	}

	w := NewWriter(s.ID, conversationID, r.log)
	if r.log != nil {
		w.onSeal = func() { r.evict(s.ID) }
		r.mu.Lock()
		r.live[s.ID] = w
		r.mu.Unlock()
	}
	r.logger.Debug("stream: session begin", "session", s.ID, "conversation", conversationID)
	return w, nil
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	delete(r.live, id)
	r.mu.Unlock()
	r.logger.Debug("stream: session sealed", "session", id)
}

// Attach returns a reader for a live session starting at sequence number
// from (1 for the whole session). Sealed or unknown sessions yield
// ErrNotFound.
func (r *Registry) Attach(ctx context.Context, sessionID string, from uint64) (*Reader, error) {
	r.mu.Lock()
	w, ok := r.live[sessionID]
	r.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return w.attach(ctx, from)
}

// Sessions returns the conversation's sessions, oldest first.
func (r *Registry) Sessions(ctx context.Context, conversationID string) ([]Session, error) {
	var out []Session
	for e, err := range r.store.List(ctx, sessionPrefix(conversationID)) {
		if err != nil {
			return nil, err
		}
		var s Session
		if err := msgpack.Unmarshal(e.Value, &s); err != nil {
			return nil, fmt.Errorf("stream: decode session %s: %w", e.Key, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// MostRecent returns the newest session of the conversation, or
// ErrNotFound when it has none.
func (r *Registry) MostRecent(ctx context.Context, conversationID string) (Session, error) {
	sessions, err := r.Sessions(ctx, conversationID)
	if err != nil {
		return Session{}, err
	}
	if len(sessions) == 0 {
		return Session{}, ErrNotFound
	}
	return sessions[len(sessions)-1], nil
}

// Replay yields the logged events of any session, live or sealed, while
// they are retained.
func (r *Registry) Replay(ctx context.Context, sessionID string, from uint64) iter.Seq2[Event, error] {
	if r.log == nil {
		return func(yield func(Event, error) bool) {
			yield(Event{}, errors.New("stream: no log configured"))
		}
	}
	return r.log.Range(ctx, sessionID, from)
}
