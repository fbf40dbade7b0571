package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/haivivi/chatlogo/pkg/apierr"
	"github.com/haivivi/chatlogo/pkg/auth"
	"github.com/haivivi/chatlogo/pkg/chatstore"
	"github.com/haivivi/chatlogo/pkg/stream"
)

// ErrNotResumable is returned by Resume when sessions are not retained.
var ErrNotResumable = errors.New("chat: resumable streams are disabled")

// Resume reattaches to the newest session of a conversation, replaying
// from sequence number from. When that session is over, the reply is
// restored from the store: an assistant message written within the
// freshness window comes back as a single append-message event, anything
// else as an empty stream.
func (s *Service) Resume(ctx context.Context, u *auth.User, cid string, from uint64) (*stream.Reader, error) {
	now := s.now()
	if !s.Resumable() {
		return nil, ErrNotResumable
	}
	if _, err := s.Conversation(ctx, u, cid); err != nil {
		return nil, err
	}
	sess, err := s.streams.MostRecent(ctx, cid)
	if errors.Is(err, stream.ErrNotFound) {
		return nil, apierr.New(apierr.NotFound, apierr.SurfaceStream)
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load session: %w", err)
	}

	r, err := s.streams.Attach(ctx, sess.ID, from)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, stream.ErrNotFound) {
		return nil, fmt.Errorf("chat: attach session: %w", err)
	}

	last, err := s.store.LastMessage(ctx, cid)
	if errors.Is(err, chatstore.ErrNotFound) {
		return stream.StaticReader(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("chat: load last message: %w", err)
	}
	if last.Role != chatstore.RoleAssistant || now.Sub(last.CreatedAt.Time()) > s.cfg.FreshnessWindow {
		return stream.StaticReader(), nil
	}
	e, err := stream.NewEvent(stream.TypeAppendMessage, last)
	if err != nil {
		return nil, err
	}
	return stream.StaticReader(e), nil
}
