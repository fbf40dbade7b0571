// Package chatstore persists conversations, messages, artifact versions and
// suggestions as msgpack rows in a kv.Store.
package chatstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/haivivi/chatlogo/pkg/jsontime"
	"github.com/haivivi/chatlogo/pkg/kv"
	"github.com/vmihailenco/msgpack/v5"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("chatstore: not found")

	// ErrOwnerChanged is returned when saving a conversation would change
	// its owner.
	ErrOwnerChanged = errors.New("chatstore: conversation owner is immutable")

	// ErrLinkConflict is returned when an artifact version is already
	// linked to a different message.
	ErrLinkConflict = errors.New("chatstore: artifact linked to another message")
)

// Store reads and writes chat rows.
type Store struct {
	kv kv.Store
}

// New returns a Store over s.
func New(s kv.Store) *Store {
	return &Store{kv: s}
}

// KV returns the underlying key-value store.
func (s *Store) KV() kv.Store { return s.kv }

func stamp(t *jsontime.Milli) int64 {
	if t.IsZero() {
		*t = jsontime.Milli(clock.next())
	}
	return t.UnixNano()
}

func (s *Store) get(ctx context.Context, key kv.Key, v any) error {
	data, err := s.kv.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("chatstore: get %s: %w", key, err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("chatstore: decode %s: %w", key, err)
	}
	return nil
}

// list decodes every row under prefix in key order.
func list[T any](ctx context.Context, s kv.Store, prefix kv.Key) ([]T, error) {
	var out []T
	for e, err := range s.List(ctx, prefix) {
		if err != nil {
			return nil, fmt.Errorf("chatstore: list %s: %w", prefix, err)
		}
		var v T
		if err := msgpack.Unmarshal(e.Value, &v); err != nil {
			return nil, fmt.Errorf("chatstore: decode %s: %w", e.Key, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// SaveConversation creates or updates a conversation row and its owner
// index entry. The owner of an existing row cannot change.
func (s *Store) SaveConversation(ctx context.Context, c *Conversation) error {
	if c.ID == "" || c.UserID == "" {
		return errors.New("chatstore: conversation id and user id are required")
	}
	var prev Conversation
	switch err := s.get(ctx, chatKey(c.ID), &prev); {
	case err == nil:
		if prev.UserID != c.UserID {
			return ErrOwnerChanged
		}
		if c.CreatedAt.IsZero() {
			c.CreatedAt = prev.CreatedAt
		}
	case !errors.Is(err, ErrNotFound):
		return err
	}
	if c.Visibility == "" {
		c.Visibility = VisibilityPrivate
	}
	stamp(&c.CreatedAt)
	data, err := msgpack.Marshal(c)
	if err != nil {
		return fmt.Errorf("chatstore: encode conversation: %w", err)
	}
	return s.kv.BatchSet(ctx, []kv.Entry{
		{Key: chatKey(c.ID), Value: data},
		{Key: userChatKey(c.UserID, c.ID), Value: []byte{}},
	})
}

// GetConversation returns the conversation with id.
func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	var c Conversation
	if err := s.get(ctx, chatKey(id), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns a user's conversations, newest first.
func (s *Store) ListConversations(ctx context.Context, uid string) ([]Conversation, error) {
	var out []Conversation
	for e, err := range s.kv.List(ctx, userChatPrefix(uid)) {
		if err != nil {
			return nil, fmt.Errorf("chatstore: list conversations: %w", err)
		}
		c, err := s.GetConversation(ctx, e.Key.Last())
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	slices.SortFunc(out, func(a, b Conversation) int {
		return cmp.Compare(b.CreatedAt.UnixNano(), a.CreatedAt.UnixNano())
	})
	return out, nil
}

// DeleteConversation removes a conversation with its messages, stream
// sessions and index entries in one batch, and returns the deleted row.
// Artifacts are kept.
func (s *Store) DeleteConversation(ctx context.Context, id string) (*Conversation, error) {
	c, err := s.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	keys := []kv.Key{chatKey(id), userChatKey(c.UserID, id)}
	for e, err := range s.kv.List(ctx, chatKey(id)) {
		if err != nil {
			return nil, fmt.Errorf("chatstore: list conversation rows: %w", err)
		}
		keys = append(keys, e.Key)
		// chat:{cid}:msg:{ns}:{mid}
		if len(e.Key) == 5 && e.Key[2] == "msg" {
			keys = append(keys, kv.Key{"user", c.UserID, "msg", e.Key[3], e.Key[4]})
		}
	}
	if err := s.kv.BatchDelete(ctx, keys); err != nil {
		return nil, fmt.Errorf("chatstore: delete conversation: %w", err)
	}
	return c, nil
}

// SaveMessages persists messages of one conversation owned by uid. A zero
// CreatedAt is stamped with a monotonic clock. User-role messages are also
// indexed under the user for quota counting.
func (s *Store) SaveMessages(ctx context.Context, uid string, msgs ...*Message) error {
	entries := make([]kv.Entry, 0, 2*len(msgs))
	for _, m := range msgs {
		if m.ID == "" || m.ConversationID == "" {
			return errors.New("chatstore: message id and conversation id are required")
		}
		ts := stamp(&m.CreatedAt)
		data, err := msgpack.Marshal(m)
		if err != nil {
			return fmt.Errorf("chatstore: encode message: %w", err)
		}
		entries = append(entries, kv.Entry{Key: msgKey(m.ConversationID, ts, m.ID), Value: data})
		if m.Role == RoleUser {
			entries = append(entries, kv.Entry{Key: userMsgKey(uid, ts, m.ID), Value: []byte{}})
		}
	}
	return s.kv.BatchSet(ctx, entries)
}

// Messages returns the messages of a conversation in creation order.
func (s *Store) Messages(ctx context.Context, cid string) ([]Message, error) {
	return list[Message](ctx, s.kv, msgPrefix(cid))
}

// LastMessage returns the newest message of a conversation.
func (s *Store) LastMessage(ctx context.Context, cid string) (*Message, error) {
	msgs, err := s.Messages(ctx, cid)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, ErrNotFound
	}
	return &msgs[len(msgs)-1], nil
}

// CountUserMessagesSince counts the user-role messages uid sent at or after
// since.
func (s *Store) CountUserMessagesSince(ctx context.Context, uid string, since time.Time) (int, error) {
	floor := since.UnixNano()
	n := 0
	for e, err := range s.kv.List(ctx, userMsgPrefix(uid)) {
		if err != nil {
			return 0, fmt.Errorf("chatstore: count messages: %w", err)
		}
		if len(e.Key) < 4 {
			continue
		}
		ts, err := strconv.ParseInt(e.Key[3], 10, 64)
		if err != nil {
			continue
		}
		if ts >= floor {
			n++
		}
	}
	return n, nil
}

// SaveDocument persists a new artifact version. Versions are keyed by
// creation time so an existing row is never overwritten.
func (s *Store) SaveDocument(ctx context.Context, d *Document) error {
	if d.ID == "" {
		return errors.New("chatstore: document id is required")
	}
	ts := stamp(&d.CreatedAt)
	data, err := msgpack.Marshal(d)
	if err != nil {
		return fmt.Errorf("chatstore: encode document: %w", err)
	}
	return s.kv.Set(ctx, docKey(d.ID, ts), data)
}

// GetDocument returns the newest version of an artifact.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	docs, err := s.Versions(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	return &docs[len(docs)-1], nil
}

// Versions returns every version of an artifact, oldest first.
func (s *Store) Versions(ctx context.Context, id string) ([]Document, error) {
	return list[Document](ctx, s.kv, docPrefix(id))
}

// LinkMessage sets the message back-link on the newest version of an
// artifact. Linking the same message again is a no-op; linking a different
// one returns ErrLinkConflict.
func (s *Store) LinkMessage(ctx context.Context, aid, mid string) error {
	d, err := s.GetDocument(ctx, aid)
	if err != nil {
		return err
	}
	var conflict string
	err = s.kv.Update(ctx, docKey(aid, d.CreatedAt.UnixNano()), func(old []byte, exists bool) ([]byte, error) {
		if !exists {
			return nil, ErrNotFound
		}
		var cur Document
		if err := msgpack.Unmarshal(old, &cur); err != nil {
			return nil, err
		}
		switch cur.MessageID {
		case mid:
			return nil, kv.ErrAbort
		case "":
			cur.MessageID = mid
			return msgpack.Marshal(&cur)
		default:
			conflict = cur.MessageID
			return nil, kv.ErrAbort
		}
	})
	if err != nil {
		return fmt.Errorf("chatstore: link %s: %w", aid, err)
	}
	if conflict != "" {
		return fmt.Errorf("%w: %s has %s, want %s", ErrLinkConflict, aid, conflict, mid)
	}
	return nil
}

// SaveSuggestions stores suggestions in one batch.
func (s *Store) SaveSuggestions(ctx context.Context, suggs []Suggestion) error {
	if len(suggs) == 0 {
		return nil
	}
	entries := make([]kv.Entry, 0, len(suggs))
	for i := range suggs {
		sg := &suggs[i]
		stamp(&sg.CreatedAt)
		data, err := msgpack.Marshal(sg)
		if err != nil {
			return fmt.Errorf("chatstore: encode suggestion: %w", err)
		}
		entries = append(entries, kv.Entry{Key: suggKey(sg.DocumentID, sg.ID), Value: data})
	}
	return s.kv.BatchSet(ctx, entries)
}

// Suggestions returns the suggestions attached to an artifact.
func (s *Store) Suggestions(ctx context.Context, aid string) ([]Suggestion, error) {
	out, err := list[Suggestion](ctx, s.kv, suggPrefix(aid))
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b Suggestion) int {
		return cmp.Compare(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	})
	return out, nil
}
