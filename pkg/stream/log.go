package stream

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/chatlogo/pkg/kv"
)

// Log is the durable record of session events.
type Log interface {
	// Append stores e. Calls for one session are serialized by its Writer.
	Append(ctx context.Context, sessionID string, e Event) error

	// Range yields the stored events with Seq >= from in order.
	Range(ctx context.Context, sessionID string, from uint64) iter.Seq2[Event, error]

	// Seal marks the session complete.
	Seal(ctx context.Context, sessionID string) error

	// Sealed reports whether Seal was called for the session.
	Sealed(ctx context.Context, sessionID string) (bool, error)
}

var _ Log = (*KVLog)(nil)

// KVLog is a Log on a kv.Store. Events live under
// stream:{sid}:evt:{seq} and expire after TTL.
type KVLog struct {
	Store kv.Store

	// TTL is the retention of events and the seal marker. Zero keeps them
	// forever.
	TTL time.Duration
}

func eventKey(sid string, seq uint64) kv.Key {
	return kv.Key{"stream", sid, "evt", fmt.Sprintf("%020d", seq)}
}

func sealKey(sid string) kv.Key {
	return kv.Key{"stream", sid, "sealed"}
}

func (l *KVLog) Append(ctx context.Context, sid string, e Event) error {
	b, err := msgpack.Marshal(&e)
	if err != nil {
		return fmt.Errorf("stream: encode event: %w", err)
	}
	return l.Store.BatchSet(ctx, []kv.Entry{{Key: eventKey(sid, e.Seq), Value: b, TTL: l.TTL}})
}

func (l *KVLog) Range(ctx context.Context, sid string, from uint64) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for entry, err := range l.Store.List(ctx, kv.Key{"stream", sid, "evt"}) {
			if err != nil {
				yield(Event{}, err)
				return
			}
			seq, err := strconv.ParseUint(entry.Key.Last(), 10, 64)
			if err != nil || seq < from {
				continue
			}
			var e Event
			if err := msgpack.Unmarshal(entry.Value, &e); err != nil {
				yield(Event{}, fmt.Errorf("stream: decode event %d: %w", seq, err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (l *KVLog) Seal(ctx context.Context, sid string) error {
	return l.Store.BatchSet(ctx, []kv.Entry{{Key: sealKey(sid), Value: []byte{1}, TTL: l.TTL}})
}

func (l *KVLog) Sealed(ctx context.Context, sid string) (bool, error) {
	_, err := l.Store.Get(ctx, sealKey(sid))
	if errors.Is(err, kv.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}
