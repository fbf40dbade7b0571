package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/haivivi/chatlogo/pkg/buffer"
)

var (
	// ErrSealed is returned by writes after Finish or Fail.
	ErrSealed = errors.New("stream: session sealed")

	// ErrNotFound is returned by Attach for sessions that are unknown,
	// sealed, or not replayable.
	ErrNotFound = errors.New("stream: session not found")

	// ErrCapability is returned when a sink is asked to emit an event type
	// it does not carry.
	ErrCapability = errors.New("stream: event type not permitted")
)

// Writer is the single producer of one session.
type Writer struct {
	id             string
	conversationID string
	log            Log

	mu      sync.Mutex
	seq     uint64
	sealed  bool
	readers map[*Reader]struct{}
	onSeal  func()
}

// NewWriter creates a session writer. With a nil log the session is
// one-shot: only readers from Subscribe see its events.
func NewWriter(id, conversationID string, log Log) *Writer {
	return &Writer{
		id:             id,
		conversationID: conversationID,
		log:            log,
		readers:        make(map[*Reader]struct{}),
	}
}

// ID returns the session id.
func (w *Writer) ID() string { return w.id }

// ConversationID returns the conversation the session belongs to.
func (w *Writer) ConversationID() string { return w.conversationID }

// Seq returns the sequence number of the last written event.
func (w *Writer) Seq() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.seq
}

// Sealed reports whether the terminal event has been written.
func (w *Writer) Sealed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.sealed
}

// Write sequences e, appends it to the log and fans it out.
func (w *Writer) Write(ctx context.Context, e Event) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return 0, ErrSealed
	}
	return w.writeLocked(ctx, e)
}

// Emit is Write(NewEvent(t, content)).
func (w *Writer) Emit(ctx context.Context, t Type, content any) error {
	e, err := NewEvent(t, content)
	if err != nil {
		return err
	}
	_, err = w.Write(ctx, e)
	return err
}

func (w *Writer) writeLocked(ctx context.Context, e Event) (uint64, error) {
	e.Seq = w.seq + 1
	if w.log != nil {
		if err := w.log.Append(ctx, w.id, e); err != nil {
			return 0, fmt.Errorf("stream: append event %d: %w", e.Seq, err)
		}
	}
	w.seq = e.Seq
	w.fanOutLocked(e)
	return e.Seq, nil
}

func (w *Writer) fanOutLocked(e Event) {
	for r := range w.readers {
		if err := r.buf.Add(e); err != nil {
			delete(w.readers, r)
		}
	}
}

// Finish writes the terminal finish event and seals the session.
func (w *Writer) Finish(ctx context.Context, reason string) error {
	return w.terminate(ctx, TypeFinish, Finish{Reason: reason})
}

// Fail writes the terminal error event and seals the session.
func (w *Writer) Fail(ctx context.Context, msg string) error {
	return w.terminate(ctx, TypeError, msg)
}

func (w *Writer) terminate(ctx context.Context, t Type, content any) error {
	e, err := NewEvent(t, content)
	if err != nil {
		return err
	}
	w.mu.Lock()
	if w.sealed {
		w.mu.Unlock()
		return ErrSealed
	}
	// Live readers get the terminal event even when the log rejects it.
	e.Seq = w.seq + 1
	var werr error
	if w.log != nil {
		if err := w.log.Append(ctx, w.id, e); err != nil {
			werr = fmt.Errorf("stream: append event %d: %w", e.Seq, err)
		}
	}
	w.seq = e.Seq
	w.fanOutLocked(e)
	w.sealed = true
	var serr error
	if w.log != nil {
		serr = w.log.Seal(ctx, w.id)
	}
	for r := range w.readers {
		r.buf.CloseWrite()
	}
	clear(w.readers)
	onSeal := w.onSeal
	w.mu.Unlock()

	if onSeal != nil {
		onSeal()
	}
	return errors.Join(werr, serr)
}

// Subscribe returns a reader that receives every event written after the
// call.
func (w *Writer) Subscribe() *Reader {
	r := &Reader{w: w, buf: buffer.N[Event](16)}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		r.buf.CloseWrite()
		return r
	}
	w.readers[r] = struct{}{}
	return r
}

// attach replays events from seq from onward out of the log and registers
// the reader for the rest, all under the write lock.
func (w *Writer) attach(ctx context.Context, from uint64) (*Reader, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sealed {
		return nil, ErrNotFound
	}
	if from == 0 {
		from = 1
	}
	r := &Reader{w: w, buf: buffer.N[Event](16)}
	if from <= w.seq {
		if w.log == nil {
			return nil, ErrNotFound
		}
		for e, err := range w.log.Range(ctx, w.id, from) {
			if err != nil {
				return nil, fmt.Errorf("stream: replay %s: %w", w.id, err)
			}
			if e.Seq > w.seq {
				break
			}
			r.buf.Add(e)
		}
	}
	w.readers[r] = struct{}{}
	return r, nil
}

func (w *Writer) detach(r *Reader) {
	w.mu.Lock()
	delete(w.readers, r)
	w.mu.Unlock()
}

// Reader consumes one view of a session.
type Reader struct {
	w   *Writer
	buf *buffer.Buffer[Event]
}

// Next returns the next event. After the terminal event it returns io.EOF.
// After Close it returns an error wrapping io.ErrClosedPipe.
func (r *Reader) Next() (Event, error) {
	e, err := r.buf.Next()
	if errors.Is(err, buffer.ErrIteratorDone) {
		return Event{}, io.EOF
	}
	return e, err
}

// Close detaches the reader. The session keeps running.
func (r *Reader) Close() error {
	if r.w != nil {
		r.w.detach(r)
	}
	return r.buf.Close()
}

// StaticReader returns a reader over a fixed list of events that ends
// after the last one. It stands in for a session that is no longer live.
func StaticReader(events ...Event) *Reader {
	r := &Reader{buf: buffer.N[Event](len(events))}
	for _, e := range events {
		r.buf.Add(e)
	}
	r.buf.CloseWrite()
	return r
}
