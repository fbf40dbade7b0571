// Package kv provides the key-value store that chatlogo persists everything
// into: conversations, messages, artifact versions, stream sessions, stream
// event logs and suggestions.
//
// Keys are hierarchical string slices (e.g. ["chat", id, "msg", ts]) joined
// with a separator (default ':'). Three backends are provided: Badger for
// production, Bolt for single-file deployments and Memory for tests.
package kv

import (
	"context"
	"errors"
	"iter"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a key does not exist in the store.
	ErrNotFound = errors.New("kv: not found")

	// ErrAbort may be returned by an UpdateFunc to leave the key untouched
	// without failing the call.
	ErrAbort = errors.New("kv: update aborted")
)

// Key is a hierarchical path represented as a slice of string segments.
// Segments must not contain the configured separator.
type Key []string

// String returns the key joined with ':' for display.
func (k Key) String() string {
	return strings.Join(k, ":")
}

// Append returns a new key with segs appended. The receiver is not modified.
func (k Key) Append(segs ...string) Key {
	out := make(Key, 0, len(k)+len(segs))
	out = append(out, k...)
	return append(out, segs...)
}

// Last returns the final segment, or "" for an empty key.
func (k Key) Last() string {
	if len(k) == 0 {
		return ""
	}
	return k[len(k)-1]
}

// Entry is a key-value pair returned by List and consumed by BatchSet.
// A positive TTL makes the entry expire; zero means it lives forever.
type Entry struct {
	Key   Key
	Value []byte
	TTL   time.Duration
}

// UpdateFunc computes the new value of a key from its current value. old is
// nil and exists is false when the key is absent. Returning ErrAbort keeps
// the current value.
type UpdateFunc func(old []byte, exists bool) ([]byte, error)

// Store is a key-value store with path-based keys.
type Store interface {
	// Get retrieves the value for a key. Returns ErrNotFound if not present.
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set stores a key-value pair, overwriting any existing value.
	Set(ctx context.Context, key Key, value []byte) error

	// Update atomically replaces the value of key with fn's result.
	Update(ctx context.Context, key Key, fn UpdateFunc) error

	// Delete removes a key. No error if the key does not exist.
	Delete(ctx context.Context, key Key) error

	// List iterates over entries under prefix in lexicographic order of the
	// encoded key.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// BatchSet atomically stores multiple entries.
	BatchSet(ctx context.Context, entries []Entry) error

	// BatchDelete atomically removes multiple keys.
	BatchDelete(ctx context.Context, keys []Key) error

	// Close releases any resources held by the store.
	Close() error
}

// DefaultSeparator joins key segments when encoded.
const DefaultSeparator byte = ':'

// Options configures store behavior.
type Options struct {
	// Separator joins key segments. Default ':' if zero.
	Separator byte
}

func (o *Options) sep() byte {
	if o != nil && o.Separator != 0 {
		return o.Separator
	}
	return DefaultSeparator
}

func (o *Options) encode(k Key) []byte {
	return []byte(strings.Join(k, string(o.sep())))
}

// prefix encodes k with a trailing separator so that "a:b" does not match
// "a:bc". An empty key yields an empty prefix that matches everything.
func (o *Options) prefix(k Key) []byte {
	if len(k) == 0 {
		return nil
	}
	return append(o.encode(k), o.sep())
}

func (o *Options) decode(b []byte) Key {
	return Key(strings.Split(string(b), string(o.sep())))
}
