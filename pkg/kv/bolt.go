package kv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"
)

var _ Store = (*Bolt)(nil)

var boltBucket = []byte("kv")

// Bolt is a Store backed by a single bbolt file. Bolt has no native expiry,
// so every value is prefixed with an 8-byte big-endian deadline in unix
// nanoseconds (zero for none) and expired entries are skipped on read.
type Bolt struct {
	db   *bolt.DB
	opts *Options
	now  func() time.Time
}

// BoltOptions configures the bbolt store.
type BoltOptions struct {
	Options *Options

	// Path is the database file. Parent directories are created.
	Path string

	// Timeout bounds how long Open waits for the file lock.
	Timeout time.Duration
}

// NewBolt opens (or creates) a bbolt-backed Store.
func NewBolt(bopts BoltOptions) (*Bolt, error) {
	if bopts.Path == "" {
		return nil, errors.New("kv: BoltOptions.Path is required")
	}
	if err := os.MkdirAll(filepath.Dir(bopts.Path), 0o755); err != nil {
		return nil, err
	}
	timeout := bopts.Timeout
	if timeout == 0 {
		timeout = time.Second
	}
	db, err := bolt.Open(bopts.Path, 0o600, &bolt.Options{Timeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("kv: open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db, opts: bopts.Options, now: time.Now}, nil
}

func (b *Bolt) wrap(val []byte, ttl time.Duration) []byte {
	out := make([]byte, 8+len(val))
	if ttl > 0 {
		binary.BigEndian.PutUint64(out, uint64(b.now().Add(ttl).UnixNano()))
	}
	copy(out[8:], val)
	return out
}

// unwrap returns a copy of the payload, or false if the raw value is
// expired or malformed.
func (b *Bolt) unwrap(raw []byte) ([]byte, bool) {
	if len(raw) < 8 {
		return nil, false
	}
	if dl := binary.BigEndian.Uint64(raw); dl != 0 && b.now().UnixNano() >= int64(dl) {
		return nil, false
	}
	return slices.Clone(raw[8:]), true
}

func (b *Bolt) Get(_ context.Context, key Key) ([]byte, error) {
	var (
		val []byte
		ok  bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		val, ok = b.unwrap(tx.Bucket(boltBucket).Get(b.opts.encode(key)))
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return val, nil
}

func (b *Bolt) Set(_ context.Context, key Key, value []byte) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(b.opts.encode(key), b.wrap(value, 0))
	})
}

func (b *Bolt) Update(_ context.Context, key Key, fn UpdateFunc) error {
	k := b.opts.encode(key)
	err := b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(boltBucket)
		old, exists := b.unwrap(bkt.Get(k))
		val, err := fn(old, exists)
		if err != nil {
			return err
		}
		return bkt.Put(k, b.wrap(val, 0))
	})
	if errors.Is(err, ErrAbort) {
		return nil
	}
	return err
}

func (b *Bolt) Delete(_ context.Context, key Key) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(b.opts.encode(key))
	})
}

func (b *Bolt) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := b.opts.prefix(prefix)
	return func(yield func(Entry, error) bool) {
		// Collect first: yielding inside a read transaction would block
		// writers issued from the loop body.
		var entries []Entry
		err := b.db.View(func(tx *bolt.Tx) error {
			c := tx.Bucket(boltBucket).Cursor()
			for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
				val, ok := b.unwrap(v)
				if !ok {
					continue
				}
				entries = append(entries, Entry{Key: b.opts.decode(k), Value: val})
			}
			return nil
		})
		if err != nil {
			yield(Entry{}, err)
			return
		}
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (b *Bolt) BatchSet(_ context.Context, entries []Entry) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(boltBucket)
		for _, e := range entries {
			if err := bkt.Put(b.opts.encode(e.Key), b.wrap(e.Value, e.TTL)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) BatchDelete(_ context.Context, keys []Key) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(boltBucket)
		for _, key := range keys {
			if err := bkt.Delete(b.opts.encode(key)); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
