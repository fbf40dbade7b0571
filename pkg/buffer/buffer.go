package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrIteratorDone is returned by Next once the buffer is closed for writing
// and fully drained.
var ErrIteratorDone = errors.New("iterator done")

// Buffer is an unbounded FIFO queue. Any number of goroutines may Add and
// Next concurrently.
type Buffer[T any] struct {
	mu    sync.Mutex
	ready sync.Cond

	items []T
	eof   bool  // no more writes
	fail  error // set by CloseWithError
}

// N returns an empty Buffer with room for n items before it grows.
func N[T any](n int) *Buffer[T] {
	b := &Buffer[T]{items: make([]T, 0, n)}
	b.ready.L = &b.mu
	return b
}

// Add appends t. It never blocks.
func (b *Buffer[T]) Add(t T) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch {
	case b.fail != nil:
		return fmt.Errorf("buffer: write to closed buffer: %w", b.fail)
	case b.eof:
		return fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
	}
	b.items = append(b.items, t)
	b.ready.Signal()
	return nil
}

// Next removes and returns the oldest item. It blocks while the buffer is
// empty and open.
func (b *Buffer[T]) Next() (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.items) == 0 && !b.eof && b.fail == nil {
		b.ready.Wait()
	}
	var zero T
	if b.fail != nil {
		return zero, fmt.Errorf("buffer: read from closed buffer: %w", b.fail)
	}
	if len(b.items) == 0 {
		return zero, ErrIteratorDone
	}
	t := b.items[0]
	b.items[0] = zero
	if b.items = b.items[1:]; len(b.items) == 0 {
		b.items = b.items[:0:0]
	}
	return t, nil
}

// CloseWrite rejects further Adds. Readers still drain what is queued.
func (b *Buffer[T]) CloseWrite() error {
	b.mu.Lock()
	b.eof = true
	b.mu.Unlock()
	b.ready.Broadcast()
	return nil
}

// CloseWithError drops the queue and fails every pending and future call
// with err. Later calls keep the first error.
func (b *Buffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	b.mu.Lock()
	if b.fail == nil {
		b.fail, b.eof, b.items = err, true, nil
	}
	b.mu.Unlock()
	b.ready.Broadcast()
	return nil
}

// Close fails the buffer with io.ErrClosedPipe.
func (b *Buffer[T]) Close() error {
	return b.CloseWithError(io.ErrClosedPipe)
}

// Error returns the error passed to CloseWithError, if any.
func (b *Buffer[T]) Error() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.fail
}

// Len returns the number of queued items.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
