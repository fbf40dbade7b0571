package buffer

import (
	"errors"
	"io"
	"slices"
	"sync"
	"testing"
	"time"
)

func TestBuffer_FIFO(t *testing.T) {
	buf := N[int](2)
	for i := range 5 {
		if err := buf.Add(i); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	buf.CloseWrite()

	var got []int
	for {
		v, err := buf.Next()
		if errors.Is(err, ErrIteratorDone) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got = append(got, v)
	}
	if !slices.Equal(got, []int{0, 1, 2, 3, 4}) {
		t.Fatalf("got %v, want FIFO order", got)
	}
}

func TestBuffer_NextBlocksUntilAdd(t *testing.T) {
	buf := N[string](0)
	done := make(chan string)
	go func() {
		v, err := buf.Next()
		if err != nil {
			t.Errorf("Next: %v", err)
		}
		done <- v
	}()

	select {
	case v := <-done:
		t.Fatalf("Next returned %q before Add", v)
	case <-time.After(20 * time.Millisecond):
	}

	buf.Add("x")
	select {
	case v := <-done:
		if v != "x" {
			t.Fatalf("got %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Next not woken by Add")
	}
}

func TestBuffer_LenDrain(t *testing.T) {
	buf := N[byte](10)
	for _, c := range []byte{1, 2, 3} {
		buf.Add(c)
	}
	if buf.Len() != 3 {
		t.Fatalf("Len = %d", buf.Len())
	}
	buf.CloseWrite()
	for want := byte(1); want <= 3; want++ {
		got, err := buf.Next()
		if err != nil || got != want {
			t.Fatalf("Next = %d, %v; want %d", got, err, want)
		}
	}
	if buf.Len() != 0 {
		t.Fatalf("Len after drain = %d", buf.Len())
	}
	if _, err := buf.Next(); !errors.Is(err, ErrIteratorDone) {
		t.Fatalf("expected ErrIteratorDone, got %v", err)
	}
}

func TestBuffer_CloseWithError(t *testing.T) {
	buf := N[int](4)
	buf.Add(1)
	boom := errors.New("boom")
	buf.CloseWithError(boom)

	if _, err := buf.Next(); !errors.Is(err, boom) {
		t.Fatalf("Next err = %v, want boom", err)
	}
	if err := buf.Add(2); !errors.Is(err, boom) {
		t.Fatalf("Add err = %v, want boom", err)
	}
	if !errors.Is(buf.Error(), boom) {
		t.Fatalf("Error() = %v", buf.Error())
	}
	// First error wins.
	buf.CloseWithError(errors.New("later"))
	if !errors.Is(buf.Error(), boom) {
		t.Fatalf("Error() = %v", buf.Error())
	}
}

func TestBuffer_WriteAfterCloseWrite(t *testing.T) {
	buf := N[int](1)
	buf.CloseWrite()
	if err := buf.Add(1); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Add err = %v", err)
	}
}

func TestBuffer_CloseUnblocksReader(t *testing.T) {
	buf := N[int](0)
	errc := make(chan error)
	go func() {
		_, err := buf.Next()
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	buf.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, io.ErrClosedPipe) {
			t.Fatalf("err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("reader not unblocked by Close")
	}
}

func TestBuffer_ConcurrentProducers(t *testing.T) {
	buf := N[int](0)
	const producers, per = 4, 500

	var wg sync.WaitGroup
	for p := range producers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range per {
				buf.Add(p*per + i)
			}
		}()
	}
	go func() {
		wg.Wait()
		buf.CloseWrite()
	}()

	seen := make(map[int]bool)
	for {
		v, err := buf.Next()
		if errors.Is(err, ErrIteratorDone) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		seen[v] = true
	}
	if len(seen) != producers*per {
		t.Fatalf("got %d distinct items, want %d", len(seen), producers*per)
	}
}
