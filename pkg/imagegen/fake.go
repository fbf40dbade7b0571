package imagegen

import (
	"context"
	"encoding/base64"
	"sync"
)

var _ Client = (*Fake)(nil)

// Fake is a deterministic Client for tests and offline runs. It returns the
// base64 of "generated:<prompt>" or "edited:<prompt>".
type Fake struct {
	// GenerateErr and EditErr, when set, are returned instead.
	GenerateErr error
	EditErr     error

	mu    sync.Mutex
	calls []string
}

func (f *Fake) Generate(_ context.Context, prompt string) (string, error) {
	f.record("generate:" + prompt)
	if f.GenerateErr != nil {
		return "", f.GenerateErr
	}
	return base64.StdEncoding.EncodeToString([]byte("generated:" + prompt)), nil
}

func (f *Fake) Edit(_ context.Context, image, prompt string) (string, error) {
	f.record("edit:" + prompt)
	if f.EditErr != nil {
		return "", f.EditErr
	}
	if _, err := DecodeImage(image); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString([]byte("edited:" + prompt)), nil
}

// Calls returns the operations performed so far.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *Fake) record(c string) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}
