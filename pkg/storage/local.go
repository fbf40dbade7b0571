package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path"

	"github.com/google/uuid"
)

var _ FileStore = (*Local)(nil)

// Local stores blobs under a directory. Access goes through an os.Root, so
// symlinks inside the tree cannot reach outside it either.
type Local struct {
	dir  string
	root *os.Root
}

// NewLocal opens dir as a store, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	root, err := os.OpenRoot(dir)
	if err != nil {
		return nil, err
	}
	return &Local{dir: root.Name(), root: root}, nil
}

// Close releases the directory handle.
func (l *Local) Close() error { return l.root.Close() }

// Put writes into a sibling temp file and renames it over p, so a reader
// sees either the old blob or the new one. contentType is ignored.
func (l *Local) Put(_ context.Context, p, _ string, r io.Reader) error {
	name, err := clean(p)
	if err != nil {
		return err
	}
	if dir := path.Dir(name); dir != "." {
		if err := l.root.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path.Join(path.Dir(name), ".put-"+uuid.NewString())
	f, err := l.root.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = l.root.Rename(tmp, name)
	}
	if err != nil {
		l.root.Remove(tmp)
	}
	return err
}

func (l *Local) Open(_ context.Context, p string) (io.ReadCloser, error) {
	name, err := clean(p)
	if err != nil {
		return nil, err
	}
	return l.root.Open(name)
}

func (l *Local) Delete(_ context.Context, p string) error {
	name, err := clean(p)
	if err != nil {
		return err
	}
	if err := l.root.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (l *Local) Exists(_ context.Context, p string) (bool, error) {
	name, err := clean(p)
	if err != nil {
		return false, err
	}
	switch _, err := l.root.Stat(name); {
	case err == nil:
		return true, nil
	case errors.Is(err, fs.ErrNotExist):
		return false, nil
	default:
		return false, err
	}
}
