// Package storage defines the FileStore interface for uploaded attachment
// blobs. Local disk and S3-compatible object stores are provided.
//
// Artifacts that reference a blob store its path as a "blob:" reference
// (see [Ref]) rather than inline bytes.
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"strings"
)

// ErrInvalidPath is returned for paths that are empty, absolute, or escape
// the store root.
var ErrInvalidPath = errors.New("storage: invalid path")

// FileStore is a minimal interface for blob storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Put stores the contents of r at path, replacing any existing blob.
	// contentType is recorded where the backend supports it.
	Put(ctx context.Context, path, contentType string, r io.Reader) error

	// Open opens the named blob for reading. The caller must close it.
	// A missing blob yields an error wrapping os.ErrNotExist.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the named blob. Missing blobs are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named blob exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// RefPrefix marks artifact content that points at a stored blob.
const RefPrefix = "blob:"

// Ref returns the content reference for a blob path.
func Ref(p string) string {
	return RefPrefix + p
}

// ParseRef returns the blob path of a reference produced by Ref.
func ParseRef(ref string) (string, bool) {
	p, ok := strings.CutPrefix(ref, RefPrefix)
	if !ok || p == "" {
		return "", false
	}
	return p, true
}

// clean validates p and returns its canonical form.
func clean(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return "", ErrInvalidPath
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", ErrInvalidPath
	}
	return c, nil
}
