package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLocal(t *testing.T) *Local {
	t.Helper()
	s, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func readAll(t *testing.T, fs FileStore, p string) string {
	t.Helper()
	r, err := fs.Open(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestLocalPutOpen(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if err := s.Put(ctx, "attachments/logo.png", "image/png", strings.NewReader("png-bytes")); err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, s, "attachments/logo.png"); got != "png-bytes" {
		t.Fatalf("got %q", got)
	}

	if err := s.Put(ctx, "attachments/logo.png", "image/png", strings.NewReader("v2")); err != nil {
		t.Fatal(err)
	}
	if got := readAll(t, s, "attachments/logo.png"); got != "v2" {
		t.Fatalf("overwrite: got %q", got)
	}

	left, err := filepath.Glob(filepath.Join(s.dir, "attachments", ".put-*"))
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Fatalf("temp files left behind: %v", left)
	}
}

func TestLocalOpenNotExist(t *testing.T) {
	s := newTestLocal(t)
	_, err := s.Open(context.Background(), "no-such-file")
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLocalDeleteExists(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()

	if err := s.Delete(ctx, "ghost"); err != nil {
		t.Fatalf("Delete missing: %v", err)
	}
	if err := s.Put(ctx, "a.txt", "", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	ok, err := s.Exists(ctx, "a.txt")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	if err := s.Delete(ctx, "a.txt"); err != nil {
		t.Fatal(err)
	}
	ok, err = s.Exists(ctx, "a.txt")
	if err != nil || ok {
		t.Fatalf("Exists after delete = %v, %v", ok, err)
	}
}

func TestLocalRejectsEscapes(t *testing.T) {
	s := newTestLocal(t)
	ctx := context.Background()
	for _, p := range []string{"", "/etc/passwd", "../x", "a/../../x", `a\b`, "."} {
		if err := s.Put(ctx, p, "", strings.NewReader("x")); !errors.Is(err, ErrInvalidPath) {
			t.Errorf("Put(%q) = %v, want ErrInvalidPath", p, err)
		}
	}
	if err := s.Put(ctx, "a/./b/../c.txt", "", strings.NewReader("ok")); err != nil {
		t.Fatalf("cleanable path rejected: %v", err)
	}
	if got := readAll(t, s, "a/c.txt"); got != "ok" {
		t.Fatalf("got %q", got)
	}
}

func TestRef(t *testing.T) {
	ref := Ref("attachments/logo.png")
	if ref != "blob:attachments/logo.png" {
		t.Fatalf("Ref = %q", ref)
	}
	p, ok := ParseRef(ref)
	if !ok || p != "attachments/logo.png" {
		t.Fatalf("ParseRef = %q, %v", p, ok)
	}
	if _, ok := ParseRef("iVBORw0KGgo"); ok {
		t.Fatal("inline base64 parsed as ref")
	}
	if _, ok := ParseRef("blob:"); ok {
		t.Fatal("empty ref accepted")
	}
}
