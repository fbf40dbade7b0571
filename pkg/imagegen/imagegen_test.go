package imagegen_test

import (
	"context"
	"encoding/base64"
	"errors"
	"slices"
	"testing"

	"github.com/haivivi/chatlogo/pkg/imagegen"
)

func TestStripDataURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"data:image/png;base64,AAAA", "AAAA"},
		{"data:image/jpeg;base64,BBBB", "BBBB"},
		{"CCCC", "CCCC"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := imagegen.StripDataURL(tt.in); got != tt.want {
			t.Errorf("StripDataURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDecodeImage(t *testing.T) {
	enc := base64.StdEncoding.EncodeToString([]byte("png"))
	b, err := imagegen.DecodeImage("data:image/png;base64," + enc)
	if err != nil || string(b) != "png" {
		t.Fatalf("DecodeImage = %q, %v", b, err)
	}
	if _, err := imagegen.DecodeImage("not base64!"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFake(t *testing.T) {
	f := &imagegen.Fake{}
	ctx := context.Background()
	img, err := f.Generate(ctx, "a fox")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Edit(ctx, img, "make it red"); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(f.Calls(), []string{"generate:a fox", "edit:make it red"}) {
		t.Fatalf("calls = %v", f.Calls())
	}

	boom := errors.New("quota")
	f.EditErr = boom
	if _, err := f.Edit(ctx, img, "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
