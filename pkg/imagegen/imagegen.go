// Package imagegen generates and edits raster images for image artifacts.
//
// Images travel as raw base64 (no data: URL prefix), which is the form
// stored in artifact content.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// MaxEditBytes bounds the decoded size of an image passed to Edit.
const MaxEditBytes = 4 << 20

var (
	// ErrNoImage is returned when the provider answers without image data.
	ErrNoImage = errors.New("imagegen: no image in response")

	// ErrTooLarge is returned by Edit for images above MaxEditBytes.
	ErrTooLarge = errors.New("imagegen: image too large to edit")
)

// Client produces images from prompts.
type Client interface {
	// Generate returns a new image for prompt as base64 PNG.
	Generate(ctx context.Context, prompt string) (string, error)

	// Edit returns image (base64 PNG, optionally with a data: prefix)
	// modified according to prompt, as base64 PNG.
	Edit(ctx context.Context, image, prompt string) (string, error)
}

// StripDataURL removes a "data:image/...;base64," prefix if present.
func StripDataURL(s string) string {
	if !strings.HasPrefix(s, "data:") {
		return s
	}
	if i := strings.Index(s, ","); i >= 0 {
		return s[i+1:]
	}
	return s
}

// DecodeImage strips any data: prefix and decodes the base64 payload.
func DecodeImage(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(strings.TrimSpace(StripDataURL(s)))
	if err != nil {
		return nil, fmt.Errorf("imagegen: decode image: %w", err)
	}
	return b, nil
}
