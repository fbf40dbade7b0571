package artifact

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/haivivi/chatlogo/pkg/chatstore"
	"github.com/haivivi/chatlogo/pkg/imagegen"
	"github.com/haivivi/chatlogo/pkg/storage"
	"github.com/haivivi/chatlogo/pkg/stream"
)

type imageHandler struct {
	client  imagegen.Client
	blobs   storage.FileStore
	timeout time.Duration
	logger  *slog.Logger
}

func (h *imageHandler) Kind() Kind { return KindImage }

func (h *imageHandler) Create(ctx context.Context, title string, sink stream.ArtifactSink) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	img, err := h.call(cctx, func(ctx context.Context) (string, error) {
		return h.client.Generate(ctx, title)
	})
	if err != nil {
		return "", fmt.Errorf("artifact: generate image: %w", err)
	}
	return img, sink.Emit(ctx, stream.TypeArtifactDelta, img)
}

// Update edits the prior image. If that fails for any reason the image is
// generated afresh from description. The edit and the fallback share one
// timeout.
func (h *imageHandler) Update(ctx context.Context, prior *chatstore.Document, description string, sink stream.ArtifactSink) (string, error) {
	uctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	img, err := h.edit(uctx, prior.Content, description)
	if err != nil {
		h.logger.WarnContext(ctx, "artifact: image edit failed, generating from description",
			"event", "handler.fallback",
			"document", prior.ID,
			"error", err,
		)
		img, err = h.call(uctx, func(ctx context.Context) (string, error) {
			return h.client.Generate(ctx, description)
		})
		if err != nil {
			return "", fmt.Errorf("artifact: generate image: %w", err)
		}
	}
	return img, sink.Emit(ctx, stream.TypeArtifactDelta, img)
}

func (h *imageHandler) edit(ctx context.Context, content, description string) (string, error) {
	src, err := h.source(ctx, content)
	if err != nil {
		return "", err
	}
	return h.call(ctx, func(ctx context.Context) (string, error) {
		return h.client.Edit(ctx, src, description)
	})
}

// call runs fn, treating an empty image as a failure.
func (h *imageHandler) call(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	img, err := fn(ctx)
	if err == nil && img == "" {
		err = imagegen.ErrNoImage
	}
	return img, err
}

// source returns the prior image as base64, reading blob references from
// the file store.
func (h *imageHandler) source(ctx context.Context, content string) (string, error) {
	if content == "" {
		return "", errors.New("artifact: no prior image to edit")
	}
	p, ok := storage.ParseRef(content)
	if !ok {
		return imagegen.StripDataURL(content), nil
	}
	if h.blobs == nil {
		return "", fmt.Errorf("artifact: no file store for %s", content)
	}
	rc, err := h.blobs.Open(ctx, p)
	if err != nil {
		return "", fmt.Errorf("artifact: open %s: %w", p, err)
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, imagegen.MaxEditBytes+1))
	if err != nil {
		return "", fmt.Errorf("artifact: read %s: %w", p, err)
	}
	if len(data) > imagegen.MaxEditBytes {
		return "", imagegen.ErrTooLarge
	}
	return base64.StdEncoding.EncodeToString(data), nil
}
