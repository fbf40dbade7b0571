// Package artifact implements the document handlers behind the
// createDocument and updateDocument tools: one handler per artifact kind,
// each streaming its content through a stream.ArtifactSink.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/haivivi/chatlogo/pkg/chatstore"
	"github.com/haivivi/chatlogo/pkg/genx"
	"github.com/haivivi/chatlogo/pkg/imagegen"
	"github.com/haivivi/chatlogo/pkg/storage"
	"github.com/haivivi/chatlogo/pkg/stream"
)

// Kind is the closed set of artifact kinds.
type Kind string

const (
	KindText  Kind = "text"
	KindCode  Kind = "code"
	KindSheet Kind = "sheet"
	KindImage Kind = "image"
)

// Kinds lists every kind in display order.
var Kinds = []Kind{KindText, KindCode, KindImage, KindSheet}

var (
	// ErrUnknownKind is returned by ParseKind for names outside Kinds.
	ErrUnknownKind = errors.New("artifact: unknown kind")

	// ErrNoHandler is returned when a known kind has no handler
	// configured, e.g. image without an image client.
	ErrNoHandler = errors.New("artifact: no handler for kind")
)

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindText, KindCode, KindSheet, KindImage:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Handler produces the content of one artifact kind.
type Handler interface {
	Kind() Kind

	// Create streams new content for title and returns it in full.
	Create(ctx context.Context, title string, sink stream.ArtifactSink) (string, error)

	// Update streams a revision of prior according to description and
	// returns it in full.
	Update(ctx context.Context, prior *chatstore.Document, description string, sink stream.ArtifactSink) (string, error)
}

// DefaultModel is the generator name the text handlers use.
const DefaultModel = "artifact-model"

// DefaultImageTimeout bounds one image create or update, fallback included.
const DefaultImageTimeout = 5 * time.Minute

// Deps are the collaborators handlers are built from.
type Deps struct {
	// Generator serves the text, code and sheet handlers. Usually a
	// *generators.Mux.
	Generator genx.Generator

	// Model is the generator name. Defaults to DefaultModel.
	Model string

	// Images serves the image handler. The image kind has no handler
	// when nil.
	Images imagegen.Client

	// Blobs resolves blob: references in uploaded image artifacts.
	Blobs storage.FileStore

	// ImageTimeout defaults to DefaultImageTimeout.
	ImageTimeout time.Duration

	Logger *slog.Logger
}

// Registry maps kinds to handlers. It is immutable after NewRegistry.
type Registry struct {
	handlers map[Kind]Handler
}

// NewRegistry builds the handler for every kind whose dependencies are
// present.
func NewRegistry(d Deps) *Registry {
	if d.Model == "" {
		d.Model = DefaultModel
	}
	if d.ImageTimeout <= 0 {
		d.ImageTimeout = DefaultImageTimeout
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	r := &Registry{handlers: make(map[Kind]Handler)}
	if d.Generator != nil {
		for _, h := range []Handler{
			newTextHandler(KindText, d, textPrompt, nil),
			newTextHandler(KindCode, d, codePrompt, stripFences),
			newTextHandler(KindSheet, d, sheetPrompt, normalizeCSV),
		} {
			r.handlers[h.Kind()] = h
		}
	}
	if d.Images != nil {
		r.handlers[KindImage] = &imageHandler{
			client:  d.Images,
			blobs:   d.Blobs,
			timeout: d.ImageTimeout,
			logger:  d.Logger,
		}
	}
	return r
}

// Handler returns the handler for k.
func (r *Registry) Handler(k Kind) (Handler, error) {
	h, ok := r.handlers[k]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, k)
	}
	return h, nil
}

// Kinds returns the kinds that have a handler, in display order.
func (r *Registry) Kinds() []Kind {
	var out []Kind
	for _, k := range Kinds {
		if _, ok := r.handlers[k]; ok {
			out = append(out, k)
		}
	}
	return out
}
