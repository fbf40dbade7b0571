package stream

import (
	"context"
	"fmt"
)

// Sink emits events of a restricted set of types.
type Sink interface {
	Emit(ctx context.Context, t Type, content any) error
}

// ArtifactSink lets a document handler stream its content and metadata.
type ArtifactSink interface {
	Sink
}

type capSink struct {
	w     *Writer
	allow func(Type) bool
}

func (s capSink) Emit(ctx context.Context, t Type, content any) error {
	if !s.allow(t) {
		return fmt.Errorf("%w: %s", ErrCapability, t)
	}
	return s.w.Emit(ctx, t, content)
}

// ArtifactSink returns a sink for artifact-delta and artifact metadata
// events.
func (w *Writer) ArtifactSink() ArtifactSink {
	return capSink{w: w, allow: func(t Type) bool {
		return t == TypeArtifactDelta || t.IsArtifactMeta()
	}}
}

// ToolSink returns the sink used by tool implementations: everything an
// artifact sink allows plus clear, suggestion and artifact-level finish.
// The terminal events are only reachable through Finish and Fail, so a
// finish emitted here must carry an artifact id.
func (w *Writer) ToolSink() Sink {
	return toolSink{capSink{w: w, allow: func(t Type) bool {
		switch t {
		case TypeArtifactDelta, TypeClear, TypeSuggestion, TypeFinish:
			return true
		}
		return t.IsArtifactMeta()
	}}}
}

type toolSink struct {
	capSink
}

func (s toolSink) Emit(ctx context.Context, t Type, content any) error {
	if t == TypeFinish {
		f, ok := content.(Finish)
		if !ok || f.ID == "" {
			return fmt.Errorf("%w: finish without artifact id", ErrCapability)
		}
	}
	return s.capSink.Emit(ctx, t, content)
}
