package genx

import (
	"context"
	"iter"
)

// Generator is a language model provider. name selects the model when the
// implementation serves several; single-model generators ignore it.
type Generator interface {
	// GenerateStream starts a streamed completion of mctx.
	GenerateStream(ctx context.Context, name string, mctx ModelContext) (Stream, error)

	// Invoke forces the model to answer with a call to tool and returns
	// that call.
	Invoke(ctx context.Context, name string, mctx ModelContext, tool *FuncTool) (Usage, *FuncCall, error)
}

// Stream yields the chunks of one model response. Next returns a *State
// error when the response ends, ErrDone-wrapping on a clean finish.
type Stream interface {
	Next() (*MessageChunk, error)
	Close() error
	CloseWithError(error) error
}

// ModelContext is everything sent to the model for one request.
type ModelContext interface {
	Prompts() iter.Seq[*Prompt]
	Messages() iter.Seq[*Message]
	Tools() iter.Seq[Tool]

	// Params overrides the generator defaults when non-nil.
	Params() *ModelParams
}

// ModelParams are sampling parameters. Zero fields keep the provider
// default.
type ModelParams struct {
	MaxTokens        int     `json:"max_tokens,omitzero" yaml:"max_tokens,omitzero"`
	Temperature      float32 `json:"temperature,omitzero" yaml:"temperature,omitzero"`
	TopP             float32 `json:"top_p,omitzero" yaml:"top_p,omitzero"`
	TopK             float32 `json:"top_k,omitzero" yaml:"top_k,omitzero"`
	FrequencyPenalty float32 `json:"frequency_penalty,omitzero" yaml:"frequency_penalty,omitzero"`
	PresencePenalty  float32 `json:"presence_penalty,omitzero" yaml:"presence_penalty,omitzero"`
}

// Prompt is a named block of system instructions.
type Prompt struct {
	Name string
	Text string
}

// Tool is something the model may call. FuncTool is the only kind.
type Tool interface {
	isTool()
}

// Usage counts tokens of one request.
type Usage struct {
	PromptTokenCount int64

	// CachedContentTokenCount is the part of PromptTokenCount served from
	// the provider's prompt cache.
	CachedContentTokenCount int64

	GeneratedTokenCount int64
}

// Add returns the element-wise sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokenCount:        u.PromptTokenCount + o.PromptTokenCount,
		CachedContentTokenCount: u.CachedContentTokenCount + o.CachedContentTokenCount,
		GeneratedTokenCount:     u.GeneratedTokenCount + o.GeneratedTokenCount,
	}
}
