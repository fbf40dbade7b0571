// Package genx provides a provider-neutral streaming interface to language
// models.
//
// # Core Types
//
// MessageChunk is the unit of data in a Stream:
//   - Role: The producer of this message (user, model, or tool)
//   - Name: The name of the producer
//   - Part: The content payload (Text, Thought or Blob)
//   - ToolCall: A completed function call requested by the model
//
// Stream is the primary data flow abstraction:
//
//	type Stream interface {
//	    Next() (*MessageChunk, error)
//	    Close() error
//	    CloseWithError(error) error
//	}
//
// A stream ends with a *State error: ErrDone on a clean finish, or a
// truncated, blocked or failed state otherwise.
//
// # Package Structure
//
//   - genx/generators: routes model names (chat-model, title-model, ...) to
//     registered generators
//
//   - genx/modelloader: builds generators from provider config files
//
// OpenAIGenerator and GeminiGenerator adapt the two supported providers.
// Reasoning output is surfaced as Thought parts: Gemini reports thoughts
// natively, and OpenAI-compatible models that inline <think> tags are split
// by ThinkSplitter.
package genx
