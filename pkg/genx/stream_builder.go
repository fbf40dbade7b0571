package genx

import (
	"errors"
	"log/slog"

	"github.com/haivivi/chatlogo/pkg/buffer"
)

type streamItem struct {
	chunk *MessageChunk
	end   *State
}

// StreamBuilder is the producer side of a Stream. Provider adapters run
// it from a goroutine; the consumer reads StreamBuilder.Stream.
//
// Tool calls are bound to the FuncTools of the model context. Calls to a
// tool that was not offered are dropped.
type StreamBuilder struct {
	buf   *buffer.Buffer[streamItem]
	tools map[string]*FuncTool
}

// NewStreamBuilder returns a builder whose buffer starts with room for
// size items.
func NewStreamBuilder(mctx ModelContext, size int) *StreamBuilder {
	sb := &StreamBuilder{
		buf:   buffer.N[streamItem](size),
		tools: make(map[string]*FuncTool),
	}
	for t := range mctx.Tools() {
		if ft, ok := t.(*FuncTool); ok {
			sb.tools[ft.Name] = ft
		}
	}
	return sb
}

// Add appends chunks to the stream.
func (sb *StreamBuilder) Add(chunks ...*MessageChunk) error {
	for _, c := range chunks {
		if c.ToolCall != nil && c.ToolCall.FuncCall != nil {
			fc := c.ToolCall.FuncCall
			tool, ok := sb.tools[fc.Name]
			if !ok {
				slog.Warn("genx: dropping call to unknown tool", "name", fc.Name)
				continue
			}
			fc.tool = tool
		}
		if err := sb.buf.Add(streamItem{chunk: c}); err != nil {
			return err
		}
	}
	return nil
}

func (sb *StreamBuilder) end(s *State) error {
	if err := sb.buf.Add(streamItem{end: s}); err != nil {
		return err
	}
	return sb.buf.CloseWrite()
}

// Done ends the stream normally.
func (sb *StreamBuilder) Done(u Usage) error {
	return sb.end(newState(StatusDone, u, "", nil))
}

// Truncated ends a stream cut off by the token limit.
func (sb *StreamBuilder) Truncated(u Usage) error {
	return sb.end(newState(StatusTruncated, u, "", nil))
}

// Blocked ends a stream the provider refused to complete.
func (sb *StreamBuilder) Blocked(u Usage, reason string) error {
	return sb.end(newState(StatusBlocked, u, reason, nil))
}

// Unexpected ends the stream with a provider error.
func (sb *StreamBuilder) Unexpected(u Usage, err error) error {
	return sb.end(newState(StatusError, u, "", err))
}

// Abort fails the stream immediately; buffered chunks are discarded.
func (sb *StreamBuilder) Abort(err error) error {
	return sb.buf.CloseWithError(err)
}

// Stream returns the consumer side.
func (sb *StreamBuilder) Stream() Stream {
	return (*builtStream)(sb)
}

type builtStream StreamBuilder

func (s *builtStream) Next() (*MessageChunk, error) {
	item, err := s.buf.Next()
	if err != nil {
		return nil, err
	}
	if item.end == nil {
		return item.chunk, nil
	}
	s.buf.CloseWithError(item.end)
	return nil, item.end
}

func (s *builtStream) Close() error {
	return s.buf.Close()
}

func (s *builtStream) CloseWithError(err error) error {
	if err == nil {
		err = errors.New("genx: stream closed")
	}
	return s.buf.CloseWithError(err)
}
