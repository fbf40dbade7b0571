package genx

import (
	"context"
	"errors"
	"sync"
)

var _ Generator = (*Fake)(nil)

// Fake is a scripted Generator for tests and offline runs.
//
// Each GenerateStream call plays the next entry of Turns; once they are
// used up the last one repeats. Tool calls are resolved against the tools
// of the model context the way a real provider's are.
type Fake struct {
	Turns [][]*MessageChunk

	// InvokeArgs are the arguments Invoke answers with, in order. The last
	// one repeats.
	InvokeArgs []string

	// Err, when set, fails every call.
	Err error

	mu       sync.Mutex
	turn     int
	invoke   int
	contexts []ModelContext
}

// FakeText returns a model turn made of text chunks.
func FakeText(parts ...string) []*MessageChunk {
	out := make([]*MessageChunk, 0, len(parts))
	for _, p := range parts {
		out = append(out, &MessageChunk{Role: RoleModel, Part: Text(p)})
	}
	return out
}

// FakeToolCall returns a model chunk calling the named tool.
func FakeToolCall(id, name, args string) *MessageChunk {
	return &MessageChunk{
		Role: RoleModel,
		ToolCall: &ToolCall{
			ID:       id,
			FuncCall: &FuncCall{Name: name, Arguments: args},
		},
	}
}

func (f *Fake) GenerateStream(_ context.Context, _ string, mctx ModelContext) (Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, mctx)
	if f.Err != nil {
		return nil, f.Err
	}
	var turn []*MessageChunk
	if n := len(f.Turns); n > 0 {
		turn = f.Turns[min(f.turn, n-1)]
		f.turn++
	}
	sb := NewStreamBuilder(mctx, len(turn)+1)
	for _, c := range turn {
		if err := sb.Add(c.Clone()); err != nil {
			return nil, err
		}
	}
	if err := sb.Done(Usage{}); err != nil {
		return nil, err
	}
	return sb.Stream(), nil
}

func (f *Fake) Invoke(_ context.Context, _ string, mctx ModelContext, tool *FuncTool) (Usage, *FuncCall, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contexts = append(f.contexts, mctx)
	if f.Err != nil {
		return Usage{}, nil, f.Err
	}
	if len(f.InvokeArgs) == 0 {
		return Usage{}, nil, errors.New("genx: fake has no invoke arguments")
	}
	args := f.InvokeArgs[min(f.invoke, len(f.InvokeArgs)-1)]
	f.invoke++
	return Usage{}, tool.NewFuncCall(args), nil
}

// Contexts returns the model contexts received so far.
func (f *Fake) Contexts() []ModelContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ModelContext(nil), f.contexts...)
}
