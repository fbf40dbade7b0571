package genx

import (
	"errors"
	"testing"
)

func newTestBuilder(t *testing.T) *StreamBuilder {
	t.Helper()
	var mcb ModelContextBuilder
	mcb.AddTool(MustNewFuncTool[weatherArg]("get_weather", ""))
	return NewStreamBuilder(mcb.Build(), 4)
}

func TestStreamBuilderDone(t *testing.T) {
	sb := newTestBuilder(t)
	if err := sb.Add(
		&MessageChunk{Role: RoleModel, Part: Thought("hmm")},
		&MessageChunk{Role: RoleModel, Part: Text("hi")},
	); err != nil {
		t.Fatal(err)
	}
	if err := sb.Done(Usage{GeneratedTokenCount: 2}); err != nil {
		t.Fatal(err)
	}

	s := sb.Stream()
	for _, want := range []Part{Thought("hmm"), Text("hi")} {
		chunk, err := s.Next()
		if err != nil {
			t.Fatal(err)
		}
		if chunk.Part != want {
			t.Fatalf("got %#v, want %#v", chunk.Part, want)
		}
	}
	_, err := s.Next()
	var st *State
	if !errors.As(err, &st) || st.Status() != StatusDone || st.Usage().GeneratedTokenCount != 2 {
		t.Fatalf("terminal err = %v", err)
	}
	if !errors.Is(err, ErrDone) || !Complete(err) {
		t.Fatal("terminal err should wrap ErrDone")
	}
	if _, again := s.Next(); !errors.Is(again, ErrDone) {
		t.Fatalf("second Next = %v", again)
	}
}

func TestStreamBuilderResolvesTools(t *testing.T) {
	sb := newTestBuilder(t)
	sb.Add(
		&MessageChunk{Role: RoleModel, ToolCall: &ToolCall{ID: "1", FuncCall: &FuncCall{Name: "unknown"}}},
		&MessageChunk{Role: RoleModel, ToolCall: &ToolCall{ID: "2", FuncCall: &FuncCall{Name: "get_weather", Arguments: `{"city":"Rome"}`}}},
	)
	sb.Done(Usage{})

	chunk, err := sb.Stream().Next()
	if err != nil {
		t.Fatal(err)
	}
	if chunk.ToolCall.ID != "2" {
		t.Fatalf("unknown tool was not dropped: %q", chunk.ToolCall.ID)
	}
	if chunk.ToolCall.FuncCall.Tool() == nil {
		t.Fatal("tool not resolved")
	}
}

func TestStreamBuilderTerminalStates(t *testing.T) {
	tests := []struct {
		name     string
		finish   func(*StreamBuilder)
		want     Status
		complete bool
	}{
		{"truncated", func(sb *StreamBuilder) { sb.Truncated(Usage{}) }, StatusTruncated, true},
		{"blocked", func(sb *StreamBuilder) { sb.Blocked(Usage{}, "unsafe") }, StatusBlocked, false},
		{"error", func(sb *StreamBuilder) { sb.Unexpected(Usage{}, errors.New("boom")) }, StatusError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := newTestBuilder(t)
			tt.finish(sb)
			_, err := sb.Stream().Next()
			var st *State
			if !errors.As(err, &st) || st.Status() != tt.want {
				t.Fatalf("err = %v", err)
			}
			if Complete(err) != tt.complete {
				t.Fatalf("Complete(%v) = %v", err, !tt.complete)
			}
		})
	}
}

func TestStreamBuilderAbort(t *testing.T) {
	sb := newTestBuilder(t)
	boom := errors.New("network down")
	sb.Abort(boom)
	if _, err := sb.Stream().Next(); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if err := sb.Add(&MessageChunk{Part: Text("late")}); err == nil {
		t.Fatal("Add after abort should fail")
	}
}
