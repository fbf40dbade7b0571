package genx

import (
	"slices"
	"testing"
)

func TestModelContextBuilderMerges(t *testing.T) {
	var mcb ModelContextBuilder
	mcb.PromptText("system", "a")
	mcb.PromptText("system", "b")
	mcb.PromptText("artifacts", "c")
	mcb.UserText("", "hi")
	mcb.UserBlob("", "image/png", []byte{1})
	mcb.ModelText("", "hello")

	if len(mcb.Prompts) != 2 || mcb.Prompts[0].Text != "a\nb" {
		t.Fatalf("prompts = %+v", mcb.Prompts)
	}
	if len(mcb.Messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(mcb.Messages))
	}
	if got := len(mcb.Messages[0].Payload.(Contents)); got != 2 {
		t.Fatalf("user parts = %d, want 2", got)
	}
}

func TestModelContextBuilderSnapshot(t *testing.T) {
	var mcb ModelContextBuilder
	mcb.UserText("", "first")
	mctx := mcb.Build()
	mcb.UserText("", " second")
	mcb.ModelText("", "reply")

	msgs := slices.Collect(mctx.Messages())
	if len(msgs) != 1 {
		t.Fatalf("built context changed: %d messages", len(msgs))
	}
	if got := msgs[0].Payload.(Contents); len(got) != 1 || got[0] != Text("first") {
		t.Fatalf("built message mutated: %#v", got)
	}
}

func TestModelContextBuilderToolExchange(t *testing.T) {
	var mcb ModelContextBuilder
	mcb.UserText("", "make a logo")
	mcb.AddToolCall("call_1", "createDocument", `{"title":"Logo","kind":"image"}`)
	mcb.AddToolResult("call_1", "createDocument", `{"id":"d1"}`)
	msgs := slices.Collect(mcb.Build().Messages())

	if len(msgs) != 3 {
		t.Fatalf("messages = %d", len(msgs))
	}
	call, ok := msgs[1].Payload.(*ToolCall)
	if !ok || call.ID != "call_1" || call.FuncCall.Name != "createDocument" {
		t.Fatalf("call = %#v", msgs[1].Payload)
	}
	res, ok := msgs[2].Payload.(*ToolResult)
	if !ok || res.ID != "call_1" || res.Name != "createDocument" || msgs[2].Role != RoleTool {
		t.Fatalf("result = %#v", msgs[2].Payload)
	}
}

func TestUsageAdd(t *testing.T) {
	u := Usage{PromptTokenCount: 1, GeneratedTokenCount: 2}.Add(Usage{PromptTokenCount: 3, CachedContentTokenCount: 4})
	if u != (Usage{PromptTokenCount: 4, CachedContentTokenCount: 4, GeneratedTokenCount: 2}) {
		t.Fatalf("got %+v", u)
	}
}
