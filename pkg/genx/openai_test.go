package genx

import (
	"slices"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
)

func TestOpenAIMessages(t *testing.T) {
	var mcb ModelContextBuilder
	mcb.PromptText("system", "be brief")
	mcb.UserText("", "make it blue")
	mcb.UserBlob("", "image/png", []byte("png"))
	mcb.ModelText("", "")
	mcb.Messages[len(mcb.Messages)-1].Payload = Contents{Thought("only thinking")}
	mcb.AddToolCall("call_1", "createDocument", `{"title":"A"}`)
	mcb.AddToolCall("call_2", "createDocument", `{"title":"B"}`)
	mcb.AddToolResult("call_1", "createDocument", `{"id":"a"}`)
	mcb.AddToolResult("call_2", "createDocument", `{"id":"b"}`)

	msgs, err := (&OpenAIGenerator{Model: "gpt-4o"}).messages(mcb.Build())
	if err != nil {
		t.Fatal(err)
	}
	// developer, user, assistant(2 calls), tool, tool
	if len(msgs) != 5 {
		t.Fatalf("messages = %d, want 5", len(msgs))
	}
	if msgs[0].OfDeveloper == nil {
		t.Fatalf("prompt = %+v", msgs[0])
	}
	parts := msgs[1].OfUser.Content.OfArrayOfContentParts
	if len(parts) != 2 || parts[0].OfText == nil || parts[0].OfText.Text != "make it blue" {
		t.Fatalf("user parts = %+v", parts)
	}
	if parts[1].OfImageURL == nil || !strings.HasPrefix(parts[1].OfImageURL.ImageURL.URL, "data:image/png;base64,") {
		t.Fatalf("image part = %+v", parts[1])
	}
	if calls := msgs[2].OfAssistant.ToolCalls; len(calls) != 2 || calls[1].ID != "call_2" {
		t.Fatalf("tool calls = %+v", calls)
	}
	if msgs[3].OfTool == nil || msgs[4].OfTool == nil {
		t.Fatal("tool results not converted")
	}
}

func TestOpenAISystemRoleAndTextOnly(t *testing.T) {
	g := &OpenAIGenerator{Model: "m", UseSystemRole: true, SupportTextOnly: true}

	var mcb ModelContextBuilder
	mcb.PromptText("", "rules")
	mcb.UserText("", "hi")
	msgs, err := g.messages(mcb.Build())
	if err != nil {
		t.Fatal(err)
	}
	if msgs[0].OfSystem == nil || msgs[1].OfUser.Content.OfString.Value != "hi" {
		t.Fatalf("messages = %+v", msgs)
	}

	mcb.UserBlob("", "image/png", []byte{1})
	if _, err := g.messages(mcb.Build()); err == nil {
		t.Fatal("expected error for image on text-only model")
	}
}

func TestOpenAIToolDelta(t *testing.T) {
	var a oaiAccumulator
	a.toolDelta(openai.ChatCompletionChunkChoiceDeltaToolCall{Index: 0, ID: "c1", Function: openai.ChatCompletionChunkChoiceDeltaToolCallFunction{Name: "create", Arguments: `{"ti`}})
	a.toolDelta(openai.ChatCompletionChunkChoiceDeltaToolCall{Index: 1, ID: "c2", Function: openai.ChatCompletionChunkChoiceDeltaToolCallFunction{Name: "update"}})
	a.toolDelta(openai.ChatCompletionChunkChoiceDeltaToolCall{Index: 0, Function: openai.ChatCompletionChunkChoiceDeltaToolCallFunction{Arguments: `tle":"x"}`}})

	if len(a.calls) != 2 {
		t.Fatalf("calls = %d", len(a.calls))
	}
	if a.calls[0].ID != "c1" || a.calls[0].Function.Arguments != `{"title":"x"}` {
		t.Fatalf("first = %+v", a.calls[0])
	}
}

func TestStrictSchema(t *testing.T) {
	s := &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"a": {Type: "string"},
			"b": {Type: "string"},
		},
		Required: []string{"a"},
	}
	out := StrictSchema(s)
	if !slices.Equal(out.Required, []string{"a", "b"}) {
		t.Fatalf("required = %v", out.Required)
	}
	if !slices.Contains(out.Properties["b"].Types, "null") {
		t.Fatalf("optional b should be nullable: %+v", out.Properties["b"])
	}
	if out.Properties["a"].Type != "string" {
		t.Fatalf("required a changed: %+v", out.Properties["a"])
	}
	if out.AdditionalProperties == nil {
		t.Fatal("additionalProperties not set")
	}
	if s.AdditionalProperties != nil || len(s.Required) != 1 {
		t.Fatal("input schema was modified")
	}
}
