package genx

import (
	"iter"
	"slices"
)

var _ ModelContext = (*modelContext)(nil)

// ModelContextBuilder assembles a ModelContext. The zero value is ready to
// use.
//
// Consecutive prompts with the same name are joined, as are consecutive
// content messages from the same author, so callers may add text piece by
// piece.
type ModelContextBuilder struct {
	Prompts  []*Prompt
	Messages []*Message
	Tools    []Tool
	Params   *ModelParams
}

// Build snapshots the builder. Later additions do not affect the result.
func (mcb *ModelContextBuilder) Build() ModelContext {
	return &modelContext{
		prompts:  slices.Clone(mcb.Prompts),
		messages: slices.Clone(mcb.Messages),
		tools:    slices.Clone(mcb.Tools),
		params:   mcb.Params,
	}
}

// PromptText adds system instructions.
func (mcb *ModelContextBuilder) PromptText(name, text string) {
	if n := len(mcb.Prompts); n > 0 && mcb.Prompts[n-1].Name == name {
		last := mcb.Prompts[n-1]
		if last.Text != "" {
			text = last.Text + "\n" + text
		}
		mcb.Prompts[n-1] = &Prompt{Name: name, Text: text}
		return
	}
	mcb.Prompts = append(mcb.Prompts, &Prompt{Name: name, Text: text})
}

// AddMessage appends msg, merging it into the previous message when both
// are content from the same author.
func (mcb *ModelContextBuilder) AddMessage(msg *Message) {
	if n := len(mcb.Messages); n > 0 {
		last := mcb.Messages[n-1]
		prev, ok1 := last.Payload.(Contents)
		next, ok2 := msg.Payload.(Contents)
		if ok1 && ok2 && last.Role == msg.Role && last.Name == msg.Name {
			mcb.Messages[n-1] = &Message{
				Role:    last.Role,
				Name:    last.Name,
				Payload: append(slices.Clone(prev), next...),
			}
			return
		}
	}
	mcb.Messages = append(mcb.Messages, msg)
}

func (mcb *ModelContextBuilder) UserText(name, text string) {
	mcb.AddMessage(&Message{Role: RoleUser, Name: name, Payload: Contents{Text(text)}})
}

func (mcb *ModelContextBuilder) UserBlob(name, mimeType string, data []byte) {
	mcb.AddMessage(&Message{Role: RoleUser, Name: name, Payload: Contents{&Blob{MIMEType: mimeType, Data: data}}})
}

func (mcb *ModelContextBuilder) ModelText(name, text string) {
	mcb.AddMessage(&Message{Role: RoleModel, Name: name, Payload: Contents{Text(text)}})
}

func (mcb *ModelContextBuilder) AddTool(tool Tool) {
	mcb.Tools = append(mcb.Tools, tool)
}

// AddToolCall records a call the model made.
func (mcb *ModelContextBuilder) AddToolCall(id, fn, arguments string) {
	mcb.Messages = append(mcb.Messages, &Message{
		Role:    RoleModel,
		Payload: &ToolCall{ID: id, FuncCall: &FuncCall{Name: fn, Arguments: arguments}},
	})
}

// AddToolResult records the answer to the call with id.
func (mcb *ModelContextBuilder) AddToolResult(id, fn, result string) {
	mcb.Messages = append(mcb.Messages, &Message{
		Role:    RoleTool,
		Payload: &ToolResult{ID: id, Name: fn, Result: result},
	})
}

type modelContext struct {
	prompts  []*Prompt
	messages []*Message
	tools    []Tool
	params   *ModelParams
}

func (m *modelContext) Prompts() iter.Seq[*Prompt]   { return slices.Values(m.prompts) }
func (m *modelContext) Messages() iter.Seq[*Message] { return slices.Values(m.messages) }
func (m *modelContext) Tools() iter.Seq[Tool]        { return slices.Values(m.tools) }
func (m *modelContext) Params() *ModelParams         { return m.params }
