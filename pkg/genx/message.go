package genx

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"slices"
)

// Role is the author of a message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
	RoleTool  Role = "tool"
)

func (r Role) String() string { return string(r) }

// MessageChunk is one streamed piece of a response: either a content Part
// or a complete ToolCall.
type MessageChunk struct {
	Role     Role
	Name     string
	Part     Part
	ToolCall *ToolCall
}

// Clone returns a deep copy of c.
func (c *MessageChunk) Clone() *MessageChunk {
	out := &MessageChunk{Role: c.Role, Name: c.Name}
	if c.Part != nil {
		out.Part = c.Part.clone()
	}
	if c.ToolCall != nil {
		tc := *c.ToolCall
		if tc.FuncCall != nil {
			fc := *tc.FuncCall
			tc.FuncCall = &fc
		}
		out.ToolCall = &tc
	}
	return out
}

// Message is a turn of the conversation sent to the model.
type Message struct {
	Role    Role
	Name    string
	Payload Payload
}

// Payload is Contents, *ToolCall or *ToolResult.
type Payload interface {
	isPayload()
}

// Contents is the payload of a user or model content message.
type Contents []Part

func (Contents) isPayload() {}

// ToolCall is a call the model requested. ID pairs it with its ToolResult.
type ToolCall struct {
	ID       string
	FuncCall *FuncCall
}

func (*ToolCall) isPayload() {}

// ToolResult answers the ToolCall with the same ID. Name is the function
// name; Gemini matches on it.
type ToolResult struct {
	ID     string
	Name   string
	Result string
}

func (*ToolResult) isPayload() {}

// FuncCall is a function name with its raw JSON arguments. Calls produced
// by a Stream or by Invoke are bound to the FuncTool they name.
type FuncCall struct {
	Name      string
	Arguments string

	tool *FuncTool
}

// Invoke runs the bound tool on the call's arguments.
func (f *FuncCall) Invoke(ctx context.Context) (any, error) {
	if f.tool == nil {
		return nil, fmt.Errorf("genx: tool %q is not bound", f.Name)
	}
	return f.tool.Invoke(ctx, f, f.Arguments)
}

// Tool returns the FuncTool the call is bound to, or nil.
func (f *FuncCall) Tool() *FuncTool {
	return f.tool
}

// Part is one piece of message content.
type Part interface {
	isPart()
	clone() Part
}

type Text string

func (Text) isPart()       {}
func (t Text) clone() Part { return t }

// Thought is model reasoning. It is shown to the user and never sent back
// to the provider.
type Thought string

func (Thought) isPart()       {}
func (t Thought) clone() Part { return t }

// Blob is inline binary content such as an image.
type Blob struct {
	MIMEType string
	Data     []byte
}

func (*Blob) isPart() {}

func (b *Blob) clone() Part {
	return &Blob{MIMEType: b.MIMEType, Data: slices.Clone(b.Data)}
}

// newCallID returns an id for tool calls the provider did not name.
func newCallID(prefix string) string {
	var b [8]byte
	rand.Read(b[:])
	return prefix + hex.EncodeToString(b[:])
}
