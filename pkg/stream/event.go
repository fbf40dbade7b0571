package stream

import (
	"encoding/json"
	"fmt"
)

// Type is the kind of an event on the wire.
type Type string

const (
	TypeTextDelta      Type = "text-delta"
	TypeReasoningDelta Type = "reasoning-delta"
	TypeToolCall       Type = "tool-call"
	TypeToolResult     Type = "tool-result"
	TypeKind           Type = "kind"
	TypeID             Type = "id"
	TypeTitle          Type = "title"
	TypeArtifactDelta  Type = "artifact-delta"
	TypeClear          Type = "clear"
	TypeSuggestion     Type = "suggestion"
	TypeAppendMessage  Type = "append-message"
	TypeFinish         Type = "finish"
	TypeError          Type = "error"
)

// IsArtifactMeta reports whether t describes artifact metadata.
func (t Type) IsArtifactMeta() bool {
	switch t {
	case TypeKind, TypeID, TypeTitle:
		return true
	}
	return false
}

// Event is one record of a session.
type Event struct {
	// Seq starts at 1 and increases by one per write.
	Seq     uint64          `json:"seq" msgpack:"seq"`
	Type    Type            `json:"type" msgpack:"type"`
	Content json.RawMessage `json:"content,omitempty" msgpack:"content"`
}

// NewEvent builds an unsequenced event, marshaling content to JSON.
// A json.RawMessage is used as is.
func NewEvent(t Type, content any) (Event, error) {
	if raw, ok := content.(json.RawMessage); ok {
		return Event{Type: t, Content: raw}, nil
	}
	b, err := json.Marshal(content)
	if err != nil {
		return Event{}, fmt.Errorf("stream: marshal %s content: %w", t, err)
	}
	return Event{Type: t, Content: b}, nil
}

// Wire is the SSE payload: the event without its sequence number, which
// travels in the SSE id line.
func (e Event) Wire() ([]byte, error) {
	return json.Marshal(struct {
		Type    Type            `json:"type"`
		Content json.RawMessage `json:"content,omitempty"`
	}{e.Type, e.Content})
}

// Finish is the content of a finish event. Artifact-level finish events
// carry ID; the terminal one carries Reason.
type Finish struct {
	ID     string `json:"id,omitempty"`
	Reason string `json:"finishReason,omitempty"`
}
