package chatstore

import (
	"encoding/json"

	"github.com/haivivi/chatlogo/pkg/jsontime"
)

// Visibility controls who may read a conversation.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// Valid reports whether v is a known visibility.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Conversation is the chat row.
type Conversation struct {
	ID         string         `json:"id" msgpack:"id"`
	UserID     string         `json:"userId" msgpack:"userId"`
	Title      string         `json:"title" msgpack:"title"`
	Visibility Visibility     `json:"visibility" msgpack:"visibility"`
	CreatedAt  jsontime.Milli `json:"createdAt" msgpack:"createdAt"`
}

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// BlockType discriminates message parts.
type BlockType string

const (
	BlockText           BlockType = "text"
	BlockReasoning      BlockType = "reasoning"
	BlockToolInvocation BlockType = "tool-invocation"
)

// ToolState is the lifecycle state of a tool invocation block.
type ToolState string

const (
	ToolStateCall   ToolState = "call"
	ToolStateResult ToolState = "result"
)

// ToolInvocation records one tool call made by the model and, once
// finished, its result.
type ToolInvocation struct {
	ToolCallID string          `json:"toolCallId" msgpack:"toolCallId"`
	ToolName   string          `json:"toolName" msgpack:"toolName"`
	State      ToolState       `json:"state" msgpack:"state"`
	Args       json.RawMessage `json:"args,omitempty" msgpack:"args,omitempty"`
	Result     json.RawMessage `json:"result,omitempty" msgpack:"result,omitempty"`
}

// Block is one ordered part of a message.
type Block struct {
	Type           BlockType       `json:"type" msgpack:"type"`
	Text           string          `json:"text,omitempty" msgpack:"text,omitempty"`
	Reasoning      string          `json:"reasoning,omitempty" msgpack:"reasoning,omitempty"`
	ToolInvocation *ToolInvocation `json:"toolInvocation,omitempty" msgpack:"toolInvocation,omitempty"`
}

// TextBlock returns a text block.
func TextBlock(s string) Block { return Block{Type: BlockText, Text: s} }

// ReasoningBlock returns a reasoning block.
func ReasoningBlock(s string) Block { return Block{Type: BlockReasoning, Reasoning: s} }

// Attachment references an uploaded file.
type Attachment struct {
	URL         string `json:"url" msgpack:"url"`
	Name        string `json:"name,omitempty" msgpack:"name,omitempty"`
	ContentType string `json:"contentType,omitempty" msgpack:"contentType,omitempty"`
}

// Message is one conversation turn.
type Message struct {
	ID             string         `json:"id" msgpack:"id"`
	ConversationID string         `json:"chatId" msgpack:"conversationId"`
	Role           Role           `json:"role" msgpack:"role"`
	Parts          []Block        `json:"parts" msgpack:"parts"`
	Attachments    []Attachment   `json:"attachments" msgpack:"attachments"`
	CreatedAt      jsontime.Milli `json:"createdAt" msgpack:"createdAt"`
}

// Text concatenates the message's text blocks.
func (m *Message) Text() string {
	var s string
	for _, b := range m.Parts {
		if b.Type == BlockText {
			s += b.Text
		}
	}
	return s
}

// Document is one version of an artifact.
type Document struct {
	ID        string         `json:"id" msgpack:"id"`
	CreatedAt jsontime.Milli `json:"createdAt" msgpack:"createdAt"`
	Kind      string         `json:"kind" msgpack:"kind"`
	Title     string         `json:"title" msgpack:"title"`
	Content   string         `json:"content" msgpack:"content"`
	UserID    string         `json:"userId" msgpack:"userId"`
	MessageID string         `json:"messageId,omitempty" msgpack:"messageId,omitempty"`
}

// Suggestion is a proposed edit to a document.
type Suggestion struct {
	ID                string         `json:"id" msgpack:"id"`
	DocumentID        string         `json:"documentId" msgpack:"documentId"`
	DocumentCreatedAt jsontime.Milli `json:"documentCreatedAt" msgpack:"documentCreatedAt"`
	OriginalText      string         `json:"originalText" msgpack:"originalText"`
	SuggestedText     string         `json:"suggestedText" msgpack:"suggestedText"`
	Description       string         `json:"description,omitempty" msgpack:"description,omitempty"`
	IsResolved        bool           `json:"isResolved" msgpack:"isResolved"`
	UserID            string         `json:"userId" msgpack:"userId"`
	CreatedAt         jsontime.Milli `json:"createdAt" msgpack:"createdAt"`
}
