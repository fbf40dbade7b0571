package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/chatlogo/pkg/auth"
	"github.com/haivivi/chatlogo/pkg/chatstore"
	"github.com/haivivi/chatlogo/pkg/genx"
	"github.com/haivivi/chatlogo/pkg/jsontime"
	"github.com/haivivi/chatlogo/pkg/stream"
)

// maxAttachmentBytes bounds an attachment loaded into the model context.
const maxAttachmentBytes = 5 << 20

// turn is one model turn. All of its methods run on the turn goroutine.
type turn struct {
	svc     *Service
	w       *stream.Writer
	user    *auth.User
	model   string
	convID  string
	history []chatstore.Message
	logger  *slog.Logger

	blocks []chatstore.Block
}

func (t *turn) run(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, t.svc.cfg.TurnTimeout)
	defer cancel()

	start := time.Now()
	t.logger.InfoContext(ctx, "chat: turn start", "event", "turn.start", "model", t.model, "user", t.user.ID)

	if err := t.steps(ctx); err != nil {
		t.logger.ErrorContext(ctx, "chat: turn failed", "event", "turn.end", "error", err, "elapsed", time.Since(start))
		if err := t.w.Fail(context.WithoutCancel(ctx), ErrorMessage); err != nil {
			t.logger.WarnContext(ctx, "chat: write error event", "error", err)
		}
		return
	}

	if len(t.blocks) > 0 {
		msg := &chatstore.Message{
			ID:             uuid.NewString(),
			ConversationID: t.convID,
			Role:           chatstore.RoleAssistant,
			Parts:          t.blocks,
			Attachments:    []chatstore.Attachment{},
			CreatedAt:      jsontime.Milli(t.svc.now()),
		}
		if err := t.svc.Reconcile(context.WithoutCancel(ctx), t.user.ID, msg); err != nil {
			t.logger.ErrorContext(ctx, "chat: save assistant message", "error", err)
		}
	} else {
		t.logger.WarnContext(ctx, "chat: turn produced no output")
	}

	if err := t.w.Finish(context.WithoutCancel(ctx), "stop"); err != nil {
		t.logger.WarnContext(ctx, "chat: write finish event", "error", err)
	}
	t.logger.InfoContext(ctx, "chat: turn end", "event", "turn.end", "blocks", len(t.blocks), "elapsed", time.Since(start))
}

// steps runs the model until it stops calling tools or the step budget is
// spent. A panic anywhere in the turn becomes an error.
func (t *turn) steps(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("chat: turn panic: %v", r)
		}
	}()

	mcb := t.modelContext(ctx)
	for _, tool := range t.tools() {
		mcb.AddTool(tool)
	}
	for range t.svc.cfg.MaxSteps {
		calls, err := t.step(ctx, mcb)
		if err != nil {
			return err
		}
		if len(calls) == 0 {
			return nil
		}
		for _, call := range calls {
			if err := t.invoke(ctx, mcb, call); err != nil {
				return err
			}
		}
	}
	return nil
}

// step streams one model response and returns the tool calls it made.
func (t *turn) step(ctx context.Context, mcb *genx.ModelContextBuilder) ([]*genx.ToolCall, error) {
	st, err := t.svc.gen.GenerateStream(ctx, t.model, mcb.Build())
	if err != nil {
		return nil, fmt.Errorf("chat: generate: %w", err)
	}
	defer st.Close()

	var (
		text  strings.Builder
		calls []*genx.ToolCall
	)
	for {
		chunk, err := st.Next()
		if err != nil {
			if genx.Complete(err) {
				break
			}
			return nil, fmt.Errorf("chat: generate: %w", err)
		}
		if chunk == nil {
			continue
		}
		if chunk.ToolCall != nil && chunk.ToolCall.FuncCall != nil {
			calls = append(calls, chunk.ToolCall)
			continue
		}
		switch p := chunk.Part.(type) {
		case genx.Text:
			if p == "" {
				continue
			}
			text.WriteString(string(p))
			t.appendBlock(chatstore.BlockText, string(p))
			if err := t.w.Emit(ctx, stream.TypeTextDelta, string(p)); err != nil {
				return nil, err
			}
		case genx.Thought:
			if p == "" {
				continue
			}
			t.appendBlock(chatstore.BlockReasoning, string(p))
			if err := t.w.Emit(ctx, stream.TypeReasoningDelta, string(p)); err != nil {
				return nil, err
			}
		}
	}
	if text.Len() > 0 {
		mcb.ModelText("", text.String())
	}
	return calls, nil
}

// appendBlock extends the last block when it has the same type.
func (t *turn) appendBlock(typ chatstore.BlockType, s string) {
	if n := len(t.blocks); n > 0 && t.blocks[n-1].Type == typ {
		b := &t.blocks[n-1]
		if typ == chatstore.BlockText {
			b.Text += s
		} else {
			b.Reasoning += s
		}
		return
	}
	if typ == chatstore.BlockText {
		t.blocks = append(t.blocks, chatstore.TextBlock(s))
	} else {
		t.blocks = append(t.blocks, chatstore.ReasoningBlock(s))
	}
}

type toolCallEvent struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Args       json.RawMessage `json:"args"`
}

type toolResultEvent struct {
	ToolCallID string          `json:"toolCallId"`
	ToolName   string          `json:"toolName"`
	Result     json.RawMessage `json:"result"`
}

// invoke executes one tool call. Tool failures are results, not errors;
// only a broken stream aborts the turn.
func (t *turn) invoke(ctx context.Context, mcb *genx.ModelContextBuilder, call *genx.ToolCall) error {
	id := call.ID
	if id == "" {
		id = "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	name := call.FuncCall.Name
	args := rawArgs(call.FuncCall.Arguments)

	inv := &chatstore.ToolInvocation{
		ToolCallID: id,
		ToolName:   name,
		State:      chatstore.ToolStateCall,
		Args:       args,
	}
	t.blocks = append(t.blocks, chatstore.Block{Type: chatstore.BlockToolInvocation, ToolInvocation: inv})
	if err := t.w.Emit(ctx, stream.TypeToolCall, toolCallEvent{ToolCallID: id, ToolName: name, Args: args}); err != nil {
		return err
	}

	start := time.Now()
	t.logger.InfoContext(ctx, "chat: tool start", "event", "tool.start", "tool", name, "call", id)
	res, err := call.FuncCall.Invoke(ctx)
	if err != nil {
		res = toolError{Error: err.Error()}
	}
	result, err := json.Marshal(res)
	if err != nil {
		result, _ = json.Marshal(toolError{Error: err.Error()})
	}
	state := "result"
	if _, failed := res.(toolError); failed {
		state = "failed"
	}
	t.logger.InfoContext(ctx, "chat: tool end", "event", "tool.end", "tool", name, "call", id, "state", state, "elapsed", time.Since(start))

	inv.State = chatstore.ToolStateResult
	inv.Result = result
	if err := t.w.Emit(ctx, stream.TypeToolResult, toolResultEvent{ToolCallID: id, ToolName: name, Result: result}); err != nil {
		return err
	}

	mcb.AddToolCall(id, name, string(args))
	mcb.AddToolResult(id, name, string(result))
	return nil
}

func rawArgs(s string) json.RawMessage {
	s = strings.TrimSpace(s)
	if s == "" {
		return json.RawMessage("{}")
	}
	if json.Valid([]byte(s)) {
		return json.RawMessage(s)
	}
	b, _ := json.Marshal(s)
	return b
}

// modelContext rebuilds the conversation for the model.
func (t *turn) modelContext(ctx context.Context) *genx.ModelContextBuilder {
	mcb := &genx.ModelContextBuilder{}
	mcb.PromptText("system", systemPrompt(t.model))
	for i := range t.history {
		m := &t.history[i]
		switch m.Role {
		case chatstore.RoleUser:
			if s := m.Text(); s != "" {
				mcb.UserText("", s)
			}
			for _, a := range m.Attachments {
				t.attach(ctx, mcb, a)
			}
		case chatstore.RoleAssistant:
			for _, b := range m.Parts {
				switch {
				case b.Type == chatstore.BlockText && b.Text != "":
					mcb.ModelText("", b.Text)
				case b.Type == chatstore.BlockToolInvocation && b.ToolInvocation != nil &&
					b.ToolInvocation.State == chatstore.ToolStateResult:
					inv := b.ToolInvocation
					mcb.AddToolCall(inv.ToolCallID, inv.ToolName, string(inv.Args))
					mcb.AddToolResult(inv.ToolCallID, inv.ToolName, string(inv.Result))
				}
			}
		}
	}
	return mcb
}

// attach adds an uploaded image to the context. Unreadable attachments are
// skipped.
func (t *turn) attach(ctx context.Context, mcb *genx.ModelContextBuilder, a chatstore.Attachment) {
	if t.svc.blobs == nil || !strings.HasPrefix(a.ContentType, "image/") {
		return
	}
	p, ok := ownUpload(t.user.ID, a.URL)
	if !ok {
		t.logger.WarnContext(ctx, "chat: skip foreign attachment", "url", a.URL)
		return
	}
	data, err := t.readBlob(ctx, p)
	if err != nil {
		t.logger.WarnContext(ctx, "chat: skip attachment", "path", p, "error", err)
		return
	}
	mcb.UserBlob("", a.ContentType, data)
}

func (t *turn) readBlob(ctx context.Context, p string) ([]byte, error) {
	rc, err := t.svc.blobs.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(io.LimitReader(rc, maxAttachmentBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxAttachmentBytes {
		return nil, fmt.Errorf("attachment larger than %d bytes", maxAttachmentBytes)
	}
	return data, nil
}
