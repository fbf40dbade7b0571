package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/haivivi/chatlogo/pkg/chatstore"
)

// Reconcile persists a finished assistant message and links every artifact
// version its tools produced back to it. Link failures are logged and do
// not undo the save. Reconciling the same message twice is a no-op.
func (s *Service) Reconcile(ctx context.Context, uid string, msg *chatstore.Message) error {
	if err := s.store.SaveMessages(ctx, uid, msg); err != nil {
		return fmt.Errorf("chat: save assistant message: %w", err)
	}
	for _, id := range ArtifactIDs(msg) {
		err := s.store.LinkMessage(ctx, id, msg.ID)
		switch {
		case err == nil:
			s.logger.DebugContext(ctx, "chat: artifact linked", "event", "reconcile.link", "document", id, "message", msg.ID)
		case errors.Is(err, chatstore.ErrLinkConflict):
			s.logger.ErrorContext(ctx, "chat: artifact already linked", "event", "reconcile.link", "document", id, "message", msg.ID, "error", err)
		default:
			s.logger.WarnContext(ctx, "chat: link artifact", "event", "reconcile.link", "document", id, "message", msg.ID, "error", err)
		}
	}
	return nil
}

// ArtifactIDs returns the ids of the documents created or updated by the
// message's completed tool invocations, in order.
func ArtifactIDs(msg *chatstore.Message) []string {
	var ids []string
	for _, b := range msg.Parts {
		inv := b.ToolInvocation
		if b.Type != chatstore.BlockToolInvocation || inv == nil || inv.State != chatstore.ToolStateResult {
			continue
		}
		if inv.ToolName != ToolCreateDocument && inv.ToolName != ToolUpdateDocument {
			continue
		}
		var res struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(inv.Result, &res) != nil || res.ID == "" {
			continue
		}
		ids = append(ids, res.ID)
	}
	return ids
}
