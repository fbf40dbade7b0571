package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/haivivi/chatlogo/pkg/artifact"
	"github.com/haivivi/chatlogo/pkg/chatstore"
	"github.com/haivivi/chatlogo/pkg/genx"
	"github.com/haivivi/chatlogo/pkg/jsontime"
	"github.com/haivivi/chatlogo/pkg/stream"
)

// Tool names as the model sees them.
const (
	ToolCreateDocument     = "createDocument"
	ToolUpdateDocument     = "updateDocument"
	ToolRequestSuggestions = "requestSuggestions"
)

const (
	createdMessage    = "A document was created and is now visible to the user."
	updatedMessage    = "The document has been updated successfully."
	suggestedMessage  = "Suggestions have been added to the document"
	maxSuggestions    = 5
	notFoundForUpdate = `Document with ID "%s" not found. Please check the document ID or use createDocument to create a new document.`
)

// toolError is the result a tool returns to the model when it fails. The
// model sees it and the turn continues.
type toolError struct {
	Error string `json:"error"`
}

type documentResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Kind    string `json:"kind"`
	Content string `json:"content"`
}

type suggestionsResult struct {
	ID      string `json:"id"`
	Title   string `json:"title"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type createArgs struct {
	Title string `json:"title" jsonschema:"title of the document or for images the full image prompt"`
	Kind  string `json:"kind" jsonschema:"kind of document to create"`
}

type updateArgs struct {
	ID          string `json:"id" jsonschema:"the ID of the document to update"`
	Description string `json:"description" jsonschema:"the description of changes that need to be made"`
}

type suggestArgs struct {
	DocumentID string `json:"documentId" jsonschema:"the ID of the document to request edits"`
}

// tools returns the tools active for the turn's model.
func (t *turn) tools() []*genx.FuncTool {
	if t.model == ModelReasoning {
		return nil
	}
	create := genx.MustNewFuncTool[createArgs](ToolCreateDocument,
		"Create a document for a writing or content creation activities. This tool will call other functions that will generate the contents of the document based on the title and kind.",
		genx.InvokeFunc[createArgs](func(ctx context.Context, _ *genx.FuncCall, arg createArgs) (any, error) {
			return t.createDocument(ctx, arg), nil
		}),
	)
	if p, ok := create.Argument.Properties["kind"]; ok {
		for _, k := range artifact.Kinds {
			p.Enum = append(p.Enum, string(k))
		}
	}
	update := genx.MustNewFuncTool[updateArgs](ToolUpdateDocument,
		"Update a document with the given description.",
		genx.InvokeFunc[updateArgs](func(ctx context.Context, _ *genx.FuncCall, arg updateArgs) (any, error) {
			return t.updateDocument(ctx, arg), nil
		}),
	)
	suggest := genx.MustNewFuncTool[suggestArgs](ToolRequestSuggestions,
		"Request suggestions for a document",
		genx.InvokeFunc[suggestArgs](func(ctx context.Context, _ *genx.FuncCall, arg suggestArgs) (any, error) {
			return t.requestSuggestions(ctx, arg), nil
		}),
	)
	return []*genx.FuncTool{create, update, suggest}
}

func (t *turn) createDocument(ctx context.Context, arg createArgs) any {
	kind, err := artifact.ParseKind(arg.Kind)
	if err != nil {
		return toolError{Error: err.Error()}
	}
	h, err := t.svc.artifacts.Handler(kind)
	if err != nil {
		return toolError{Error: err.Error()}
	}

	id := uuid.NewString()
	sink := t.w.ToolSink()
	for _, e := range []struct {
		typ     stream.Type
		content string
	}{
		{stream.TypeKind, string(kind)},
		{stream.TypeID, id},
		{stream.TypeTitle, arg.Title},
		{stream.TypeClear, ""},
	} {
		if err := sink.Emit(ctx, e.typ, e.content); err != nil {
			return toolError{Error: err.Error()}
		}
	}

	content, err := h.Create(ctx, arg.Title, t.w.ArtifactSink())
	if err != nil {
		return toolError{Error: fmt.Sprintf("Failed to create document: %v", err)}
	}
	doc := &chatstore.Document{
		ID:        id,
		Kind:      string(kind),
		Title:     arg.Title,
		Content:   content,
		UserID:    t.user.ID,
		CreatedAt: jsontime.Milli(t.svc.now()),
	}
	if err := t.svc.store.SaveDocument(ctx, doc); err != nil {
		return toolError{Error: fmt.Sprintf("Failed to save document: %v", err)}
	}
	if err := sink.Emit(ctx, stream.TypeFinish, stream.Finish{ID: id}); err != nil {
		return toolError{Error: err.Error()}
	}
	return documentResult{ID: id, Title: arg.Title, Kind: string(kind), Content: createdMessage}
}

// updateDocument writes the revision under a new id. The prior version is
// left as it was.
func (t *turn) updateDocument(ctx context.Context, arg updateArgs) any {
	prior, err := t.svc.store.GetDocument(ctx, arg.ID)
	if errors.Is(err, chatstore.ErrNotFound) {
		return toolError{Error: fmt.Sprintf(notFoundForUpdate, arg.ID)}
	}
	if err != nil {
		return toolError{Error: err.Error()}
	}

	sink := t.w.ToolSink()
	if err := sink.Emit(ctx, stream.TypeClear, prior.Title); err != nil {
		return toolError{Error: err.Error()}
	}
	kind, err := artifact.ParseKind(prior.Kind)
	if err != nil {
		return toolError{Error: err.Error()}
	}
	h, err := t.svc.artifacts.Handler(kind)
	if err != nil {
		return toolError{Error: err.Error()}
	}

	id := uuid.NewString()
	if err := sink.Emit(ctx, stream.TypeID, id); err != nil {
		return toolError{Error: err.Error()}
	}
	content, err := h.Update(ctx, prior, arg.Description, t.w.ArtifactSink())
	if err != nil {
		return toolError{Error: fmt.Sprintf("Failed to update document: %v", err)}
	}
	doc := &chatstore.Document{
		ID:        id,
		Kind:      prior.Kind,
		Title:     prior.Title,
		Content:   content,
		UserID:    t.user.ID,
		CreatedAt: jsontime.Milli(t.svc.now()),
	}
	if err := t.svc.store.SaveDocument(ctx, doc); err != nil {
		return toolError{Error: fmt.Sprintf("Failed to save document: %v", err)}
	}
	if err := sink.Emit(ctx, stream.TypeFinish, stream.Finish{ID: id}); err != nil {
		return toolError{Error: err.Error()}
	}
	return documentResult{ID: id, Title: prior.Title, Kind: prior.Kind, Content: updatedMessage}
}

type suggestion struct {
	OriginalSentence  string `json:"originalSentence" jsonschema:"the original sentence"`
	SuggestedSentence string `json:"suggestedSentence" jsonschema:"the suggested sentence"`
	Description       string `json:"description" jsonschema:"the description of the suggestion"`
}

type suggestionList struct {
	Suggestions []suggestion `json:"suggestions" jsonschema:"at most 5 suggestions"`
}

func (t *turn) requestSuggestions(ctx context.Context, arg suggestArgs) any {
	doc, err := t.svc.store.GetDocument(ctx, arg.DocumentID)
	if err != nil || doc.Content == "" {
		return toolError{Error: "Document not found"}
	}

	var mcb genx.ModelContextBuilder
	mcb.PromptText("system", suggestionsPrompt)
	mcb.UserText("", doc.Content)
	tool := genx.MustNewFuncTool[suggestionList]("suggestions", "Report the suggested edits.")
	_, call, err := t.svc.gen.Invoke(ctx, ArtifactModel, mcb.Build(), tool)
	if err != nil {
		return toolError{Error: fmt.Sprintf("Failed to request suggestions: %v", err)}
	}
	v, err := call.Invoke(ctx)
	if err != nil {
		return toolError{Error: fmt.Sprintf("Failed to request suggestions: %v", err)}
	}
	list, ok := v.(*suggestionList)
	if !ok {
		return toolError{Error: "Failed to request suggestions: unexpected result"}
	}

	items := list.Suggestions
	if len(items) > maxSuggestions {
		items = items[:maxSuggestions]
	}
	sink := t.w.ToolSink()
	saved := make([]chatstore.Suggestion, 0, len(items))
	for _, it := range items {
		sg := chatstore.Suggestion{
			ID:                uuid.NewString(),
			DocumentID:        doc.ID,
			DocumentCreatedAt: doc.CreatedAt,
			OriginalText:      it.OriginalSentence,
			SuggestedText:     it.SuggestedSentence,
			Description:       it.Description,
			UserID:            t.user.ID,
			CreatedAt:         jsontime.Milli(t.svc.now()),
		}
		if err := sink.Emit(ctx, stream.TypeSuggestion, sg); err != nil {
			return toolError{Error: err.Error()}
		}
		saved = append(saved, sg)
	}
	if err := t.svc.store.SaveSuggestions(ctx, saved); err != nil {
		return toolError{Error: fmt.Sprintf("Failed to save suggestions: %v", err)}
	}
	return suggestionsResult{ID: doc.ID, Title: doc.Title, Kind: doc.Kind, Message: suggestedMessage}
}
