package artifact

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/haivivi/chatlogo/pkg/chatstore"
	"github.com/haivivi/chatlogo/pkg/genx"
	"github.com/haivivi/chatlogo/pkg/stream"
)

// textHandler streams model output as artifact deltas. The code and sheet
// kinds differ from text only by prompt and final post-processing.
type textHandler struct {
	kind   Kind
	gen    genx.Generator
	model  string
	prompt string
	post   func(string) string
}

func newTextHandler(k Kind, d Deps, prompt string, post func(string) string) *textHandler {
	return &textHandler{
		kind:   k,
		gen:    d.Generator,
		model:  d.Model,
		prompt: prompt,
		post:   post,
	}
}

func (h *textHandler) Kind() Kind { return h.kind }

func (h *textHandler) Create(ctx context.Context, title string, sink stream.ArtifactSink) (string, error) {
	var mcb genx.ModelContextBuilder
	mcb.PromptText("system", h.prompt)
	mcb.UserText("user", title)
	return h.run(ctx, mcb.Build(), sink)
}

func (h *textHandler) Update(ctx context.Context, prior *chatstore.Document, description string, sink stream.ArtifactSink) (string, error) {
	var mcb genx.ModelContextBuilder
	mcb.PromptText("system", updatePrompt(h.kind, prior.Content))
	mcb.UserText("user", description)
	return h.run(ctx, mcb.Build(), sink)
}

func (h *textHandler) run(ctx context.Context, mctx genx.ModelContext, sink stream.ArtifactSink) (string, error) {
	content, err := streamText(ctx, h.gen, h.model, mctx, sink)
	if err != nil {
		return "", fmt.Errorf("artifact: %s: %w", h.kind, err)
	}
	if h.post != nil {
		content = h.post(content)
	}
	return content, nil
}

// streamText drains a generation, emitting each text chunk as an
// artifact-delta, and returns the concatenation. A truncated generation
// keeps what was produced.
func streamText(ctx context.Context, gen genx.Generator, model string, mctx genx.ModelContext, sink stream.ArtifactSink) (string, error) {
	s, err := gen.GenerateStream(ctx, model, mctx)
	if err != nil {
		return "", err
	}
	defer s.Close()

	var sb strings.Builder
	for {
		chunk, err := s.Next()
		if err != nil {
			if genx.Complete(err) {
				return sb.String(), nil
			}
			return "", err
		}
		if chunk == nil {
			continue
		}
		t, ok := chunk.Part.(genx.Text)
		if !ok || t == "" {
			continue
		}
		sb.WriteString(string(t))
		if err := sink.Emit(ctx, stream.TypeArtifactDelta, string(t)); err != nil {
			return "", err
		}
	}
}

// stripFences removes a surrounding markdown code fence.
func stripFences(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") {
		return s
	}
	if i := strings.IndexByte(t, '\n'); i >= 0 {
		t = t[i+1:]
	} else {
		return ""
	}
	t = strings.TrimRight(t, " \t\n")
	t = strings.TrimSuffix(t, "```")
	return strings.TrimRight(t, " \t\n")
}

// normalizeCSV re-serializes s as CSV, padding short rows to the widest
// row. Content that does not parse is returned as is.
func normalizeCSV(s string) string {
	r := csv.NewReader(strings.NewReader(stripFences(s)))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	width := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return s
		}
		rows = append(rows, rec)
		width = max(width, len(rec))
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, rec := range rows {
		for len(rec) < width {
			rec = append(rec, "")
		}
		if err := w.Write(rec); err != nil {
			return s
		}
	}
	w.Flush()
	if w.Error() != nil {
		return s
	}
	return strings.TrimSuffix(buf.String(), "\n")
}
