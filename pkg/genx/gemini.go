package genx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/genai"
)

var _ Generator = (*GeminiGenerator)(nil)

// GeminiGenerator serves one Gemini model.
type GeminiGenerator struct {
	Client *genai.Client `json:"-"`

	// Model is the bare model id, without the "models/" prefix.
	Model string `json:"model"`

	GenerateParams *ModelParams `json:"generate_params,omitzero"`
	InvokeParams   *ModelParams `json:"invoke_params,omitzero"`

	// IncludeThoughts asks thinking models for their reasoning, streamed
	// as Thought parts.
	IncludeThoughts bool `json:"include_thoughts,omitzero"`
}

func (g *GeminiGenerator) GenerateStream(ctx context.Context, _ string, mctx ModelContext) (Stream, error) {
	cfg, contents, err := g.request(mctx, g.GenerateParams, true)
	if err != nil {
		return nil, err
	}
	sb := NewStreamBuilder(mctx, 32)
	go func() {
		if err := geminiPull(sb, g.Client.Models.GenerateContentStream(ctx, g.Model, contents, cfg)); err != nil {
			sb.Abort(geminiError(err))
		}
	}()
	return sb.Stream(), nil
}

func (g *GeminiGenerator) Invoke(ctx context.Context, _ string, mctx ModelContext, fn *FuncTool) (Usage, *FuncCall, error) {
	cfg, contents, err := g.request(mctx, g.InvokeParams, false)
	if err != nil {
		return Usage{}, nil, err
	}
	cfg.ResponseMIMEType = "application/json"
	cfg.ResponseSchema = geminiSchema(fn.Argument)
	resp, err := g.Client.Models.GenerateContent(ctx, g.Model, contents, cfg)
	if err != nil {
		return Usage{}, nil, geminiError(err)
	}
	usage := geminiUsage(resp.UsageMetadata)
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return usage, nil, errors.New("genx: empty response")
	}
	c := resp.Candidates[0]
	switch c.FinishReason {
	case genai.FinishReasonStop, genai.FinishReasonUnspecified, "":
	case genai.FinishReasonMaxTokens:
		return usage, nil, newState(StatusTruncated, usage, "", nil)
	case genai.FinishReasonSafety:
		return usage, nil, newState(StatusBlocked, usage, blockedBy(c), nil)
	default:
		return usage, nil, fmt.Errorf("genx: unexpected finish reason %s", c.FinishReason)
	}
	var out strings.Builder
	for _, p := range c.Content.Parts {
		if !p.Thought {
			out.WriteString(p.Text)
		}
	}
	return usage, fn.NewFuncCall(out.String()), nil
}

func (g *GeminiGenerator) request(mctx ModelContext, defaults *ModelParams, withTools bool) (*genai.GenerateContentConfig, []*genai.Content, error) {
	cfg := &genai.GenerateContentConfig{}
	for _, cat := range []genai.HarmCategory{
		genai.HarmCategoryHateSpeech,
		genai.HarmCategoryHarassment,
		genai.HarmCategoryDangerousContent,
	} {
		cfg.SafetySettings = append(cfg.SafetySettings, &genai.SafetySetting{
			Category:  cat,
			Threshold: genai.HarmBlockThresholdOff,
		})
	}

	var system []*genai.Part
	for p := range mctx.Prompts() {
		system = append(system, genai.NewPartFromText(p.Text))
	}
	if len(system) > 0 {
		cfg.SystemInstruction = &genai.Content{Parts: system}
	}
	if g.IncludeThoughts {
		cfg.ThinkingConfig = &genai.ThinkingConfig{IncludeThoughts: true}
	}

	mp := defaults
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		if mp.MaxTokens > 0 {
			cfg.MaxOutputTokens = int32(mp.MaxTokens)
		}
		if mp.Temperature > 0 {
			cfg.Temperature = genai.Ptr(mp.Temperature)
		}
		if mp.TopP > 0 {
			cfg.TopP = genai.Ptr(mp.TopP)
		}
		if mp.TopK > 0 {
			cfg.TopK = genai.Ptr(mp.TopK)
		}
	}

	if withTools {
		var decls []*genai.FunctionDeclaration
		for t := range mctx.Tools() {
			ft, ok := t.(*FuncTool)
			if !ok {
				return nil, nil, fmt.Errorf("genx: unsupported tool %T", t)
			}
			decls = append(decls, &genai.FunctionDeclaration{
				Name:        ft.Name,
				Description: ft.Description,
				Parameters:  geminiSchema(ft.Argument),
			})
		}
		if len(decls) > 0 {
			cfg.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
		}
	}

	contents, err := geminiContents(mctx)
	if err != nil {
		return nil, nil, err
	}
	if len(contents) == 0 {
		return nil, nil, errors.New("genx: no messages")
	}
	return cfg, contents, nil
}

// geminiContents converts the messages, joining consecutive parts from the
// same role into one content. Tool results travel as user content.
func geminiContents(mctx ModelContext) ([]*genai.Content, error) {
	var out []*genai.Content
	add := func(role string, parts ...*genai.Part) {
		if len(parts) == 0 {
			return
		}
		if n := len(out); n > 0 && out[n-1].Role == role {
			out[n-1].Parts = append(out[n-1].Parts, parts...)
			return
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	for msg := range mctx.Messages() {
		switch pl := msg.Payload.(type) {
		case Contents:
			var role string
			switch msg.Role {
			case RoleUser:
				role = "user"
			case RoleModel:
				role = "model"
			default:
				return nil, fmt.Errorf("genx: content message from role %s", msg.Role)
			}
			var parts []*genai.Part
			for _, p := range pl {
				switch v := p.(type) {
				case Text:
					parts = append(parts, genai.NewPartFromText(string(v)))
				case *Blob:
					parts = append(parts, genai.NewPartFromBytes(v.Data, v.MIMEType))
				}
			}
			add(role, parts...)
		case *ToolCall:
			if pl.FuncCall == nil {
				return nil, fmt.Errorf("genx: tool call %s has no function", pl.ID)
			}
			part := genai.NewPartFromFunctionCall(pl.FuncCall.Name, jsonObject(pl.FuncCall.Arguments))
			part.FunctionCall.ID = pl.ID
			add("model", part)
		case *ToolResult:
			name := pl.Name
			if name == "" {
				name = pl.ID
			}
			part := genai.NewPartFromFunctionResponse(name, jsonObject(pl.Result))
			part.FunctionResponse.ID = pl.ID
			add("user", part)
		default:
			return nil, fmt.Errorf("genx: unsupported payload %T", pl)
		}
	}
	return out, nil
}

// jsonObject decodes s as a JSON object, wrapping anything else as
// {"text": s}.
func jsonObject(s string) map[string]any {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return map[string]any{"text": s}
	}
	return m
}

func geminiPull(sb *StreamBuilder, responses iter.Seq2[*genai.GenerateContentResponse, error]) error {
	var usage Usage
	for resp, err := range responses {
		if err != nil {
			return err
		}
		if resp.UsageMetadata != nil {
			usage = geminiUsage(resp.UsageMetadata)
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		c := resp.Candidates[0]
		if c.Content != nil {
			for _, p := range c.Content.Parts {
				chunk := geminiChunk(p)
				if chunk == nil {
					continue
				}
				if err := sb.Add(chunk); err != nil {
					return err
				}
			}
		}
		switch c.FinishReason {
		case genai.FinishReasonUnspecified, "":
		case genai.FinishReasonStop:
			return sb.Done(usage)
		case genai.FinishReasonMaxTokens:
			return sb.Truncated(usage)
		case genai.FinishReasonSafety:
			return sb.Blocked(usage, blockedBy(c))
		default:
			return sb.Unexpected(usage, fmt.Errorf("finish reason %s", c.FinishReason))
		}
	}
	return sb.Done(usage)
}

func geminiChunk(p *genai.Part) *MessageChunk {
	switch {
	case p.FunctionCall != nil:
		args, _ := json.Marshal(p.FunctionCall.Args)
		id := p.FunctionCall.ID
		if id == "" {
			id = newCallID(p.FunctionCall.Name + "_")
		}
		return &MessageChunk{Role: RoleModel, ToolCall: &ToolCall{
			ID:       id,
			FuncCall: &FuncCall{Name: p.FunctionCall.Name, Arguments: string(args)},
		}}
	case p.Text != "" && p.Thought:
		return &MessageChunk{Role: RoleModel, Part: Thought(p.Text)}
	case p.Text != "":
		return &MessageChunk{Role: RoleModel, Part: Text(p.Text)}
	case p.InlineData != nil:
		return &MessageChunk{Role: RoleModel, Part: &Blob{MIMEType: p.InlineData.MIMEType, Data: p.InlineData.Data}}
	}
	return nil
}

func blockedBy(c *genai.Candidate) string {
	var cats []string
	for _, r := range c.SafetyRatings {
		if r.Blocked {
			cats = append(cats, string(r.Category))
		}
	}
	if len(cats) == 0 {
		return "safety"
	}
	return strings.Join(cats, ", ")
}

var geminiTypes = map[string]genai.Type{
	"object":  genai.TypeObject,
	"array":   genai.TypeArray,
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
}

// geminiSchema converts the subset of JSON schema Gemini understands. A
// "null" member of Types makes the schema nullable.
func geminiSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}
	out := &genai.Schema{
		Description: s.Description,
		Format:      s.Format,
		Items:       geminiSchema(s.Items),
		Required:    slices.Clone(s.Required),
	}
	for _, v := range s.Enum {
		out.Enum = append(out.Enum, fmt.Sprint(v))
	}
	out.Type = geminiTypes[s.Type]
	for _, t := range s.Types {
		if t == "null" {
			out.Nullable = genai.Ptr(true)
		} else if out.Type == "" {
			out.Type = geminiTypes[t]
		}
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for k, p := range s.Properties {
			out.Properties[k] = geminiSchema(p)
		}
	}
	return out
}

func geminiUsage(u *genai.GenerateContentResponseUsageMetadata) Usage {
	if u == nil {
		return Usage{}
	}
	return Usage{
		PromptTokenCount:        int64(u.PromptTokenCount),
		CachedContentTokenCount: int64(u.CachedContentTokenCount),
		GeneratedTokenCount:     int64(u.CandidatesTokenCount),
	}
}

// geminiError strips the gRPC status wrapper gax adds around API errors.
func geminiError(err error) error {
	var ae *apierror.APIError
	if errors.As(err, &ae) {
		if inner := ae.Unwrap(); inner != nil {
			return inner
		}
	}
	return err
}
