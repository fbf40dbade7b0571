package genx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
)

var _ Generator = (*OpenAIGenerator)(nil)

// OpenAIGenerator serves one model over the OpenAI chat completions API or
// a compatible endpoint.
type OpenAIGenerator struct {
	Client *openai.Client `json:"-"`
	Model  string         `json:"model"`

	GenerateParams *ModelParams `json:"generate_params,omitzero"`
	InvokeParams   *ModelParams `json:"invoke_params,omitzero"`

	// SupportJSONOutput makes Invoke use a strict json_schema response
	// format. Otherwise Invoke forces a call to the tool, which requires
	// SupportToolCalls.
	SupportJSONOutput bool `json:"support_json_output,omitzero"`

	// SupportToolCalls sends the context tools with GenerateStream.
	SupportToolCalls bool `json:"support_tool_calls,omitzero"`

	// SupportTextOnly rejects image attachments.
	SupportTextOnly bool `json:"support_text_only,omitzero"`

	// UseSystemRole sends prompts as system messages instead of developer
	// messages, for endpoints that predate the developer role.
	UseSystemRole bool `json:"use_system_role,omitzero"`

	ExtraFields map[string]any `json:"extra_fields,omitzero"`
}

func (g *OpenAIGenerator) GenerateStream(ctx context.Context, _ string, mctx ModelContext) (Stream, error) {
	params, err := g.request(mctx, g.GenerateParams)
	if err != nil {
		return nil, err
	}
	if g.SupportToolCalls {
		for t := range mctx.Tools() {
			ft, ok := t.(*FuncTool)
			if !ok {
				return nil, fmt.Errorf("genx: unsupported tool %T", t)
			}
			params.Tools = append(params.Tools, oaiTool(ft, false))
		}
	}
	sb := NewStreamBuilder(mctx, 32)
	go func() {
		var acc oaiAccumulator
		if err := acc.pull(sb, g.Client.Chat.Completions.NewStreaming(ctx, params)); err != nil {
			sb.Abort(err)
		}
	}()
	return sb.Stream(), nil
}

func (g *OpenAIGenerator) Invoke(ctx context.Context, _ string, mctx ModelContext, fn *FuncTool) (Usage, *FuncCall, error) {
	params, err := g.request(mctx, g.InvokeParams)
	if err != nil {
		return Usage{}, nil, err
	}
	switch {
	case g.SupportJSONOutput:
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        fn.Name,
					Description: param.NewOpt(fn.Description),
					Schema:      StrictSchema(fn.Argument),
					Strict:      param.NewOpt(true),
				},
			},
		}
	case g.SupportToolCalls:
		params.Tools = []openai.ChatCompletionToolParam{oaiTool(fn, true)}
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfChatCompletionNamedToolChoice: &openai.ChatCompletionNamedToolChoiceParam{
				Function: openai.ChatCompletionNamedToolChoiceFunctionParam{Name: fn.Name},
			},
		}
	default:
		return Usage{}, nil, fmt.Errorf("genx: model %s supports neither json output nor tool calls", g.Model)
	}

	resp, err := g.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return Usage{}, nil, err
	}
	usage := oaiUsage(resp.Usage)
	if len(resp.Choices) == 0 {
		return usage, nil, errors.New("genx: empty response")
	}
	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return usage, nil, newState(StatusBlocked, usage, msg.Refusal, nil)
	}
	if g.SupportJSONOutput {
		if msg.Content == "" {
			return usage, nil, errors.New("genx: empty json output")
		}
		return usage, fn.NewFuncCall(msg.Content), nil
	}
	for _, tc := range msg.ToolCalls {
		if tc.Function.Name == fn.Name {
			return usage, fn.NewFuncCall(tc.Function.Arguments), nil
		}
	}
	return usage, nil, fmt.Errorf("genx: model did not call %s (finish reason %q)", fn.Name, resp.Choices[0].FinishReason)
}

func (g *OpenAIGenerator) request(mctx ModelContext, defaults *ModelParams) (openai.ChatCompletionNewParams, error) {
	msgs, err := g.messages(mctx)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{Model: g.Model, Messages: msgs}
	mp := defaults
	if p := mctx.Params(); p != nil {
		mp = p
	}
	if mp != nil {
		if mp.MaxTokens > 0 {
			params.MaxCompletionTokens = param.NewOpt(int64(mp.MaxTokens))
		}
		if mp.Temperature > 0 {
			params.Temperature = param.NewOpt(float64(mp.Temperature))
		}
		if mp.TopP > 0 {
			params.TopP = param.NewOpt(float64(mp.TopP))
		}
		if mp.FrequencyPenalty > 0 {
			params.FrequencyPenalty = param.NewOpt(float64(mp.FrequencyPenalty))
		}
		if mp.PresencePenalty > 0 {
			params.PresencePenalty = param.NewOpt(float64(mp.PresencePenalty))
		}
	}
	if len(g.ExtraFields) > 0 {
		params.SetExtraFields(g.ExtraFields)
	}
	return params, nil
}

// messages converts the context. Consecutive tool calls are folded into a
// single assistant message, as the API expects for parallel calls.
func (g *OpenAIGenerator) messages(mctx ModelContext) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	for p := range mctx.Prompts() {
		if g.UseSystemRole {
			out = append(out, openai.SystemMessage(p.Text))
		} else {
			out = append(out, openai.DeveloperMessage(p.Text))
		}
	}
	for msg := range mctx.Messages() {
		switch pl := msg.Payload.(type) {
		case Contents:
			var (
				m   openai.ChatCompletionMessageParamUnion
				ok  bool
				err error
			)
			switch msg.Role {
			case RoleUser:
				m, err = g.userMessage(pl)
				ok = true
			case RoleModel:
				m, ok = assistantText(pl)
			default:
				err = fmt.Errorf("genx: content message from role %s", msg.Role)
			}
			if err != nil {
				return nil, err
			}
			if ok {
				out = append(out, m)
			}
		case *ToolCall:
			if pl.FuncCall == nil {
				return nil, fmt.Errorf("genx: tool call %s has no function", pl.ID)
			}
			call := openai.ChatCompletionMessageToolCallParam{
				ID: pl.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      pl.FuncCall.Name,
					Arguments: pl.FuncCall.Arguments,
				},
			}
			if n := len(out); n > 0 && out[n-1].OfAssistant != nil && len(out[n-1].OfAssistant.ToolCalls) > 0 {
				out[n-1].OfAssistant.ToolCalls = append(out[n-1].OfAssistant.ToolCalls, call)
				continue
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					ToolCalls: []openai.ChatCompletionMessageToolCallParam{call},
				},
			})
		case *ToolResult:
			out = append(out, openai.ToolMessage(pl.Result, pl.ID))
		default:
			return nil, fmt.Errorf("genx: unsupported payload %T", pl)
		}
	}
	return out, nil
}

func (g *OpenAIGenerator) userMessage(parts Contents) (openai.ChatCompletionMessageParamUnion, error) {
	var (
		text    strings.Builder
		content []openai.ChatCompletionContentPartUnionParam
	)
	for _, p := range parts {
		switch v := p.(type) {
		case Text:
			text.WriteString(string(v))
		case *Blob:
			if g.SupportTextOnly {
				return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("genx: model %s accepts text only", g.Model)
			}
			if !strings.HasPrefix(v.MIMEType, "image/") {
				return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("genx: unsupported attachment type %s", v.MIMEType)
			}
			content = append(content, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
				URL: "data:" + v.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(v.Data),
			}))
		}
	}
	if len(content) == 0 {
		return openai.UserMessage(text.String()), nil
	}
	if text.Len() > 0 {
		content = append([]openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(text.String())}, content...)
	}
	return openai.UserMessage(content), nil
}

// assistantText returns the text of a model message. Thoughts are not
// replayed; a message with nothing else is skipped.
func assistantText(parts Contents) (openai.ChatCompletionMessageParamUnion, bool) {
	var text strings.Builder
	for _, p := range parts {
		if t, ok := p.(Text); ok {
			text.WriteString(string(t))
		}
	}
	if text.Len() == 0 {
		return openai.ChatCompletionMessageParamUnion{}, false
	}
	return openai.AssistantMessage(text.String()), true
}

func oaiTool(t *FuncTool, strict bool) openai.ChatCompletionToolParam {
	def := openai.FunctionDefinitionParam{
		Name:        t.Name,
		Description: param.NewOpt(t.Description),
	}
	if strict {
		def.Strict = param.NewOpt(true)
		def.Parameters = functionParameters(StrictSchema(t.Argument))
	} else {
		def.Parameters = functionParameters(t.Argument)
	}
	return openai.ChatCompletionToolParam{Function: def}
}

func functionParameters(s *jsonschema.Schema) openai.FunctionParameters {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil
	}
	var m openai.FunctionParameters
	if json.Unmarshal(b, &m) != nil {
		return nil
	}
	return m
}

// StrictSchema returns a copy of s that satisfies OpenAI strict mode:
// objects reject additional properties, and every property is required,
// optional ones becoming nullable.
func StrictSchema(s *jsonschema.Schema) *jsonschema.Schema {
	if s == nil {
		return nil
	}
	return strictify(s.CloneSchemas())
}

func strictify(s *jsonschema.Schema) *jsonschema.Schema {
	if s == nil {
		return nil
	}
	if s.Type != "" && len(s.Types) > 0 {
		s.Types = append(s.Types, s.Type)
		s.Type = ""
	}
	typ := s.Type
	for _, t := range s.Types {
		if typ == "" && t != "null" {
			typ = t
		}
	}
	switch typ {
	case "array":
		s.Items = strictify(s.Items)
	case "object":
		s.AdditionalProperties = &jsonschema.Schema{Not: &jsonschema.Schema{}}
		for name, prop := range s.Properties {
			if !slices.Contains(s.Required, name) && prop.Type != "null" && !slices.Contains(prop.Types, "null") {
				if prop.Type != "" {
					prop.Types = []string{prop.Type, "null"}
					prop.Type = ""
				} else {
					prop.Types = append(prop.Types, "null")
				}
			}
			s.Properties[name] = strictify(prop)
		}
		s.Required = slices.Sorted(maps.Keys(s.Properties))
	}
	return s
}

func oaiUsage(u openai.CompletionUsage) Usage {
	return Usage{
		PromptTokenCount:        u.PromptTokens,
		CachedContentTokenCount: u.PromptTokensDetails.CachedTokens,
		GeneratedTokenCount:     u.CompletionTokens,
	}
}

// oaiAccumulator turns completion chunks into stream chunks. Tool call
// fragments are joined by their index and emitted once the choice
// finishes.
type oaiAccumulator struct {
	think ThinkSplitter
	calls []openai.ChatCompletionChunkChoiceDeltaToolCall
	usage Usage
}

func (a *oaiAccumulator) text(sb *StreamBuilder, parts []Part) error {
	for _, p := range parts {
		if err := sb.Add(&MessageChunk{Role: RoleModel, Part: p}); err != nil {
			return err
		}
	}
	return nil
}

func (a *oaiAccumulator) toolDelta(d openai.ChatCompletionChunkChoiceDeltaToolCall) {
	for i := range a.calls {
		if a.calls[i].Index == d.Index {
			if d.ID != "" {
				a.calls[i].ID = d.ID
			}
			a.calls[i].Function.Name += d.Function.Name
			a.calls[i].Function.Arguments += d.Function.Arguments
			return
		}
	}
	a.calls = append(a.calls, d)
}

func (a *oaiAccumulator) flush(sb *StreamBuilder) error {
	if err := a.text(sb, a.think.Flush()); err != nil {
		return err
	}
	for _, c := range a.calls {
		id := c.ID
		if id == "" {
			id = newCallID("call_")
		}
		if err := sb.Add(&MessageChunk{
			Role: RoleModel,
			ToolCall: &ToolCall{
				ID:       id,
				FuncCall: &FuncCall{Name: c.Function.Name, Arguments: c.Function.Arguments},
			},
		}); err != nil {
			return err
		}
	}
	a.calls = nil
	return nil
}

func (a *oaiAccumulator) pull(sb *StreamBuilder, s *ssestream.Stream[openai.ChatCompletionChunk]) error {
	defer s.Close()
	finish := ""
	for s.Next() {
		chunk := s.Current()
		if chunk.Usage.PromptTokens > 0 || chunk.Usage.CompletionTokens > 0 {
			a.usage = oaiUsage(chunk.Usage)
		}
		for _, c := range chunk.Choices {
			if c.Index != 0 {
				continue
			}
			if c.Delta.Refusal != "" {
				return sb.Blocked(a.usage, c.Delta.Refusal)
			}
			if c.Delta.Content != "" {
				if err := a.text(sb, a.think.Feed(c.Delta.Content)); err != nil {
					return err
				}
			}
			for _, d := range c.Delta.ToolCalls {
				a.toolDelta(d)
			}
			if c.FinishReason != "" {
				finish = c.FinishReason
			}
		}
	}
	if err := s.Err(); err != nil {
		return err
	}
	if err := a.flush(sb); err != nil {
		return err
	}
	switch finish {
	case "length":
		return sb.Truncated(a.usage)
	case "content_filter":
		return sb.Blocked(a.usage, "content filter")
	default:
		return sb.Done(a.usage)
	}
}
