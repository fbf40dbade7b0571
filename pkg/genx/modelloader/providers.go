package modelloader

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"google.golang.org/genai"

	"github.com/haivivi/chatlogo/pkg/genx"
)

// provider connects one account and returns a constructor for its models.
type provider func(ctx context.Context, l *Loader, cfg ConfigFile) (func(Entry) genx.Generator, error)

var providers = map[string]provider{
	"openai": openaiProvider,
	"gemini": geminiProvider,
}

func openaiProvider(_ context.Context, l *Loader, cfg ConfigFile) (func(Entry) genx.Generator, error) {
	client := l.OpenAIClient(cfg.APIKey, cfg.BaseURL)
	return func(m Entry) genx.Generator {
		return &genx.OpenAIGenerator{
			Client:            client,
			Model:             m.Model,
			GenerateParams:    m.GenerateParams,
			InvokeParams:      m.InvokeParams,
			SupportJSONOutput: m.SupportJSONOutput,
			SupportToolCalls:  m.SupportToolCalls,
			SupportTextOnly:   m.SupportTextOnly,
			UseSystemRole:     m.UseSystemRole,
			ExtraFields:       m.ExtraFields,
		}
	}, nil
}

func geminiProvider(ctx context.Context, _ *Loader, cfg ConfigFile) (func(Entry) genx.Generator, error) {
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = cfg.BaseURL
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, err
	}
	return func(m Entry) genx.Generator {
		return &genx.GeminiGenerator{
			Client:          client,
			Model:           m.Model,
			GenerateParams:  m.GenerateParams,
			InvokeParams:    m.InvokeParams,
			IncludeThoughts: m.IncludeThoughts,
		}
	}, nil
}

// OpenAIClient builds an OpenAI client for an API key and optional base URL.
// Image generation shares this with the chat models.
func (l *Loader) OpenAIClient(apiKey, baseURL string) *openai.Client {
	opts := []option.RequestOption{option.WithAPIKey(expandEnv(apiKey))}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if l.Verbose {
		opts = append(opts, option.WithHTTPClient(&http.Client{
			Transport: dumpTransport{next: http.DefaultTransport, log: l.logger()},
		}))
	}
	c := openai.NewClient(opts...)
	return &c
}

// dumpTransport logs request bodies before sending them on.
type dumpTransport struct {
	next http.RoundTripper
	log  *slog.Logger
}

func (t dumpTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Body == nil {
		return t.next.RoundTrip(req)
	}
	body, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, err
	}
	req.Body = io.NopCloser(bytes.NewReader(body))
	var out bytes.Buffer
	if json.Indent(&out, body, "", "  ") != nil {
		out.Reset()
		out.Write(body)
	}
	t.log.Debug("modelloader: request", "method", req.Method, "url", req.URL.String(), "body", out.String())
	return t.next.RoundTrip(req)
}
