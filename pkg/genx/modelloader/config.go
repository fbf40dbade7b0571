// Package modelloader builds generators from provider config files and
// registers them on a generators.Mux.
package modelloader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/haivivi/chatlogo/pkg/cli"
	"github.com/haivivi/chatlogo/pkg/genx"
	"github.com/haivivi/chatlogo/pkg/genx/generators"
)

// ConfigFile describes one provider account and the models it serves.
//
//	kind: openai
//	api_key: $OPENAI_API_KEY
//	models:
//	  - name: chat-model
//	    model: gpt-4o
//	    support_tool_calls: true
type ConfigFile struct {
	Kind    string  `json:"kind" yaml:"kind"`
	APIKey  string  `json:"api_key,omitzero" yaml:"api_key,omitzero"`
	BaseURL string  `json:"base_url,omitzero" yaml:"base_url,omitzero"`
	Models  []Entry `json:"models,omitzero" yaml:"models,omitzero"`
}

// Entry maps a registry name onto a provider model. Capability flags only
// apply to providers that read them.
type Entry struct {
	Name  string `json:"name" yaml:"name"`
	Model string `json:"model" yaml:"model"`

	GenerateParams *genx.ModelParams `json:"generate_params,omitzero" yaml:"generate_params,omitzero"`
	InvokeParams   *genx.ModelParams `json:"invoke_params,omitzero" yaml:"invoke_params,omitzero"`

	SupportJSONOutput bool           `json:"support_json_output,omitzero" yaml:"support_json_output,omitzero"`
	SupportToolCalls  bool           `json:"support_tool_calls,omitzero" yaml:"support_tool_calls,omitzero"`
	SupportTextOnly   bool           `json:"support_text_only,omitzero" yaml:"support_text_only,omitzero"`
	UseSystemRole     bool           `json:"use_system_role,omitzero" yaml:"use_system_role,omitzero"`
	IncludeThoughts   bool           `json:"include_thoughts,omitzero" yaml:"include_thoughts,omitzero"`
	ExtraFields       map[string]any `json:"extra_fields,omitzero" yaml:"extra_fields,omitzero"`
}

func (e Entry) validate() error {
	switch {
	case e.Name == "":
		return errors.New("model entry has no name")
	case e.Model == "":
		return fmt.Errorf("model entry %q has no model", e.Name)
	}
	return nil
}

// Loader registers generators on Mux.
type Loader struct {
	Mux *generators.Mux

	// Verbose logs every OpenAI request body at debug level.
	Verbose bool

	Logger *slog.Logger
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// LoadFromDir walks dir and loads every .json, .yaml and .yml file as a
// ConfigFile. It returns the registered model names.
func (l *Loader) LoadFromDir(ctx context.Context, dir string) ([]string, error) {
	var names []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !isConfigFile(path) {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		var cfg ConfigFile
		if err := cli.Decode(data, path, &cfg); err != nil {
			return fmt.Errorf("modelloader: %s: %w", path, err)
		}
		got, err := l.Load(ctx, cfg)
		if err != nil {
			return fmt.Errorf("modelloader: %s: %w", path, err)
		}
		names = append(names, got...)
		return nil
	})
	return names, err
}

func isConfigFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// Load registers the models of one provider. A provider whose API key is
// empty after expansion is skipped with a warning.
func (l *Loader) Load(ctx context.Context, cfg ConfigFile) ([]string, error) {
	build, ok := providers[strings.ToLower(cfg.Kind)]
	if !ok {
		return nil, fmt.Errorf("unknown kind: %s", cfg.Kind)
	}
	cfg.APIKey = expandEnv(cfg.APIKey)
	if cfg.APIKey == "" {
		l.logger().Warn("modelloader: skipping provider without api key", "kind", cfg.Kind)
		return nil, nil
	}
	newGen, err := build(ctx, l, cfg)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(cfg.Models))
	for _, m := range cfg.Models {
		if err := m.validate(); err != nil {
			return nil, err
		}
		if err := l.Mux.Handle(m.Name, newGen(m)); err != nil {
			return nil, fmt.Errorf("register generator %q: %w", m.Name, err)
		}
		names = append(names, m.Name)
	}
	return names, nil
}

// expandEnv resolves values written as $VAR or ${VAR}. An unset variable
// yields "". Anything else is returned as is.
func expandEnv(s string) string {
	if !strings.HasPrefix(s, "$") {
		return s
	}
	return os.ExpandEnv(s)
}
