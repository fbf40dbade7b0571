package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-yaml"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	FormatYAML OutputFormat = "yaml"
	FormatJSON OutputFormat = "json"
)

var encoders = map[OutputFormat]func(io.Writer, any) error{
	FormatYAML: writeYAML,
	FormatJSON: writeJSON,
}

// ParseFormat validates a --output flag value. Empty means YAML.
func ParseFormat(s string) (OutputFormat, error) {
	f := OutputFormat(s)
	if f == "" {
		return FormatYAML, nil
	}
	if _, ok := encoders[f]; !ok {
		return "", fmt.Errorf("unsupported output format: %s", s)
	}
	return f, nil
}

// OutputOptions configures Output. A nil Writer means os.Stdout.
type OutputOptions struct {
	Format OutputFormat
	Writer io.Writer
}

// Output prints v in opts.Format.
func Output(v any, opts OutputOptions) error {
	f, err := ParseFormat(string(opts.Format))
	if err != nil {
		return err
	}
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	return encoders[f](w, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML goes through JSON first so keys follow the json tags.
func writeYAML(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	if b, err = yaml.JSONToYAML(b); err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}
	_, err = w.Write(b)
	return err
}
