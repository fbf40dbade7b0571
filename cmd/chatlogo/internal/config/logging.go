package config

import (
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
)

// Logger builds the process logger: text on stderr, plus JSON lines in
// log.file when it is set. The returned function closes the file.
func (c *Config) Logger() (*slog.Logger, func() error, error) {
	level, err := c.LogLevel()
	if err != nil {
		return nil, nil, err
	}
	stderr := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	if c.Log.File == "" {
		return slog.New(stderr), func() error { return nil }, nil
	}

	f, err := os.OpenFile(c.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	file := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
	return slog.New(slogmulti.Fanout(stderr, file)), f.Close, nil
}
