// Package config is the chatlogo server configuration file.
//
// A minimal file:
//
//	server:
//	  addr: ":8080"
//	kv:
//	  driver: badger
//	  dir: /var/lib/chatlogo/kv
//	blob:
//	  driver: local
//	  dir: /var/lib/chatlogo/blobs
//	auth:
//	  jwtSecret: $CHATLOGO_JWT_SECRET
//	models:
//	  dir: /etc/chatlogo/models
//	image:
//	  provider: openai
//	  model: gpt-image-1
//	  apiKey: $OPENAI_API_KEY
//
// $VAR references anywhere in the file are expanded from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/haivivi/chatlogo/pkg/chat"
	"github.com/haivivi/chatlogo/pkg/cli"
	"github.com/haivivi/chatlogo/pkg/jsontime"
	"github.com/haivivi/chatlogo/pkg/storage"
)

// Config is the root of the configuration file.
type Config struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Log    LogConfig    `yaml:"log" json:"log"`
	KV     KVConfig     `yaml:"kv" json:"kv"`
	Blob   BlobConfig   `yaml:"blob" json:"blob"`
	Auth   AuthConfig   `yaml:"auth" json:"auth"`
	Models ModelsConfig `yaml:"models" json:"models"`
	Image  ImageConfig  `yaml:"image" json:"image"`
	Chat   ChatConfig   `yaml:"chat" json:"chat"`
}

type ServerConfig struct {
	Addr            string            `yaml:"addr" json:"addr"`
	ShutdownTimeout jsontime.Duration `yaml:"shutdownTimeout,omitempty" json:"shutdownTimeout,omitempty"`
}

type LogConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level,omitempty" json:"level,omitempty"`

	// File, when set, also receives JSON logs.
	File string `yaml:"file,omitempty" json:"file,omitempty"`
}

// KVConfig selects the key-value backend.
type KVConfig struct {
	// Driver is badger, bolt or memory.
	Driver string `yaml:"driver" json:"driver"`
	Dir    string `yaml:"dir,omitempty" json:"dir,omitempty"`

	// StreamTTL is how long stream events are kept for resumption.
	StreamTTL jsontime.Duration `yaml:"streamTTL,omitempty" json:"streamTTL,omitempty"`
}

// BlobConfig selects where uploads are stored.
type BlobConfig struct {
	// Driver is local or s3.
	Driver string           `yaml:"driver" json:"driver"`
	Dir    string           `yaml:"dir,omitempty" json:"dir,omitempty"`
	S3     storage.S3Config `yaml:"s3,omitempty" json:"s3,omitempty"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwtSecret" json:"jwtSecret"`
	Cookie    string `yaml:"cookie,omitempty" json:"cookie,omitempty"`
}

// ModelsConfig points at the provider files read by modelloader.
type ModelsConfig struct {
	Dir     string `yaml:"dir" json:"dir"`
	Verbose bool   `yaml:"verbose,omitempty" json:"verbose,omitempty"`
}

// ImageConfig configures the image model used by image artifacts.
type ImageConfig struct {
	// Provider is openai, fake or empty to disable image artifacts.
	Provider string            `yaml:"provider,omitempty" json:"provider,omitempty"`
	Model    string            `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL  string            `yaml:"baseURL,omitempty" json:"baseURL,omitempty"`
	APIKey   string            `yaml:"apiKey,omitempty" json:"apiKey,omitempty"`
	Timeout  jsontime.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type ChatConfig struct {
	MaxSteps        int               `yaml:"maxSteps,omitempty" json:"maxSteps,omitempty"`
	TurnTimeout     jsontime.Duration `yaml:"turnTimeout,omitempty" json:"turnTimeout,omitempty"`
	FreshnessWindow jsontime.Duration `yaml:"freshnessWindow,omitempty" json:"freshnessWindow,omitempty"`

	// Resumable keeps stream events in the kv store so clients can
	// reattach. Defaults to true.
	Resumable *bool `yaml:"resumable,omitempty" json:"resumable,omitempty"`

	Quota *chat.QuotaPolicy `yaml:"quota,omitempty" json:"quota,omitempty"`
}

const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultStreamTTL       = 24 * time.Hour
)

// Default returns the configuration used when no file is given: memory
// storage, local blobs under dataDir and no models.
func Default(dataDir string) *Config {
	return &Config{
		Server: ServerConfig{Addr: DefaultAddr},
		KV:     KVConfig{Driver: "memory"},
		Blob:   BlobConfig{Driver: "local", Dir: filepath.Join(dataDir, "blobs")},
	}
}

// Load reads path. Unset fields keep their zero value; use the accessor
// methods for defaults.
func Load(path string) (*Config, error) {
	var c Config
	if err := cli.LoadFile(path, &c); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return &c, nil
}

// Validate checks the driver selections.
func (c *Config) Validate() error {
	var errs []error
	switch c.KV.Driver {
	case "memory":
	case "badger", "bolt":
		if c.KV.Dir == "" {
			errs = append(errs, fmt.Errorf("kv.dir is required for driver %s", c.KV.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("kv.driver: unknown driver %q", c.KV.Driver))
	}
	switch c.Blob.Driver {
	case "local":
		if c.Blob.Dir == "" {
			errs = append(errs, errors.New("blob.dir is required for driver local"))
		}
	case "s3":
		if c.Blob.S3.Bucket == "" {
			errs = append(errs, errors.New("blob.s3.bucket is required for driver s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("blob.driver: unknown driver %q", c.Blob.Driver))
	}
	switch c.Image.Provider {
	case "", "fake":
	case "openai":
		if c.Image.APIKey == "" {
			errs = append(errs, errors.New("image.apiKey is required for provider openai"))
		}
	default:
		errs = append(errs, fmt.Errorf("image.provider: unknown provider %q", c.Image.Provider))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// LogLevel parses log.level. Empty means info.
func (c *Config) LogLevel() (slog.Level, error) {
	var l slog.Level
	if c.Log.Level == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return l, nil
}

// IsResumable reports whether stream events are retained.
func (c *ChatConfig) IsResumable() bool {
	return c.Resumable == nil || *c.Resumable
}

// ChatService returns the chat engine settings. The quota defaults to the
// disabled standard policy.
func (c *ChatConfig) ChatService() chat.Config {
	q := chat.DefaultQuota()
	if c.Quota != nil {
		q.Enabled = c.Quota.Enabled
		for k, v := range c.Quota.MaxPerDay {
			q.MaxPerDay[k] = v
		}
	}
	return chat.Config{
		MaxSteps:        c.MaxSteps,
		TurnTimeout:     c.TurnTimeout.Duration(),
		FreshnessWindow: c.FreshnessWindow.Duration(),
		Quota:           q,
	}
}
