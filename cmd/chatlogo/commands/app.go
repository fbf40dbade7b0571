package commands

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/haivivi/chatlogo/cmd/chatlogo/internal/config"
	"github.com/haivivi/chatlogo/pkg/artifact"
	"github.com/haivivi/chatlogo/pkg/auth"
	"github.com/haivivi/chatlogo/pkg/chat"
	"github.com/haivivi/chatlogo/pkg/chatstore"
	"github.com/haivivi/chatlogo/pkg/genx/generators"
	"github.com/haivivi/chatlogo/pkg/genx/modelloader"
	"github.com/haivivi/chatlogo/pkg/imagegen"
	"github.com/haivivi/chatlogo/pkg/kv"
	"github.com/haivivi/chatlogo/pkg/storage"
	"github.com/haivivi/chatlogo/pkg/stream"
)

func openKV(cfg *config.Config) (kv.Store, error) {
	switch cfg.KV.Driver {
	case "badger":
		return kv.NewBadger(kv.BadgerOptions{Dir: cfg.KV.Dir, Logger: logger})
	case "bolt":
		return kv.NewBolt(kv.BoltOptions{Path: filepath.Join(cfg.KV.Dir, "chatlogo.db")})
	case "memory":
		return kv.NewMemory(nil), nil
	default:
		return nil, fmt.Errorf("unknown kv driver %q", cfg.KV.Driver)
	}
}

func openBlobs(ctx context.Context, cfg *config.Config) (storage.FileStore, error) {
	switch cfg.Blob.Driver {
	case "local":
		return storage.NewLocal(cfg.Blob.Dir)
	case "s3":
		return storage.DialS3(ctx, cfg.Blob.S3)
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Blob.Driver)
	}
}

// loadModels registers every configured provider and fills in the helper
// models the service needs from the main chat model.
func loadModels(ctx context.Context, cfg *config.Config) (*generators.Mux, *modelloader.Loader, error) {
	mux := generators.NewMux()
	loader := &modelloader.Loader{Mux: mux, Verbose: cfg.Models.Verbose, Logger: logger}
	if cfg.Models.Dir != "" {
		names, err := loader.LoadFromDir(ctx, cfg.Models.Dir)
		if err != nil {
			return nil, nil, fmt.Errorf("load models: %w", err)
		}
		logger.Info("chatlogo: models loaded", "names", names)
	}
	if !mux.Has(chat.ModelChat) {
		logger.Warn("chatlogo: no chat-model configured, chat requests will fail")
		return mux, loader, nil
	}
	for _, name := range []string{chat.TitleModel, chat.ArtifactModel} {
		if !mux.Has(name) {
			if err := mux.Alias(name, chat.ModelChat); err != nil {
				return nil, nil, err
			}
		}
	}
	return mux, loader, nil
}

func imageClient(cfg *config.Config, loader *modelloader.Loader) imagegen.Client {
	switch cfg.Image.Provider {
	case "openai":
		return &imagegen.OpenAI{
			Client: loader.OpenAIClient(cfg.Image.APIKey, cfg.Image.BaseURL),
			Model:  cfg.Image.Model,
		}
	case "fake":
		return &imagegen.Fake{}
	default:
		return nil
	}
}

func newAuthenticator(cfg *config.Config) (*auth.JWT, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwtSecret is required")
	}
	var opts []auth.Option
	if cfg.Auth.Cookie != "" {
		opts = append(opts, auth.WithCookie(cfg.Auth.Cookie))
	}
	return auth.NewJWT([]byte(cfg.Auth.JWTSecret), opts...)
}

// app is the wired chat engine.
type app struct {
	kv  kv.Store
	svc *chat.Service
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	store, err := openKV(cfg)
	if err != nil {
		return nil, fmt.Errorf("open kv: %w", err)
	}
	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open blobs: %w", err)
	}
	mux, loader, err := loadModels(ctx, cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	var log stream.Log
	if cfg.Chat.IsResumable() {
		log = &stream.KVLog{Store: store, TTL: cfg.KV.StreamTTL.Or(config.DefaultStreamTTL)}
	}
	streams := stream.NewRegistry(store, log, stream.WithLogger(logger))

	artifacts := artifact.NewRegistry(artifact.Deps{
		Generator:    mux,
		Images:       imageClient(cfg, loader),
		Blobs:        blobs,
		ImageTimeout: cfg.Image.Timeout.Duration(),
		Logger:       logger,
	})
	logger.Info("chatlogo: artifact kinds", "kinds", artifacts.Kinds())

	svc := chat.New(cfg.Chat.ChatService(), chat.Deps{
		Store:     chatstore.New(store),
		Streams:   streams,
		Artifacts: artifacts,
		Generator: mux,
		Blobs:     blobs,
		Logger:    logger,
	})
	return &app{kv: store, svc: svc}, nil
}

func (a *app) Close() error {
	return a.kv.Close()
}

// openStore opens only the chat store, for read-only subcommands.
func openStore() (*chatstore.Store, func() error, error) {
	s, err := openKV(globalConfig)
	if err != nil {
		return nil, nil, err
	}
	return chatstore.New(s), s.Close, nil
}
