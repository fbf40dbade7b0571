package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haivivi/chatlogo/pkg/auth"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "chatlogo.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad(t *testing.T) {
	t.Setenv("CHATLOGO_TEST_SECRET", "s3cret")
	p := writeFile(t, `
server:
  shutdownTimeout: 5s
log:
  level: debug
kv:
  driver: bolt
  dir: /tmp/kv
  streamTTL: 2h
blob:
  driver: s3
  s3:
    bucket: uploads
    region: us-east-1
auth:
  jwtSecret: $CHATLOGO_TEST_SECRET
chat:
  maxSteps: 3
  freshnessWindow: 30s
  resumable: false
  quota:
    enabled: true
    maxPerDay:
      guest: 5
`)
	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Server.Addr != DefaultAddr || c.Server.ShutdownTimeout.Duration() != 5*time.Second {
		t.Fatalf("server = %+v", c.Server)
	}
	if c.KV.Driver != "bolt" || c.KV.StreamTTL.Duration() != 2*time.Hour {
		t.Fatalf("kv = %+v", c.KV)
	}
	if c.Blob.S3.Bucket != "uploads" || c.Auth.JWTSecret != "s3cret" {
		t.Fatalf("blob/auth = %+v %+v", c.Blob, c.Auth)
	}
	if lvl, _ := c.LogLevel(); lvl != slog.LevelDebug {
		t.Fatalf("level = %v", lvl)
	}
	if c.Chat.IsResumable() {
		t.Fatal("resumable: false ignored")
	}

	cc := c.Chat.ChatService()
	if cc.MaxSteps != 3 || cc.FreshnessWindow != 30*time.Second {
		t.Fatalf("chat = %+v", cc)
	}
	if !cc.Quota.Enabled || cc.Quota.MaxPerDay[auth.UserGuest] != 5 || cc.Quota.MaxPerDay[auth.UserRegular] != 100 {
		t.Fatalf("quota = %+v", cc.Quota)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown kv", "kv: {driver: redis}\nblob: {driver: local, dir: /b}", "kv.driver"},
		{"badger without dir", "kv: {driver: badger}\nblob: {driver: local, dir: /b}", "kv.dir"},
		{"s3 without bucket", "kv: {driver: memory}\nblob: {driver: s3}", "blob.s3.bucket"},
		{"openai without key", "kv: {driver: memory}\nblob: {driver: local, dir: /b}\nimage: {provider: openai}", "image.apiKey"},
		{"bad level", "kv: {driver: memory}\nblob: {driver: local, dir: /b}\nlog: {level: loud}", "log.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestDefault(t *testing.T) {
	c := Default("/data")
	if err := c.Validate(); err != nil {
		t.Fatalf("Default does not validate: %v", err)
	}
	if !c.Chat.IsResumable() {
		t.Fatal("default is not resumable")
	}
	if cc := c.Chat.ChatService(); cc.Quota.Enabled {
		t.Fatal("quota enabled by default")
	}
}

func TestLoggerFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "chatlogo.log")
	c := Default(t.TempDir())
	c.Log.File = p
	logger, closeFn, err := c.Logger()
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hello", "k", "v")
	if err := closeFn(); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(p)
	if err != nil || !strings.Contains(string(b), `"msg":"hello"`) {
		t.Fatalf("log file = %q, %v", b, err)
	}
}
