package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/starford/mdxengine/internal/cache"
	"github.com/starford/mdxengine/internal/models"
	"github.com/starford/mdxengine/internal/watcher"
)

func TestAuthConfig_DisabledMode(t *testing.T) {
	cfg := AuthConfig{Mode: "disabled", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("disabled mode should pass: %v", err)
	}
	if cfg.AuthEnabled() {
		t.Error("disabled mode should not be enabled")
	}
}

func TestAuthConfig_EmptyModeDefaultsDisabled(t *testing.T) {
	cfg := AuthConfig{Mode: "", Token: ""}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty mode should default to disabled: %v", err)
	}
	if cfg.Mode != AuthModeDisabled {
		t.Errorf("mode = %q, want %q", cfg.Mode, AuthModeDisabled)
	}
}

func TestAuthConfig_TokenModeValid(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: "mysecret"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("token mode with token should pass: %v", err)
	}
	if !cfg.AuthEnabled() {
		t.Error("token mode should be enabled")
	}
}

func TestAuthConfig_TokenModeEmptyToken(t *testing.T) {
	cfg := AuthConfig{Mode: "token", Token: ""}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("token mode with empty token should fail")
	}
	if !strings.Contains(err.Error(), "token is empty") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestAuthConfig_InvalidMode(t *testing.T) {
	cfg := AuthConfig{Mode: "magic", Token: "x"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("invalid mode should fail validation")
	}
}

func TestFullConfig_DefaultsValid(t *testing.T) {
	if err := NewDefaultConfig().Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestFullConfig_AuthValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Auth.Mode = "token"
	cfg.Auth.Token = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch auth error")
	}
}

func TestEngineConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*EngineConfig)
		ok     bool
	}{
		{"defaults", func(*EngineConfig) {}, true},
		{"zero pool", func(c *EngineConfig) { c.PoolSize = 0 }, false},
		{"warm above pool", func(c *EngineConfig) { c.WarmContexts = c.PoolSize + 1 }, false},
		{"negative timeout", func(c *EngineConfig) { c.ExecTimeout = -time.Second }, false},
		{"zero attempts", func(c *EngineConfig) { c.Retry.MaxAttempts = 0 }, false},
		{"max below initial", func(c *EngineConfig) { c.Retry.MaxInterval = time.Millisecond }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig().Engine
			tt.mutate(&cfg)
			if err := cfg.Validate(); (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestContentConfig_Validate(t *testing.T) {
	c := ContentConfig{}
	if err := c.Validate(); err != nil {
		t.Fatalf("disabled content should pass: %v", err)
	}
	c = ContentConfig{Documents: "docs", Output: "out", Settings: models.Settings{Output: "pdf"}}
	if err := c.Validate(); err == nil {
		t.Error("unknown output should fail")
	}
	c.Settings.Output = models.OutputJSON
	if err := c.Validate(); err != nil {
		t.Errorf("valid content failed: %v", err)
	}
	c.Output = ""
	if err := c.Validate(); err == nil {
		t.Error("missing output dir should fail")
	}
}

func TestBuild(t *testing.T) {
	root := t.TempDir()
	docs := filepath.Join(root, "docs")
	comps := filepath.Join(root, "components")
	for _, dir := range []string{docs, comps} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(docs, "a.mdx"), []byte("<Hi/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(comps, "Hi.jsx"),
		[]byte(`export default function Hi() { return <em>hi</em>; }`), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefaultConfig()
	cfg.Engine.WarmContexts = 1
	cfg.Cache.Path = filepath.Join(root, "cache.db")
	cfg.Content.Documents = docs
	cfg.Content.Components = comps
	cfg.Content.Output = filepath.Join(root, "public")

	var out bytes.Buffer
	report, err := Build(context.Background(), WithConfig(cfg), WithOutput(&out), WithLogOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if report.Rendered != 1 {
		t.Errorf("report = %+v", report)
	}
	var printed watcher.Report
	if err := json.Unmarshal(out.Bytes(), &printed); err != nil || printed != *report {
		t.Errorf("printed report = %q (%v)", out.String(), err)
	}
	data, err := os.ReadFile(filepath.Join(root, "public", "a.html"))
	if err != nil || string(data) != "<em>hi</em>" {
		t.Errorf("a.html = %q, %v", data, err)
	}

	// The second run finds the render state in the cache and skips.
	report, err = Build(context.Background(), WithConfig(cfg), WithOutput(&bytes.Buffer{}), WithLogOutput(&bytes.Buffer{}))
	if err != nil {
		t.Fatal(err)
	}
	if report.Skipped != 1 || report.Rendered != 0 {
		t.Errorf("second report = %+v", report)
	}
}

func TestBuild_RequiresDocuments(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Cache.Path = ""
	if _, err := Build(context.Background(), WithConfig(cfg), WithLogOutput(&bytes.Buffer{})); err == nil {
		t.Error("expected error without documents dir")
	}
	if _, err := Build(context.Background()); err == nil {
		t.Error("expected error without config")
	}
}

func TestNewEngine_TransformStoreFollowsWarmCache(t *testing.T) {
	for _, warm := range []bool{false, true} {
		db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(func() { db.Close() })

		cfg := NewDefaultConfig()
		cfg.Engine.WarmContexts = 0
		cfg.Cache.Warm = warm
		engine, err := newEngine(context.Background(), cfg, db, slog.New(slog.NewTextHandler(io.Discard, nil)))
		if err != nil {
			t.Fatal(err)
		}
		t.Cleanup(engine.Close)

		res, err := engine.Render(context.Background(), &models.Request{
			Documents: models.NewDocuments("a.mdx", "<Badge>x</Badge>"),
		})
		if err != nil || res.Succeeded != 1 {
			t.Fatalf("warm=%v: Render = %+v, %v", warm, res, err)
		}
		st, err := db.Stats(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if want := map[bool]int{false: 0, true: 1}[warm]; st.Entries != want {
			t.Errorf("warm=%v: stored transforms = %d, want %d", warm, st.Entries, want)
		}
	}
}
