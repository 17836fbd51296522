package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/mdxengine/internal/models"
	"github.com/starford/mdxengine/internal/render"
	"github.com/starford/mdxengine/internal/sandbox"
	"github.com/starford/mdxengine/internal/watcher"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App     ApplicationConfig `yaml:"app"`
	Engine  EngineConfig      `yaml:"engine"`
	Limits  render.Limits     `yaml:"limits"`
	Cache   CacheConfig       `yaml:"cache"`
	Content ContentConfig     `yaml:"content"`
	Auth    AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Engine.Validate(); err != nil {
		return err
	}
	if err := validation.ValidateStruct(&c.Limits,
		validation.Field(&c.Limits.MaxDocuments, validation.Min(1)),
		validation.Field(&c.Limits.MaxDocumentBytes, validation.Min(1)),
		validation.Field(&c.Limits.MaxComponentBytes, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("limits: %w", err)
	}
	if err := c.Content.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// EngineConfig sizes the script context pool and its fault handling.
type EngineConfig struct {
	PoolSize       int           `yaml:"pool_size"`
	WarmContexts   int           `yaml:"warm_contexts"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout"`
	ExecTimeout    time.Duration `yaml:"exec_timeout"`
	MaxCallStack   int           `yaml:"max_call_stack"`
	MaxDepth       int           `yaml:"max_depth"`
	Retry          RetryConfig   `yaml:"retry"`
}

// RetryConfig controls retries after fatal context faults.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
}

// Policy converts the config to a sandbox retry policy.
func (c RetryConfig) Policy() sandbox.RetryPolicy {
	return sandbox.RetryPolicy{
		MaxAttempts:     c.MaxAttempts,
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
	}
}

// Validate validates the engine configuration.
func (c *EngineConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.PoolSize, validation.Required, validation.Min(1), validation.Max(256)),
		validation.Field(&c.WarmContexts, validation.Min(0), validation.Max(c.PoolSize)),
		validation.Field(&c.AcquireTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.ExecTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxCallStack, validation.Min(0)),
		validation.Field(&c.MaxDepth, validation.Min(0)),
	); err != nil {
		return fmt.Errorf("engine: %w", err)
	}
	if err := validation.ValidateStruct(&c.Retry,
		validation.Field(&c.Retry.MaxAttempts, validation.Required, validation.Min(1), validation.Max(10)),
		validation.Field(&c.Retry.InitialInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.Retry.MaxInterval, validation.Min(c.Retry.InitialInterval)),
	); err != nil {
		return fmt.Errorf("engine retry: %w", err)
	}
	return nil
}

// CacheConfig holds compile cache configuration.
//
// Warm keeps compiled component programs across batches. Path, when set,
// persists render state in SQLite, and JSX transform output too when Warm
// is on.
type CacheConfig struct {
	Warm bool   `yaml:"warm"`
	Path string `yaml:"path"`
}

// ContentConfig describes the directories served by the watcher and the
// render command.
type ContentConfig struct {
	Documents  string          `yaml:"documents"`
	Components string          `yaml:"components"`
	Output     string          `yaml:"output"`
	UtilsFile  string          `yaml:"utils_file"`
	Watch      bool            `yaml:"watch"`
	Settings   models.Settings `yaml:"settings"`
}

// Enabled reports whether a content directory is configured.
func (c *ContentConfig) Enabled() bool {
	return c.Documents != ""
}

// Validate validates the content configuration.
func (c *ContentConfig) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Output, validation.Required),
	); err != nil {
		return fmt.Errorf("content: %w", err)
	}
	return validation.ValidateStruct(&c.Settings,
		validation.Field(&c.Settings.Output, validation.In(
			models.OutputHTML, models.OutputJavaScript, models.OutputSchema, models.OutputJSON)),
		validation.Field(&c.Settings.Engine, validation.In(models.EngineBase, models.EngineCustom)),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode"`
	Token string `yaml:"token"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Engine: EngineConfig{
			PoolSize:       render.DefaultPoolSize,
			WarmContexts:   render.DefaultPoolSize,
			AcquireTimeout: 30 * time.Second,
			ExecTimeout:    5 * time.Second,
			MaxCallStack:   2048,
			Retry: RetryConfig{
				MaxAttempts:     3,
				InitialInterval: 50 * time.Millisecond,
				MaxInterval:     time.Second,
			},
		},
		Limits: render.DefaultLimits,
		Cache: CacheConfig{
			Warm: true,
			Path: "./mdxengine.db",
		},
		Content: ContentConfig{
			Output:    "./public",
			UtilsFile: watcher.DefaultUtilsFile,
			Watch:     true,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
