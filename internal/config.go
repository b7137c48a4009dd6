package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Site     SiteConfig        `yaml:"site"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
	Terminal TerminalConfig    `yaml:"terminal"`
	Progress ProgressConfig    `yaml:"progress"`
	Cache    CacheConfig       `yaml:"cache"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{&c.App, &c.Site, &c.SQLite, &c.Auth, &c.Terminal, &c.Progress, &c.Cache} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
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

// SiteConfig locates the static site holding scenario definitions and
// evidence. When BaseURL is set, resources are fetched over HTTP instead of
// read from Root.
type SiteConfig struct {
	Root      string `yaml:"root"`
	BaseURL   string `yaml:"base_url"`
	Downloads string `yaml:"downloads"`
}

// Validate validates the site configuration.
func (c *SiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Root, validation.Required),
		validation.Field(&c.BaseURL, is.URL),
		validation.Field(&c.Downloads, validation.Required),
	)
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
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
	// Normalise empty mode to "disabled" for backward compatibility.
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

// TerminalConfig tunes sessions and challenge loading.
type TerminalConfig struct {
	HistoryLimit    int           `yaml:"history_limit"`
	ReadyTimeout    time.Duration `yaml:"ready_timeout"`
	CompletionDelay time.Duration `yaml:"completion_delay"`
	MaxSessions     int           `yaml:"max_sessions"`
}

// Validate validates the terminal configuration.
func (c *TerminalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.HistoryLimit, validation.Min(1)),
		validation.Field(&c.ReadyTimeout, validation.Min(time.Duration(0))),
		validation.Field(&c.CompletionDelay, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxSessions, validation.Required, validation.Min(1)),
	)
}

// ProgressConfig controls learner progress persistence and broadcasting.
type ProgressConfig struct {
	AutosaveInterval  time.Duration `yaml:"autosave_interval"`
	BroadcastThrottle time.Duration `yaml:"broadcast_throttle"`
}

// Validate validates the progress configuration.
func (c *ProgressConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.AutosaveInterval, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.BroadcastThrottle, validation.Min(time.Duration(0))),
	)
}

// CacheConfig sizes the fetched-resource cache. Zero disables it.
type CacheConfig struct {
	Size int `yaml:"size"`
}

// Validate validates the cache configuration.
func (c *CacheConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Size, validation.Min(0)),
	)
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
		Site: SiteConfig{
			Root:      "./site",
			Downloads: "./downloads",
		},
		SQLite: SQLiteConfig{
			Path: "./codebook.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Terminal: TerminalConfig{
			HistoryLimit:    100,
			ReadyTimeout:    5 * time.Second,
			CompletionDelay: time.Second,
			MaxSessions:     256,
		},
		Progress: ProgressConfig{
			AutosaveInterval:  30 * time.Second,
			BroadcastThrottle: 2 * time.Second,
		},
		Cache: CacheConfig{
			Size: 128,
		},
	}
}
