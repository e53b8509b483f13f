// Package config provides centralized configuration management.
// Every tunable of the auditorium server is defined here with its default;
// the environment (and an optional .env file loaded by the binary) overrides it.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"auditorium/internal/seating"
)

// =============================================================================
// SERVER CONFIGURATION
// =============================================================================

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port        int    `env:"PORT"`
	MaxSessions int    `env:"MAX_SESSIONS"`
	StaticDir   string `env:"AUDITORIUM_STATIC_DIR"`
	// CORSOrigins empty means localhost only
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:","`
}

// DefaultServer returns the default server configuration.
func DefaultServer() ServerConfig {
	return ServerConfig{
		Port:        3000,
		MaxSessions: 500,
		StaticDir:   "./web",
	}
}

// ServerFromEnv returns server configuration with environment variable overrides.
func ServerFromEnv() (ServerConfig, error) {
	cfg := DefaultServer()
	if err := parseEnv(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return cfg, fmt.Errorf("config: invalid PORT %d", cfg.Port)
	}
	return cfg, nil
}

// =============================================================================
// SCENE CONFIGURATION
// =============================================================================

// SceneConfig holds per-session scene settings.
type SceneConfig struct {
	FPS     int           `env:"SCENE_FPS"`
	ChatTTL time.Duration `env:"CHAT_TTL"`

	// Presentation start, local time of day DaysAhead days from session entry
	PresentationHour   int `env:"PRESENTATION_HOUR"`
	PresentationMinute int `env:"PRESENTATION_MINUTE"`
	PresentationSecond int `env:"PRESENTATION_SECOND"`
	DaysAhead          int `env:"PRESENTATION_DAYS_AHEAD"`

	VideoURL      string `env:"AUDITORIUM_VIDEO_URL"`
	AuditoriumURL string `env:"AUDITORIUM_MODEL_URL"`

	// Placeholder PNG size
	ScreenWidth  int `env:"SCREEN_WIDTH"`
	ScreenHeight int `env:"SCREEN_HEIGHT"`
}

// DefaultScene returns the default scene configuration.
func DefaultScene() SceneConfig {
	return SceneConfig{
		FPS:              30,
		ChatTTL:          5 * time.Second,
		PresentationHour: 11,
		DaysAhead:        1,
		VideoURL:         "/video.mp4",
		AuditoriumURL:    "/scene/auditorium.glb",
		ScreenWidth:      320,
		ScreenHeight:     180,
	}
}

// SceneFromEnv returns scene configuration with environment variable overrides.
func SceneFromEnv() (SceneConfig, error) {
	cfg := DefaultScene()
	if err := parseEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// Validate rejects values no scene can run with.
func (c SceneConfig) Validate() error {
	switch {
	case c.FPS <= 0 || c.FPS > 120:
		return fmt.Errorf("config: SCENE_FPS must be in 1..120, got %d", c.FPS)
	case c.ChatTTL <= 0:
		return fmt.Errorf("config: CHAT_TTL must be positive, got %s", c.ChatTTL)
	case c.PresentationHour < 0 || c.PresentationHour > 23:
		return fmt.Errorf("config: PRESENTATION_HOUR must be in 0..23, got %d", c.PresentationHour)
	case c.PresentationMinute < 0 || c.PresentationMinute > 59:
		return fmt.Errorf("config: PRESENTATION_MINUTE must be in 0..59, got %d", c.PresentationMinute)
	case c.PresentationSecond < 0 || c.PresentationSecond > 59:
		return fmt.Errorf("config: PRESENTATION_SECOND must be in 0..59, got %d", c.PresentationSecond)
	case c.DaysAhead < 0:
		return fmt.Errorf("config: PRESENTATION_DAYS_AHEAD must not be negative, got %d", c.DaysAhead)
	case c.VideoURL == "":
		return fmt.Errorf("config: AUDITORIUM_VIDEO_URL must not be empty")
	}
	return nil
}

// =============================================================================
// ASSETS & EVENT LOG
// =============================================================================

// AssetsConfig holds model loading settings.
type AssetsConfig struct {
	Manifest  string `env:"ASSET_MANIFEST"` // path or URL; empty uses the built-in manifest
	CacheSize int    `env:"ASSET_CACHE_SIZE"`
	Layout    string `env:"AUDITORIUM_LAYOUT"` // optional YAML seats and catalogs
}

// DefaultAssets returns the default asset configuration.
func DefaultAssets() AssetsConfig {
	return AssetsConfig{CacheSize: 64}
}

// EventLogConfig holds the scene event log destination.
type EventLogConfig struct {
	Path string `env:"EVENT_LOG_PATH"` // empty counts events without writing them
}

// =============================================================================
// OBSERVABILITY
// =============================================================================

// ObservabilityConfig configures the localhost debug server.
type ObservabilityConfig struct {
	Enabled       bool   `env:"DEBUG_SERVER"`
	ListenAddr    string `env:"DEBUG_ADDR"`
	BasicAuthUser string `env:"DEBUG_USER"`
	BasicAuthPass string `env:"DEBUG_PASS"`
}

// DefaultObservability returns safe defaults.
func DefaultObservability() ObservabilityConfig {
	return ObservabilityConfig{
		Enabled:    true,
		ListenAddr: "127.0.0.1:6060",
	}
}

// =============================================================================
// LAYOUT FILE
// =============================================================================

// Layout overrides the canonical seats and avatar catalogs.
type Layout struct {
	Seats      []seating.Slot             `yaml:"seats"`
	Guests     []seating.AvatarID         `yaml:"guests"`
	Selectable []seating.SelectableAvatar `yaml:"selectable"`
}

// DefaultLayout is the canonical auditorium.
func DefaultLayout() Layout {
	return Layout{
		Seats:      seating.DefaultSlots(),
		Guests:     seating.DefaultCatalog(),
		Selectable: seating.DefaultSelectable(),
	}
}

// ParseLayout decodes a YAML layout. Sections left out keep their defaults.
func ParseLayout(data []byte) (Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return Layout{}, fmt.Errorf("parse layout: %w", err)
	}

	def := DefaultLayout()
	if len(l.Seats) == 0 {
		l.Seats = def.Seats
	}
	if l.Guests == nil {
		l.Guests = def.Guests
	}
	if len(l.Selectable) == 0 {
		l.Selectable = def.Selectable
	}

	seen := make(map[int]bool, len(l.Seats))
	for _, s := range l.Seats {
		if seen[s.Index] {
			return Layout{}, fmt.Errorf("parse layout: duplicate seat %d", s.Index)
		}
		seen[s.Index] = true
	}
	for _, a := range l.Selectable {
		if a.ID == "" {
			return Layout{}, fmt.Errorf("parse layout: selectable avatar %q has no id", a.Name)
		}
	}
	return l, nil
}

// LoadLayout reads path, or returns DefaultLayout when path is empty.
func LoadLayout(path string) (Layout, error) {
	if path == "" {
		return DefaultLayout(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, fmt.Errorf("read layout: %w", err)
	}
	return ParseLayout(data)
}

// =============================================================================
// COMPLETE APP CONFIGURATION
// =============================================================================

// AppConfig holds the complete application configuration.
type AppConfig struct {
	Server        ServerConfig
	Scene         SceneConfig
	Assets        AssetsConfig
	EventLog      EventLogConfig
	Observability ObservabilityConfig
	Layout        Layout
}

// Load returns the complete configuration with environment overrides.
func Load() (AppConfig, error) {
	var cfg AppConfig
	var err error

	if cfg.Server, err = ServerFromEnv(); err != nil {
		return cfg, err
	}
	if cfg.Scene, err = SceneFromEnv(); err != nil {
		return cfg, err
	}

	cfg.Assets = DefaultAssets()
	cfg.Observability = DefaultObservability()
	for _, target := range []any{&cfg.Assets, &cfg.EventLog, &cfg.Observability} {
		if err := parseEnv(target); err != nil {
			return cfg, err
		}
	}

	if cfg.Layout, err = LoadLayout(cfg.Assets.Layout); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// parseEnv overlays environment variables onto target's current values.
func parseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
