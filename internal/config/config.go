// Package config loads application configuration from defaults, an optional
// .env file, an optional YAML file and environment variables, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar overrides the YAML config file location.
const PathEnvVar = "CONFIG_PATH"

// DefaultPaths are searched in order when PathEnvVar is unset.
var DefaultPaths = []string{"config.yaml", "config.yml"}

// Config is the complete application configuration.
type Config struct {
	Spotify  SpotifyConfig  `koanf:"spotify"`
	Database DatabaseConfig `koanf:"database"`
	Server   ServerConfig   `koanf:"server"`
	Logging  LoggingConfig  `koanf:"logging"`
}

// SpotifyConfig holds the OAuth client registration.
type SpotifyConfig struct {
	ClientID     string `koanf:"client_id" validate:"required"`
	ClientSecret string `koanf:"client_secret" validate:"required"`
	RedirectURI  string `koanf:"redirect_uri" validate:"required,url"`
	Scope        string `koanf:"scope" validate:"required"`
}

// Scopes splits Scope on whitespace.
func (c SpotifyConfig) Scopes() []string {
	return strings.Fields(c.Scope)
}

// DatabaseConfig selects the storage backend. An empty URL selects the
// in-memory stores.
type DatabaseConfig struct {
	URL string `koanf:"url" validate:"omitempty,url"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr              string        `koanf:"addr" validate:"required,hostname_port"`
	SessionTTL        time.Duration `koanf:"session_ttl" validate:"gt=0"`
	CookieSecure      bool          `koanf:"cookie_secure"`
	PipelineRateLimit int           `koanf:"pipeline_rate_limit" validate:"gte=0"`
}

// LoggingConfig mirrors logging.Config.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn warning error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Defaults returns the built-in configuration. The Spotify credentials are
// placeholders that let the server start without a registered app.
func Defaults() *Config {
	return &Config{
		Spotify: SpotifyConfig{
			ClientID:     "your_client_id_here",
			ClientSecret: "your_client_secret_here",
			RedirectURI:  "http://127.0.0.1:8000/callback/",
			Scope:        "user-read-recently-played user-top-read user-read-email user-read-private",
		},
		Server: ServerConfig{
			Addr:              "127.0.0.1:8000",
			SessionTTL:        24 * time.Hour,
			CookieSecure:      false,
			PipelineRateLimit: 30,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

var envMappings = map[string]string{
	"spotify_client_id":     "spotify.client_id",
	"spotify_client_secret": "spotify.client_secret",
	"spotify_redirect_uri":  "spotify.redirect_uri",
	"spotify_scope":         "spotify.scope",
	"database_url":          "database.url",
	"http_addr":             "server.addr",
	"session_ttl":           "server.session_ttl",
	"cookie_secure":         "server.cookie_secure",
	"pipeline_rate_limit":   "server.pipeline_rate_limit",
	"log_level":             "logging.level",
	"log_format":            "logging.format",
}

// envTransform maps recognized environment variables onto koanf keys.
// Unrecognized variables map to "" and are skipped.
func envTransform(key string) string {
	return envMappings[strings.ToLower(key)]
}

// Load builds the configuration. A missing .env or YAML file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path := findFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New()

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

func findFile() string {
	if path := os.Getenv(PathEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	for _, path := range DefaultPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}
