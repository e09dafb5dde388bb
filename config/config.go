// Package config provides shared configuration loading for the catalog server.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/tailscale/hujson"
)

// Environment variables that override values from the config file.
const (
	EnvAPIKey      = "POKEMONTCG_API_KEY"
	EnvDataPath    = "POKEMON_DATA_PATH"
	EnvDatabaseURL = "DATABASE_URL"
	EnvListen      = "CATALOG_LISTEN"
)

// DefaultTCGAPIBaseURL is the upstream card-data API.
const DefaultTCGAPIBaseURL = "https://api.pokemontcg.io/v2"

// DefaultOIDCCallback is the callback path used when oidc.callback is unset.
const DefaultOIDCCallback = "/oidc/callback"

// TCGAPIConfig configures the passthrough client for the upstream card API.
type TCGAPIConfig struct {
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	RetryMax       int    `json:"retry_max"`
}

// Timeout returns the per-request timeout.
func (c TCGAPIConfig) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// DatabaseConfig configures the collection datastore.
// Driver is "postgres" or "sqlite".
type DatabaseConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// IsEnabled returns true if a collection database is configured.
func (d DatabaseConfig) IsEnabled() bool {
	return d.DSN != ""
}

// OIDCConfig holds the OpenID Connect settings used to identify collection owners.
type OIDCConfig struct {
	ServiceURL   string `json:"service_url"`
	Callback     string `json:"callback"`
	ConfigURL    string `json:"config_url"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// IsValid returns true if all required OIDC fields are set.
func (o *OIDCConfig) IsValid() bool {
	return o != nil && o.ServiceURL != "" && o.ConfigURL != "" && o.ClientID != "" && o.ClientSecret != ""
}

// GotifyConfig holds Gotify notification settings.
type GotifyConfig struct {
	Enabled  bool   `json:"enabled"`
	Hostname string `json:"hostname"`
	Token    string `json:"token"`
}

// IsValid returns true if Gotify is enabled and has the fields needed to send.
func (g *GotifyConfig) IsValid() bool {
	return g != nil && g.Enabled && g.Hostname != "" && g.Token != ""
}

// Config represents the complete catalog configuration.
type Config struct {
	Listen   string         `json:"listen"`
	DataPath string         `json:"data_path"`
	LogLevel string         `json:"log_level"`
	TCGAPI   TCGAPIConfig   `json:"tcg_api"`
	Database DatabaseConfig `json:"database"`
	OIDC     *OIDCConfig    `json:"oidc,omitempty"`
	Gotify   *GotifyConfig  `json:"gotify,omitempty"`
}

// applyDefaults fills unset fields.
func (c *Config) applyDefaults() {
	if c.Listen == "" {
		c.Listen = ":9001"
	}
	if c.DataPath == "" {
		c.DataPath = "data"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.TCGAPI.BaseURL == "" {
		c.TCGAPI.BaseURL = DefaultTCGAPIBaseURL
	}
	if c.TCGAPI.RetryMax == 0 {
		c.TCGAPI.RetryMax = 3
	}
	if c.Database.DSN != "" && c.Database.Driver == "" {
		c.Database.Driver = guessDriver(c.Database.DSN)
	}
	if c.OIDC != nil && c.OIDC.Callback == "" {
		c.OIDC.Callback = DefaultOIDCCallback
	}
}

// guessDriver picks a driver from the shape of a DSN.
func guessDriver(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// ApplyEnv overrides config values with any environment variables that are set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIKey); v != "" {
		c.TCGAPI.APIKey = v
	}
	if v := os.Getenv(EnvDataPath); v != "" {
		c.DataPath = v
	}
	if v := os.Getenv(EnvListen); v != "" {
		c.Listen = v
	}
	if v := os.Getenv(EnvDatabaseURL); v != "" {
		c.Database.DSN = v
		c.Database.Driver = guessDriver(v)
	}
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	if c.DataPath == "" {
		return errors.New("data_path is required")
	}
	if c.Database.IsEnabled() {
		switch c.Database.Driver {
		case "postgres", "sqlite":
		default:
			return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
		}
	}
	if c.OIDC != nil && !c.OIDC.IsValid() {
		return errors.New("oidc requires service_url, config_url, client_id and client_secret")
	}
	return nil
}

// Global configuration instance
var (
	globalConfig *Config
	configMutex  sync.RWMutex
)

// Load reads and parses the configuration file.
// Supports JSON with comments (//, /* */) and trailing commas.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	// Sanitize JSON: strip comments and trailing commas
	data, err = standardizeJSON(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	set(&cfg)
	return &cfg, nil
}

// LoadEnv loads KEY=VALUE pairs from the given .env files into the process
// environment. Missing files are ignored; variables already set win.
func LoadEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// standardizeJSON strips comments and trailing commas from JSON.
func standardizeJSON(b []byte) ([]byte, error) {
	ast, err := hujson.Parse(b)
	if err != nil {
		return nil, err
	}
	ast.Standardize()
	return ast.Pack(), nil
}

func set(cfg *Config) {
	configMutex.Lock()
	globalConfig = cfg
	configMutex.Unlock()
}

// Get returns the currently loaded global configuration.
func Get() *Config {
	configMutex.RLock()
	defer configMutex.RUnlock()
	return globalConfig
}

// Default returns a default configuration for when no config file exists.
// It also stores the default as the global configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()

	set(cfg)
	return cfg
}
