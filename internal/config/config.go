// Package config loads linerelay configuration from an optional JSON5 file
// overlaid with environment variables. Secrets are env-only and never read
// from (or written to) the config file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/titanous/json5"
)

// Config is the root configuration for linerelay.
type Config struct {
	Line    LineConfig    `json:"line"`
	Backend BackendConfig `json:"backend"`
	Server  ServerConfig  `json:"server"`
	Store   StoreConfig   `json:"store"`
}

// LineConfig configures the LINE Messaging API side.
// ChannelAccessToken and ChannelSecret come from env only (secrets).
type LineConfig struct {
	ChannelAccessToken string `json:"-"` // env LINE_CHANNEL_ACCESS_TOKEN
	ChannelSecret      string `json:"-"` // env LINE_CHANNEL_SECRET
	DestinationUserID  string `json:"destination_user_id,omitempty"`
	APIBase            string `json:"api_base,omitempty"` // override for tests/proxies
}

// BackendConfig configures the generative-language backend.
type BackendConfig struct {
	APIKey         string `json:"-"` // env GOOGLE_API_KEY
	Model          string `json:"model,omitempty"`
	APIBase        string `json:"api_base,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// ServerConfig configures the webhook HTTP listener.
type ServerConfig struct {
	Host         string `json:"host,omitempty"`
	Port         int    `json:"port,omitempty"`
	WebhookPath  string `json:"webhook_path,omitempty"`
	RateLimitRPM int    `json:"rate_limit_rpm,omitempty"`
}

// StoreConfig configures the embedded sqlite store.
type StoreConfig struct {
	Path string `json:"path,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Line: LineConfig{
			APIBase: "https://api.line.me",
		},
		Backend: BackendConfig{
			Model:          "gemini-2.0-flash",
			APIBase:        "https://generativelanguage.googleapis.com",
			TimeoutSeconds: 30,
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8000,
			WebhookPath:  "/webhook",
			RateLimitRPM: 60,
		},
		Store: StoreConfig{
			Path: "linerelay.sqlite3",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; env vars alone are a valid configuration.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	envStr("LINE_CHANNEL_ACCESS_TOKEN", &c.Line.ChannelAccessToken)
	envStr("LINE_CHANNEL_SECRET", &c.Line.ChannelSecret)
	envStr("DESTINATION_USER_ID", &c.Line.DestinationUserID)
	envStr("GOOGLE_API_KEY", &c.Backend.APIKey)

	envStr("LINERELAY_MODEL", &c.Backend.Model)
	envStr("LINERELAY_BACKEND_API_BASE", &c.Backend.APIBase)
	envInt("LINERELAY_BACKEND_TIMEOUT", &c.Backend.TimeoutSeconds)
	envStr("LINERELAY_HOST", &c.Server.Host)
	envInt("LINERELAY_PORT", &c.Server.Port)
	envStr("LINERELAY_STORE_PATH", &c.Store.Path)
}

// Validate checks that all required values are present.
// Absence of any is a fatal startup condition, not a per-request error.
func (c *Config) Validate() error {
	var missing []string
	if c.Line.ChannelAccessToken == "" {
		missing = append(missing, "LINE_CHANNEL_ACCESS_TOKEN")
	}
	if c.Line.ChannelSecret == "" {
		missing = append(missing, "LINE_CHANNEL_SECRET")
	}
	if c.Line.DestinationUserID == "" {
		missing = append(missing, "DESTINATION_USER_ID")
	}
	if c.Backend.APIKey == "" {
		missing = append(missing, "GOOGLE_API_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
