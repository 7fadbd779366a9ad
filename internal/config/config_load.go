package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/titanous/json5"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Telegram: TelegramConfig{
			PollTimeoutSec: 30,
			Workers:        8,
			SendRatePerSec: 25,
			SendBurst:      5,
		},
		DataAPI: DataAPIConfig{
			TimeoutSec: 5,
		},
		Interactions: InteractionsConfig{
			ReplyContextTTLMin: 60,
			TweakSessionTTLMin: 60,
			ToolRefreshMin:     5,
		},
		Link: LinkConfig{
			DefaultChainID: "11155111",
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "musebot",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file is not an error; defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
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
	envStr("MUSEBOT_TELEGRAM_TOKEN", &c.Telegram.Token)
	envStr("MUSEBOT_DATA_API_URL", &c.DataAPI.BaseURL)
	envStr("MUSEBOT_DATA_API_KEY", &c.DataAPI.ClientKey)
	envStr("MUSEBOT_EXECUTION_NOTIFY_URL", &c.Execution.NotifyURL)

	if v := os.Getenv("MUSEBOT_DATA_API_TIMEOUT_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.DataAPI.TimeoutSec = sec
		}
	}
	if v := os.Getenv("MUSEBOT_TELEGRAM_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Telegram.Workers = n
		}
	}

	// Telemetry
	envStr("MUSEBOT_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("MUSEBOT_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("MUSEBOT_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("MUSEBOT_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("MUSEBOT_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ApplyEnvOverrides re-applies environment variable overrides onto the config.
// Call after modifying config to restore runtime secrets from env vars.
func (c *Config) ApplyEnvOverrides() {
	c.applyEnvOverrides()
}

// Save writes the config to a JSON file.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Hash returns a short SHA-256 hash of the config, used by the watcher to
// skip reloads that change nothing.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:8])
}

// ReplyContextTTL returns the reply context TTL as a duration.
func (c *Config) ReplyContextTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Interactions.ReplyContextTTLMin <= 0 {
		return time.Hour
	}
	return time.Duration(c.Interactions.ReplyContextTTLMin) * time.Minute
}

// TweakSessionTTL returns the tweak session TTL as a duration.
func (c *Config) TweakSessionTTL() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Interactions.TweakSessionTTLMin <= 0 {
		return time.Hour
	}
	return time.Duration(c.Interactions.TweakSessionTTLMin) * time.Minute
}

// ToolRefreshInterval returns the tool registry refresh interval.
func (c *Config) ToolRefreshInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Interactions.ToolRefreshMin <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.Interactions.ToolRefreshMin) * time.Minute
}

// ExpandHome replaces leading ~ with the user home directory.
func ExpandHome(path string) string {
	if path == "" || path[0] != '~' {
		return path
	}
	home, _ := os.UserHomeDir()
	if len(path) > 1 && path[1] == '/' {
		return home + path[1:]
	}
	return home
}
