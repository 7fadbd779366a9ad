package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
)

// Config is the root configuration for the musebot process.
type Config struct {
	Telegram     TelegramConfig     `json:"telegram"`
	DataAPI      DataAPIConfig      `json:"data_api"`
	Execution    ExecutionConfig    `json:"execution"`
	Interactions InteractionsConfig `json:"interactions,omitempty"`
	Link         LinkConfig         `json:"link,omitempty"`
	Telemetry    TelemetryConfig    `json:"telemetry,omitempty"`
	mu           sync.RWMutex
}

// TelegramConfig configures the Telegram transport.
type TelegramConfig struct {
	Token          string  `json:"token"`
	PollTimeoutSec int     `json:"poll_timeout_sec,omitempty"` // long-poll timeout (default 30)
	Workers        int     `json:"workers,omitempty"`          // update worker pool size (default 8)
	SendRatePerSec float64 `json:"send_rate_per_sec,omitempty"` // outbound Bot API budget (default 25)
	SendBurst      int     `json:"send_burst,omitempty"`       // limiter burst (default 5)
	LinkPreview    *bool   `json:"link_preview,omitempty"`     // URL previews in text messages (default false)
}

// DataAPIConfig configures the internal data API client.
// ClientKey is the per-platform service key sent as X-Internal-Client-Key.
type DataAPIConfig struct {
	BaseURL    string `json:"base_url"`
	ClientKey  string `json:"client_key"`
	TimeoutSec int    `json:"timeout_sec,omitempty"` // per-request timeout (default 5)
}

// ExecutionConfig configures the generation execution collaborators.
type ExecutionConfig struct {
	NotifyURL string `json:"notify_url"` // ws(s):// completion event stream

	// LegacyWorkflowIDs keeps the comfy- prefix stripping fallback for records
	// that predate deploymentId. Disable once all records carry deploymentId.
	LegacyWorkflowIDs *bool `json:"legacy_workflow_ids,omitempty"` // default true
}

// InteractionsConfig tunes the in-memory interaction state.
type InteractionsConfig struct {
	ReplyContextTTLMin int `json:"reply_context_ttl_min,omitempty"` // default 60
	TweakSessionTTLMin int `json:"tweak_session_ttl_min,omitempty"` // default 60
	ToolRefreshMin     int `json:"tool_refresh_min,omitempty"`      // tool registry refresh interval (default 5)
}

// LinkConfig configures the wallet magic-amount link flow.
type LinkConfig struct {
	DefaultChainID      string            `json:"default_chain_id,omitempty"`     // default "11155111" (Sepolia)
	FoundationAddresses map[string]string `json:"foundation_addresses,omitempty"` // chain id → deposit address
}

// TelemetryConfig configures OpenTelemetry trace export.
// When enabled, spans are exported to an OTLP-compatible backend.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext export, for local dev
	ServiceName string            `json:"service_name,omitempty"` // default "musebot"
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (auth tokens etc.)
}

// LegacyWorkflowIDs reports whether the comfy- prefix fallback is active.
func (e ExecutionConfig) LegacyWorkflowIDsEnabled() bool {
	return e.LegacyWorkflowIDs == nil || *e.LegacyWorkflowIDs
}

// FoundationAddress returns the deposit address for a chain, falling back to
// the default chain when the requested one is not configured.
func (l LinkConfig) FoundationAddress(chainID string) (addr, chain string) {
	chain = chainID
	if chain == "" {
		chain = l.DefaultChainID
	}
	if a, ok := l.FoundationAddresses[chain]; ok {
		return a, chain
	}
	return l.FoundationAddresses[l.DefaultChainID], l.DefaultChainID
}

// Validate checks that the config is usable for starting the bot.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token is required (or set MUSEBOT_TELEGRAM_TOKEN)")
	}
	if c.DataAPI.BaseURL == "" {
		return fmt.Errorf("data_api.base_url is required (or set MUSEBOT_DATA_API_URL)")
	}
	if u, err := url.Parse(c.DataAPI.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("data_api.base_url %q is not a valid URL", c.DataAPI.BaseURL)
	}
	if c.DataAPI.ClientKey == "" {
		return fmt.Errorf("data_api.client_key is required (or set MUSEBOT_DATA_API_KEY)")
	}
	if c.Execution.NotifyURL != "" {
		u, err := url.Parse(c.Execution.NotifyURL)
		if err != nil || (u.Scheme != "ws" && u.Scheme != "wss") {
			return fmt.Errorf("execution.notify_url %q must be a ws:// or wss:// URL", c.Execution.NotifyURL)
		}
	}
	return nil
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
// Used by the config watcher to swap in a reloaded config.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Telegram = src.Telegram
	c.DataAPI = src.DataAPI
	c.Execution = src.Execution
	c.Interactions = src.Interactions
	c.Link = src.Link
	c.Telemetry = src.Telemetry
}

// Snapshot returns a copy of the data fields for lock-free reads.
func (c *Config) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Config{
		Telegram:     c.Telegram,
		DataAPI:      c.DataAPI,
		Execution:    c.Execution,
		Interactions: c.Interactions,
		Link:         c.Link,
		Telemetry:    c.Telemetry,
	}
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
// Safe to log or print.
func (c *Config) MaskedCopy() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	// Deep copy via JSON round-trip
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Telegram.Token)
	maskNonEmpty(&cp.DataAPI.ClientKey)
	return cp
}

// StripSecrets zeros out all secret fields in the config.
// Used before saving to disk so secrets never persist in config.json.
func (c *Config) StripSecrets() {
	c.Telegram.Token = ""
	c.DataAPI.ClientKey = ""
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}
