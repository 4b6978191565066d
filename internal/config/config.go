package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration loaded from file/env.
type Config struct {
	Rooms    RoomsConfig    `json:"rooms" yaml:"rooms"`
	Stocks   StocksConfig   `json:"stocks" yaml:"stocks"`
	Summary  SummaryConfig  `json:"summary" yaml:"summary"`
	History  HistoryConfig  `json:"history" yaml:"history"`
	Provider ProviderConfig `json:"provider" yaml:"provider"`
	// AuthTokens maps bearer credentials to stable peer identifiers.
	// Empty means every room admits anonymous peers.
	AuthTokens map[string]string `json:"authTokens" yaml:"authTokens"`
}

// RoomsConfig bounds room membership and event retention.
type RoomsConfig struct {
	MaxConnectionsPerRoom int   `json:"maxConnectionsPerRoom" yaml:"maxConnectionsPerRoom"`
	MaxBufferSize         int   `json:"maxBufferSize" yaml:"maxBufferSize"`
	StockBufferSize       int   `json:"stockBufferSize" yaml:"stockBufferSize"`
	ConnectionTimeoutMs   int64 `json:"connectionTimeoutMs" yaml:"connectionTimeoutMs"`
	MaxEventAgeMs         int64 `json:"maxEventAgeMs" yaml:"maxEventAgeMs"`
	CleanupIntervalMs     int64 `json:"cleanupIntervalMs" yaml:"cleanupIntervalMs"`
	RetryHintMs           int   `json:"retryHintMs" yaml:"retryHintMs"`
}

// StocksConfig governs the per-symbol read-through cache.
type StocksConfig struct {
	CacheDurationMs     int64  `json:"cacheDurationMs" yaml:"cacheDurationMs"`
	RateLimitIntervalMs int64  `json:"rateLimitIntervalMs" yaml:"rateLimitIntervalMs"`
	MaxAccessCount      uint32 `json:"maxAccessCount" yaml:"maxAccessCount"`
}

// SummaryConfig governs the shared market summary cache and its refresh loop.
type SummaryConfig struct {
	TTLMs             int64    `json:"ttlMs" yaml:"ttlMs"`
	RefreshIntervalMs int64    `json:"refreshIntervalMs" yaml:"refreshIntervalMs"`
	ActivityWindowMs  int64    `json:"activityWindowMs" yaml:"activityWindowMs"`
	Symbols           []string `json:"symbols" yaml:"symbols"`
}

// HistoryConfig sizes the rolling price snapshot window.
type HistoryConfig struct {
	Capacity           int   `json:"capacity" yaml:"capacity"`
	SnapshotIntervalMs int64 `json:"snapshotIntervalMs" yaml:"snapshotIntervalMs"`
}

// ProviderConfig points at the external market data source.
type ProviderConfig struct {
	BaseURL           string `json:"baseUrl" yaml:"baseUrl"`
	APIKey            string `json:"apiKey" yaml:"apiKey"`
	RequestsPerMinute int    `json:"requestsPerMinute" yaml:"requestsPerMinute"`
	TimeoutMs         int64  `json:"timeoutMs" yaml:"timeoutMs"`
	// Synthetic selects the deterministic in-process provider instead of
	// the HTTP client. Intended for development and tests.
	Synthetic bool `json:"synthetic" yaml:"synthetic"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		Rooms: RoomsConfig{
			MaxConnectionsPerRoom: 100,
			MaxBufferSize:         1000,
			StockBufferSize:       100,
			ConnectionTimeoutMs:   (5 * time.Minute).Milliseconds(),
			MaxEventAgeMs:         (10 * time.Minute).Milliseconds(),
			CleanupIntervalMs:     time.Minute.Milliseconds(),
			RetryHintMs:           3000,
		},
		Stocks: StocksConfig{
			CacheDurationMs:     (45 * time.Minute).Milliseconds(),
			RateLimitIntervalMs: (30 * time.Second).Milliseconds(),
			MaxAccessCount:      100,
		},
		Summary: SummaryConfig{
			TTLMs:             (45 * time.Minute).Milliseconds(),
			RefreshIntervalMs: (30 * time.Minute).Milliseconds(),
			ActivityWindowMs:  (6 * time.Hour).Milliseconds(),
			Symbols: []string{
				"AAPL", "GOOGL", "MSFT", "AMZN", "TSLA",
				"NVDA", "META", "NFLX", "AMD", "INTC",
			},
		},
		History: HistoryConfig{
			Capacity:           24 * 60 / 10, // 24h of 10-minute snapshots
			SnapshotIntervalMs: (10 * time.Minute).Milliseconds(),
		},
		Provider: ProviderConfig{
			BaseURL:           "https://api.polygon.io",
			RequestsPerMinute: 5,
			TimeoutMs:         (15 * time.Second).Milliseconds(),
			Synthetic:         false,
		},
	}
}

// Load reads configuration from a JSON or YAML file (by extension). If path
// is empty, returns defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := Default()
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	return cfg, nil
}

// Duration helpers; zero or negative millisecond values yield 0.

func (c RoomsConfig) ConnectionTimeout() time.Duration { return msToDur(c.ConnectionTimeoutMs) }
func (c RoomsConfig) MaxEventAge() time.Duration       { return msToDur(c.MaxEventAgeMs) }
func (c RoomsConfig) CleanupInterval() time.Duration   { return msToDur(c.CleanupIntervalMs) }

func (c StocksConfig) CacheDuration() time.Duration     { return msToDur(c.CacheDurationMs) }
func (c StocksConfig) RateLimitInterval() time.Duration { return msToDur(c.RateLimitIntervalMs) }

func (c SummaryConfig) TTL() time.Duration             { return msToDur(c.TTLMs) }
func (c SummaryConfig) RefreshInterval() time.Duration { return msToDur(c.RefreshIntervalMs) }
func (c SummaryConfig) ActivityWindow() time.Duration  { return msToDur(c.ActivityWindowMs) }

func (c HistoryConfig) SnapshotInterval() time.Duration { return msToDur(c.SnapshotIntervalMs) }

func (c ProviderConfig) Timeout() time.Duration { return msToDur(c.TimeoutMs) }

func msToDur(ms int64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms) * time.Millisecond
}
