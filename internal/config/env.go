package config

import (
	"os"
	"strconv"
	"strings"
)

// ApplyEnv overlays DHANIVERSE_* environment variables onto cfg.
// Unset variables leave the existing value in place; malformed numeric
// values are ignored rather than failing startup.
func ApplyEnv(cfg *Config) {
	envInt("DHANIVERSE_ROOM_MAX_CONNECTIONS", &cfg.Rooms.MaxConnectionsPerRoom)
	envInt("DHANIVERSE_ROOM_MAX_BUFFER", &cfg.Rooms.MaxBufferSize)
	envInt("DHANIVERSE_ROOM_STOCK_BUFFER", &cfg.Rooms.StockBufferSize)
	envInt64("DHANIVERSE_ROOM_CONNECTION_TIMEOUT_MS", &cfg.Rooms.ConnectionTimeoutMs)
	envInt64("DHANIVERSE_ROOM_MAX_EVENT_AGE_MS", &cfg.Rooms.MaxEventAgeMs)
	envInt64("DHANIVERSE_ROOM_CLEANUP_INTERVAL_MS", &cfg.Rooms.CleanupIntervalMs)
	envInt("DHANIVERSE_SSE_RETRY_HINT_MS", &cfg.Rooms.RetryHintMs)

	envInt64("DHANIVERSE_STOCK_CACHE_DURATION_MS", &cfg.Stocks.CacheDurationMs)
	envInt64("DHANIVERSE_STOCK_RATE_LIMIT_INTERVAL_MS", &cfg.Stocks.RateLimitIntervalMs)
	envUint32("DHANIVERSE_STOCK_MAX_ACCESS_COUNT", &cfg.Stocks.MaxAccessCount)

	envInt64("DHANIVERSE_SUMMARY_TTL_MS", &cfg.Summary.TTLMs)
	envInt64("DHANIVERSE_SUMMARY_REFRESH_INTERVAL_MS", &cfg.Summary.RefreshIntervalMs)
	envInt64("DHANIVERSE_SUMMARY_ACTIVITY_WINDOW_MS", &cfg.Summary.ActivityWindowMs)
	if v := os.Getenv("DHANIVERSE_SUMMARY_SYMBOLS"); v != "" {
		var syms []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				syms = append(syms, strings.ToUpper(s))
			}
		}
		if len(syms) > 0 {
			cfg.Summary.Symbols = syms
		}
	}

	envInt("DHANIVERSE_HISTORY_CAPACITY", &cfg.History.Capacity)
	envInt64("DHANIVERSE_HISTORY_SNAPSHOT_INTERVAL_MS", &cfg.History.SnapshotIntervalMs)

	envStr("DHANIVERSE_PROVIDER_BASE_URL", &cfg.Provider.BaseURL)
	envStr("DHANIVERSE_PROVIDER_API_KEY", &cfg.Provider.APIKey)
	envInt("DHANIVERSE_PROVIDER_RPM", &cfg.Provider.RequestsPerMinute)
	envInt64("DHANIVERSE_PROVIDER_TIMEOUT_MS", &cfg.Provider.TimeoutMs)
	envBool("DHANIVERSE_PROVIDER_SYNTHETIC", &cfg.Provider.Synthetic)
}

func envStr(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envInt64(key string, dst *int64) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func envUint32(key string, dst *uint32) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			*dst = uint32(n)
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
