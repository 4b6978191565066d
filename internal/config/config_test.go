package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Rooms.MaxConnectionsPerRoom != 100 {
		t.Fatalf("MaxConnectionsPerRoom = %d, want 100", cfg.Rooms.MaxConnectionsPerRoom)
	}
	if cfg.Rooms.MaxBufferSize != 1000 {
		t.Fatalf("MaxBufferSize = %d, want 1000", cfg.Rooms.MaxBufferSize)
	}
	if got := cfg.Rooms.ConnectionTimeout(); got != 5*time.Minute {
		t.Fatalf("ConnectionTimeout = %v, want 5m", got)
	}
	if got := cfg.Stocks.CacheDuration(); got != 45*time.Minute {
		t.Fatalf("CacheDuration = %v, want 45m", got)
	}
	if cfg.History.Capacity != 144 {
		t.Fatalf("History.Capacity = %d, want 144", cfg.History.Capacity)
	}
	if len(cfg.Summary.Symbols) != 10 {
		t.Fatalf("Summary.Symbols = %v, want 10 entries", cfg.Summary.Symbols)
	}
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.json")
	data := `{"rooms":{"maxConnectionsPerRoom":7},"provider":{"synthetic":true}}`
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Rooms.MaxConnectionsPerRoom != 7 {
		t.Fatalf("MaxConnectionsPerRoom = %d, want 7", cfg.Rooms.MaxConnectionsPerRoom)
	}
	if !cfg.Provider.Synthetic {
		t.Fatal("Provider.Synthetic not set")
	}
	// untouched fields keep defaults
	if cfg.Rooms.MaxBufferSize != 1000 {
		t.Fatalf("MaxBufferSize = %d, want default 1000", cfg.Rooms.MaxBufferSize)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "cfg.yaml")
	data := "stocks:\n  maxAccessCount: 3\nsummary:\n  symbols: [AAPL, TSLA]\n"
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Stocks.MaxAccessCount != 3 {
		t.Fatalf("MaxAccessCount = %d, want 3", cfg.Stocks.MaxAccessCount)
	}
	if len(cfg.Summary.Symbols) != 2 || cfg.Summary.Symbols[1] != "TSLA" {
		t.Fatalf("Symbols = %v", cfg.Summary.Symbols)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DHANIVERSE_ROOM_MAX_CONNECTIONS", "12")
	t.Setenv("DHANIVERSE_STOCK_MAX_ACCESS_COUNT", "5")
	t.Setenv("DHANIVERSE_SUMMARY_SYMBOLS", "msft, nvda")
	t.Setenv("DHANIVERSE_PROVIDER_SYNTHETIC", "true")
	t.Setenv("DHANIVERSE_ROOM_MAX_BUFFER", "not-a-number")

	cfg := Default()
	ApplyEnv(&cfg)

	if cfg.Rooms.MaxConnectionsPerRoom != 12 {
		t.Fatalf("MaxConnectionsPerRoom = %d, want 12", cfg.Rooms.MaxConnectionsPerRoom)
	}
	if cfg.Stocks.MaxAccessCount != 5 {
		t.Fatalf("MaxAccessCount = %d, want 5", cfg.Stocks.MaxAccessCount)
	}
	if len(cfg.Summary.Symbols) != 2 || cfg.Summary.Symbols[0] != "MSFT" {
		t.Fatalf("Symbols = %v", cfg.Summary.Symbols)
	}
	if !cfg.Provider.Synthetic {
		t.Fatal("Provider.Synthetic not set")
	}
	if cfg.Rooms.MaxBufferSize != 1000 {
		t.Fatalf("malformed env should be ignored, MaxBufferSize = %d", cfg.Rooms.MaxBufferSize)
	}
}

func TestDefaultDataDir(t *testing.T) {
	t.Setenv("DHANIVERSE_DATA_DIR", "/tmp/dv-data")
	if got := DefaultDataDir(); got != "/tmp/dv-data" {
		t.Fatalf("DefaultDataDir = %q", got)
	}
}
