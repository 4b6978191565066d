package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	serverrun "github.com/zwennaf/dhaniverse/internal/cmd/server"
	cfgpkg "github.com/zwennaf/dhaniverse/internal/config"
	pebblestore "github.com/zwennaf/dhaniverse/internal/storage/pebble"
	logpkg "github.com/zwennaf/dhaniverse/pkg/log"
)

func main() {
	// .env is optional; real env vars win over file entries
	_ = godotenv.Load()

	level := os.Getenv("DHANIVERSE_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "dhaniverse",
		Short: "Dhaniverse realtime market server CLI",
		Long:  "Dhaniverse serves room-scoped SSE event streams and cached market data from a single binary.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the dhaniverse server",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			configPath, _ := cmd.Flags().GetString("config")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			fsyncIntervalMs, _ := cmd.Flags().GetInt("fsync-interval-ms")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")
			synthetic, _ := cmd.Flags().GetBool("synthetic")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.ApplyEnv(&cfg)
			if synthetic {
				cfg.Provider.Synthetic = true
			}
			if logLevel != "" {
				_ = os.Setenv("DHANIVERSE_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("DHANIVERSE_LOG_FORMAT", logFormat)
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:       dataDir,
				HTTPAddr:      httpAddr,
				Fsync:         mode,
				FsyncInterval: time.Duration(fsyncIntervalMs) * time.Millisecond,
				Config:        cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (defaults to ~/.dhaniverse/data)")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("config", os.Getenv("DHANIVERSE_CONFIG"), "Config file path (JSON or YAML)")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().Int("fsync-interval-ms", 5, "When --fsync=interval, group-commit window in ms")
	serverStartCmd.Flags().String("log-level", os.Getenv("DHANIVERSE_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("DHANIVERSE_LOG_FORMAT"), "Log format: text|json")
	serverStartCmd.Flags().Bool("synthetic", false, "Use the deterministic synthetic market data provider")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// room publish
	roomCmd := &cobra.Command{Use: "room", Short: "Room operations"}
	roomPublishCmd := &cobra.Command{
		Use:   "publish",
		Short: "Publish an event to a room",
		RunE: func(cmd *cobra.Command, args []string) error {
			room, _ := cmd.Flags().GetString("room")
			kind, _ := cmd.Flags().GetString("kind")
			from, _ := cmd.Flags().GetString("from")
			payload, _ := cmd.Flags().GetString("payload")
			body := map[string]any{
				"roomId": room, "kind": kind, "from": from,
				"payload": json.RawMessage(payload),
			}
			b, _ := json.Marshal(body)
			resp, err := http.Post(apiURL()+"/v1/rooms/publish", "application/json", bytes.NewReader(b))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			fmt.Printf("status: %s %s", resp.Status, out)
			return nil
		},
	}
	roomPublishCmd.Flags().String("room", "", "Room id")
	roomPublishCmd.Flags().String("kind", "offer", "Event kind")
	roomPublishCmd.Flags().String("from", "", "Sender peer id")
	roomPublishCmd.Flags().String("payload", "{}", "Event payload JSON")
	roomCmd.AddCommand(roomPublishCmd)

	roomStatsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show room stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			room, _ := cmd.Flags().GetString("room")
			resp, err := http.Get(apiURL() + "/v1/rooms/stats?room=" + url.QueryEscape(room))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			fmt.Printf("%s", out)
			return nil
		},
	}
	roomStatsCmd.Flags().String("room", "", "Room id (omit for global stats)")
	roomCmd.AddCommand(roomStatsCmd)
	rootCmd.AddCommand(roomCmd)

	// stock fetch
	stockCmd := &cobra.Command{
		Use:   "stock",
		Short: "Fetch a stock through the cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			symbol, _ := cmd.Flags().GetString("symbol")
			resp, err := http.Get(apiURL() + "/v1/stocks?symbol=" + url.QueryEscape(symbol))
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			out, _ := io.ReadAll(resp.Body)
			fmt.Printf("%s", out)
			return nil
		},
	}
	stockCmd.Flags().String("symbol", "AAPL", "Ticker symbol")
	rootCmd.AddCommand(stockCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("DHANIVERSE_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
