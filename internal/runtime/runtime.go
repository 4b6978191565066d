package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/zwennaf/dhaniverse/internal/auth"
	cfgpkg "github.com/zwennaf/dhaniverse/internal/config"
	"github.com/zwennaf/dhaniverse/internal/market"
	"github.com/zwennaf/dhaniverse/internal/provider"
	"github.com/zwennaf/dhaniverse/internal/rooms"
	pebblestore "github.com/zwennaf/dhaniverse/internal/storage/pebble"
	"github.com/zwennaf/dhaniverse/pkg/log"
)

// Options for building the Runtime.
type Options struct {
	DataDir       string
	Fsync         pebblestore.FsyncMode
	FsyncInterval time.Duration
	Config        cfgpkg.Config
	Logger        log.Logger
	// Source overrides the provider chosen from config. Tests use it.
	Source market.Source
}

// Runtime wires storage, rooms, and market components for a single-node
// instance.
type Runtime struct {
	db        *pebblestore.DB
	config    cfgpkg.Config
	logger    log.Logger
	registry  *rooms.Registry
	cache     *market.Cache
	summary   *market.SummaryCache
	history   *market.History
	scheduler *market.Scheduler
	feed      *market.Feed
	verifier  auth.Verifier
}

// Open initializes storage and the component graph.
func Open(opts Options) (*Runtime, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.NewLogger()
	}

	db, err := pebblestore.Open(pebblestore.Options{
		DataDir:       opts.DataDir,
		Fsync:         opts.Fsync,
		FsyncInterval: opts.FsyncInterval,
	})
	if err != nil {
		return nil, err
	}

	cfg := opts.Config
	registry, err := rooms.OpenRegistry(db, cfg.Rooms, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	source := opts.Source
	if source == nil {
		if cfg.Provider.Synthetic || cfg.Provider.APIKey == "" {
			source = provider.NewStatic()
		} else {
			source = provider.NewHTTPSource(cfg.Provider, logger)
		}
	}

	cache := market.OpenCache(db, cfg.Stocks, source, logger)
	summary := market.NewSummaryCache(cfg.Summary, source, logger)
	history := market.NewHistory(cfg.History.Capacity)
	feed := market.NewFeed(registry, cache, logger)
	scheduler := market.NewScheduler(summary, history,
		cfg.Summary.RefreshInterval(), cfg.History.SnapshotInterval(), logger)
	scheduler.OnRefresh = feed.PublishSummary

	var verifier auth.Verifier = auth.Open{}
	if len(cfg.AuthTokens) > 0 {
		verifier = auth.NewTokenVerifier(cfg.AuthTokens)
	}

	return &Runtime{
		db:        db,
		config:    cfg,
		logger:    logger,
		registry:  registry,
		cache:     cache,
		summary:   summary,
		history:   history,
		scheduler: scheduler,
		feed:      feed,
		verifier:  verifier,
	}, nil
}

// Close stops background work and closes storage.
func (r *Runtime) Close() error {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// CheckHealth performs a simple storage probe.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.db == nil {
		return errors.New("db not open")
	}
	it, err := r.db.NewIter(nil)
	if err != nil {
		return err
	}
	return it.Close()
}

// Registry returns the room registry.
func (r *Runtime) Registry() *rooms.Registry { return r.registry }

// StockCache returns the per-symbol read-through cache.
func (r *Runtime) StockCache() *market.Cache { return r.cache }

// Summary returns the shared market summary cache.
func (r *Runtime) Summary() *market.SummaryCache { return r.summary }

// History returns the rolling price snapshot ring.
func (r *Runtime) History() *market.History { return r.history }

// Scheduler returns the activity-gated summary refresher.
func (r *Runtime) Scheduler() *market.Scheduler { return r.scheduler }

// Feed returns the market-to-rooms bridge.
func (r *Runtime) Feed() *market.Feed { return r.feed }

// Verifier returns the configured identity verifier.
func (r *Runtime) Verifier() auth.Verifier { return r.verifier }

// DB exposes the underlying store (internal use only).
func (r *Runtime) DB() *pebblestore.DB { return r.db }

// Config returns the runtime configuration.
func (r *Runtime) Config() cfgpkg.Config { return r.config }
