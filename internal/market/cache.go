package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zwennaf/dhaniverse/internal/config"
	pebblestore "github.com/zwennaf/dhaniverse/internal/storage/pebble"
	"github.com/zwennaf/dhaniverse/pkg/log"
)

func cacheKey(symbol string) []byte { return []byte("stockcache/" + symbol) }

// Cache is the durable per-symbol read-through cache. A fresh entry is
// served as-is; an expired entry triggers a provider fetch unless the
// symbol is rate limited, in which case the stale entry is served.
// Provider failures surface to the caller and leave the stored entry
// exactly as it was.
type Cache struct {
	mu     sync.Mutex
	db     *pebblestore.DB
	cfg    config.StocksConfig
	source Source
	logger log.Logger
}

// OpenCache returns a cache backed by db and filled from source.
func OpenCache(db *pebblestore.DB, cfg config.StocksConfig, source Source, logger log.Logger) *Cache {
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Cache{db: db, cfg: cfg, source: source, logger: logger.WithComponent("stockcache")}
}

// Get returns the stock record for symbol, fetching through the
// provider when the cached entry is missing or due for refresh.
func (c *Cache) Get(ctx context.Context, symbol string) (Stock, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return Stock{}, fmt.Errorf("%w: empty symbol", ErrUnknownSymbol)
	}

	c.mu.Lock()
	now := NowMs()
	entry, ok := c.loadLocked(symbol)
	if ok && !c.shouldRefreshLocked(entry, now) {
		// decided against the previous access stamp, record this one
		entry.AccessCount++
		entry.LastAccessMs = now
		c.storeLocked(symbol, entry)
		c.mu.Unlock()
		return entry.Stock, nil
	}
	c.mu.Unlock()

	// Fetch without holding the lock; the provider call can block on
	// its rate limiter.
	stock, fetchErr := c.source.FetchStock(ctx, symbol)

	c.mu.Lock()
	defer c.mu.Unlock()

	if fetchErr != nil {
		if errors.Is(fetchErr, ErrUnknownSymbol) {
			return Stock{}, fetchErr
		}
		// the stored entry, stale or not, stays untouched on failure
		c.logger.Warn("stock fetch failed", log.Str("symbol", symbol), log.Err(fetchErr))
		return Stock{}, fmt.Errorf("%w: %v", ErrProviderFailure, fetchErr)
	}

	// Re-validate: another goroutine may have refreshed the entry while
	// the fetch was in flight. Keep whichever record is newer.
	if cur, exists := c.loadLocked(symbol); exists && cur.FetchedAtMs > now {
		return cur.Stock, nil
	}
	fresh := CacheEntry{
		Stock:        stock,
		FetchedAtMs:  NowMs(),
		LastAccessMs: NowMs(),
		AccessCount:  1,
	}
	c.storeLocked(symbol, fresh)
	return stock, nil
}

// Peek returns the cached entry without counting an access or fetching.
func (c *Cache) Peek(symbol string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loadLocked(strings.ToUpper(symbol))
}

// shouldRefreshLocked decides whether the entry is due for a provider
// fetch. Expiry always refreshes. Past the access budget the symbol is
// rate limited: the stale entry keeps being served until the limit
// interval has passed since the last access.
func (c *Cache) shouldRefreshLocked(e CacheEntry, now int64) bool {
	if now > e.FetchedAtMs+c.cfg.CacheDurationMs {
		return true
	}
	if e.AccessCount > c.cfg.MaxAccessCount {
		return now > e.LastAccessMs+c.cfg.RateLimitIntervalMs
	}
	return false
}

func (c *Cache) loadLocked(symbol string) (CacheEntry, bool) {
	b, err := c.db.Get(cacheKey(symbol))
	if err != nil {
		return CacheEntry{}, false
	}
	var e CacheEntry
	if json.Unmarshal(b, &e) != nil {
		return CacheEntry{}, false
	}
	return e, true
}

func (c *Cache) storeLocked(symbol string, e CacheEntry) {
	b, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.db.Set(cacheKey(symbol), b); err != nil {
		c.logger.Error("cache write failed", log.Str("symbol", symbol), log.Err(err))
	}
}
