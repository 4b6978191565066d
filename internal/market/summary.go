package market

import (
	"context"
	"fmt"
	"sync"

	"github.com/zwennaf/dhaniverse/internal/config"
	"github.com/zwennaf/dhaniverse/pkg/log"
)

// SummaryCache holds the single market overview shared by every
// subscriber, plus the activity stamp that gates background refreshes.
type SummaryCache struct {
	mu             sync.Mutex
	cfg            config.SummaryConfig
	source         Source
	logger         log.Logger
	current        *Summary
	lastActivityMs int64
}

// NewSummaryCache returns an empty cache filled from source on demand.
func NewSummaryCache(cfg config.SummaryConfig, source Source, logger log.Logger) *SummaryCache {
	if logger == nil {
		logger = log.NewLogger()
	}
	return &SummaryCache{cfg: cfg, source: source, logger: logger.WithComponent("summary")}
}

// NoteActivity records a consumer touch. The background scheduler stops
// itself once no touch lands within the activity window.
func (s *SummaryCache) NoteActivity() {
	s.mu.Lock()
	s.lastActivityMs = NowMs()
	s.mu.Unlock()
}

// Active reports whether a consumer touched the summary within the
// activity window. Never-touched caches are inactive.
func (s *SummaryCache) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastActivityMs == 0 {
		return false
	}
	return NowMs()-s.lastActivityMs < s.cfg.ActivityWindowMs
}

// Get serves the cached summary while it is within TTL, refreshing
// through the provider otherwise. A failed refresh surfaces the error;
// the prior summary stays stored but is not served as fresh.
func (s *SummaryCache) Get(ctx context.Context) (Summary, error) {
	s.NoteActivity()

	s.mu.Lock()
	if s.current != nil && NowMs()-s.current.GeneratedAtMs < s.cfg.TTLMs {
		out := *s.current
		s.mu.Unlock()
		return out, nil
	}
	s.mu.Unlock()

	return s.Refresh(ctx)
}

// Refresh rebuilds the summary from the provider and installs it if it
// is newer than whatever landed while the fetch was in flight.
func (s *SummaryCache) Refresh(ctx context.Context) (Summary, error) {
	started := NowMs()
	stocks, err := s.source.FetchQuotes(ctx, s.cfg.Symbols)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	if len(stocks) == 0 {
		return Summary{}, fmt.Errorf("%w: no quotes returned", ErrProviderFailure)
	}

	sum := Summary{
		GeneratedAtMs: NowMs(),
		Stocks:        stocks,
		Indices:       buildIndices(stocks),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-validate after the await: keep a summary another refresher
	// installed meanwhile if it is newer than this fetch.
	if s.current != nil && s.current.GeneratedAtMs > started {
		return *s.current, nil
	}
	s.current = &sum
	return sum, nil
}

// Quotes fetches the tracked symbol set straight from the provider,
// bypassing the cached summary. The snapshot recorder uses it so the
// ring gets live prices rather than a possibly cached view.
func (s *SummaryCache) Quotes(ctx context.Context) ([]Stock, error) {
	stocks, err := s.source.FetchQuotes(ctx, s.cfg.Symbols)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailure, err)
	}
	return stocks, nil
}

func buildIndices(stocks []Stock) SummaryIndices {
	var idx SummaryIndices
	var peSum float64
	peCount := 0
	for _, st := range stocks {
		idx.TotalMarketCap += st.Metrics.MarketCap
		if st.Metrics.PERatio > 0 {
			peSum += st.Metrics.PERatio
			peCount++
		}
		if n := len(st.PriceHistory); n >= 2 {
			if st.PriceHistory[n-1].Close >= st.PriceHistory[n-2].Close {
				idx.Advancers++
			} else {
				idx.Decliners++
			}
		}
	}
	if peCount > 0 {
		idx.AveragePE = peSum / float64(peCount)
	}
	return idx
}
