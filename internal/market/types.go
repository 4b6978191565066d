package market

import (
	"context"
	"errors"
	"time"
)

// Stock is the full per-symbol record served to clients and cached.
type Stock struct {
	Symbol       string       `json:"symbol"`
	Name         string       `json:"name"`
	CurrentPrice float64      `json:"currentPrice"`
	PriceHistory []PricePoint `json:"priceHistory"`
	Metrics      StockMetrics `json:"metrics"`
	News         []string     `json:"news,omitempty"`
	LastUpdateMs int64        `json:"lastUpdateMs"`
}

// PricePoint is one historical candle.
type PricePoint struct {
	TimestampMs int64   `json:"timestampMs"`
	Price       float64 `json:"price"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      int64   `json:"volume"`
}

// StockMetrics carries the fundamentals displayed alongside the price.
type StockMetrics struct {
	MarketCap         float64 `json:"marketCap"`
	PERatio           float64 `json:"peRatio"`
	EPS               float64 `json:"eps"`
	BusinessGrowth    float64 `json:"businessGrowth"`
	IndustryAvgPE     float64 `json:"industryAvgPe"`
	OutstandingShares float64 `json:"outstandingShares"`
	Volatility        float64 `json:"volatility"`
	DebtEquityRatio   float64 `json:"debtEquityRatio"`
}

// CacheEntry is the durable read-through cache record for one symbol.
type CacheEntry struct {
	Stock        Stock  `json:"stock"`
	FetchedAtMs  int64  `json:"fetchedAtMs"`
	LastAccessMs int64  `json:"lastAccessMs"`
	AccessCount  uint32 `json:"accessCount"`
}

// Summary aggregates the tracked symbols for the shared market overview.
type Summary struct {
	GeneratedAtMs int64          `json:"generatedAtMs"`
	Stocks        []Stock        `json:"stocks"`
	Indices       SummaryIndices `json:"indices"`
}

// SummaryIndices holds the aggregate figures shown at the top of the
// market overview.
type SummaryIndices struct {
	TotalMarketCap float64 `json:"totalMarketCap"`
	AveragePE      float64 `json:"averagePe"`
	Advancers      int     `json:"advancers"`
	Decliners      int     `json:"decliners"`
}

// Source supplies market data. Implementations live in internal/provider.
type Source interface {
	// FetchStock returns the current record for one symbol.
	FetchStock(ctx context.Context, symbol string) (Stock, error)
	// FetchQuotes returns records for several symbols in one pass.
	FetchQuotes(ctx context.Context, symbols []string) ([]Stock, error)
}

// ErrUnknownSymbol reports a symbol the source does not track.
var ErrUnknownSymbol = errors.New("market: unknown symbol")

// ErrProviderFailure wraps upstream fetch failures.
var ErrProviderFailure = errors.New("market: provider failure")

// NowMs is the clock for cache freshness and scheduler decisions.
// Tests replace it.
var NowMs = func() int64 { return time.Now().UnixMilli() }
