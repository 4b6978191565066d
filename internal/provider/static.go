package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/zwennaf/dhaniverse/internal/market"
)

const historyDays = 7

// Static is a deterministic in-process market data source. The same
// symbol at the same wall-clock day produces the same record, which
// keeps development and tests reproducible without network access.
type Static struct{}

// NewStatic returns a Static source.
func NewStatic() *Static { return &Static{} }

var basePrices = map[string]float64{
	"AAPL":  178.5,
	"GOOGL": 141.2,
	"MSFT":  415.0,
	"AMZN":  185.3,
	"TSLA":  248.6,
	"NVDA":  118.4,
	"META":  512.7,
	"NFLX":  655.1,
	"AMD":   162.9,
	"INTC":  31.8,
}

var companyNames = map[string]string{
	"AAPL":  "Apple Inc.",
	"GOOGL": "Alphabet Inc.",
	"MSFT":  "Microsoft Corporation",
	"AMZN":  "Amazon.com, Inc.",
	"TSLA":  "Tesla, Inc.",
	"NVDA":  "NVIDIA Corporation",
	"META":  "Meta Platforms, Inc.",
	"NFLX":  "Netflix, Inc.",
	"AMD":   "Advanced Micro Devices, Inc.",
	"INTC":  "Intel Corporation",
}

// FetchStock builds the synthetic record for one symbol.
func (s *Static) FetchStock(_ context.Context, symbol string) (market.Stock, error) {
	base, ok := basePrices[symbol]
	if !ok {
		return market.Stock{}, fmt.Errorf("%w: %s", market.ErrUnknownSymbol, symbol)
	}
	name := companyNames[symbol]
	now := market.NowMs()

	history := make([]market.PricePoint, 0, historyDays)
	price := base
	for i := historyDays - 1; i >= 0; i-- {
		ts := now - int64(i)*24*time.Hour.Milliseconds()
		// deterministic pseudo-random daily drift in [-2%, +2%]
		change := (float64(ts%1000)/1000.0 - 0.5) * 0.04
		price *= 1 + change
		spread := price * 0.015
		open := price
		if len(history) > 0 {
			open = history[len(history)-1].Close
		}
		history = append(history, market.PricePoint{
			TimestampMs: ts,
			Price:       price,
			Open:        open,
			High:        price + spread,
			Low:         price - spread,
			Close:       price,
			Volume:      50000 + ts%100000,
		})
	}

	metrics := metricsFor(symbol)
	growth := metrics.BusinessGrowth
	stock := market.Stock{
		Symbol:       symbol,
		Name:         name,
		CurrentPrice: history[len(history)-1].Close,
		PriceHistory: history,
		Metrics:      metrics,
		News: []string{
			fmt.Sprintf("%s reports strong quarterly results with %.1f%% growth", name, growth),
			fmt.Sprintf("Analysts upgrade %s target price citing robust fundamentals", name),
			fmt.Sprintf("%s announces new strategic initiatives for digital transformation", name),
		},
		LastUpdateMs: now,
	}
	return stock, nil
}

// FetchQuotes fetches every requested symbol, skipping unknown ones.
func (s *Static) FetchQuotes(ctx context.Context, symbols []string) ([]market.Stock, error) {
	out := make([]market.Stock, 0, len(symbols))
	for _, sym := range symbols {
		st, err := s.FetchStock(ctx, sym)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out, nil
}

func metricsFor(symbol string) market.StockMetrics {
	switch symbol {
	case "AAPL":
		return market.StockMetrics{
			MarketCap: 2.8e12, PERatio: 29.5, EPS: 6.1, BusinessGrowth: 8.1,
			IndustryAvgPE: 26.4, OutstandingShares: 15.4e9, Volatility: 0.22, DebtEquityRatio: 1.45,
		}
	case "MSFT":
		return market.StockMetrics{
			MarketCap: 3.1e12, PERatio: 35.2, EPS: 11.8, BusinessGrowth: 15.3,
			IndustryAvgPE: 30.1, OutstandingShares: 7.4e9, Volatility: 0.20, DebtEquityRatio: 0.35,
		}
	case "NVDA":
		return market.StockMetrics{
			MarketCap: 2.9e12, PERatio: 64.7, EPS: 1.9, BusinessGrowth: 48.9,
			IndustryAvgPE: 32.5, OutstandingShares: 24.6e9, Volatility: 0.45, DebtEquityRatio: 0.22,
		}
	default:
		return market.StockMetrics{
			MarketCap: 5.0e11, PERatio: 22.4, EPS: 8.2, BusinessGrowth: 6.8,
			IndustryAvgPE: 24.0, OutstandingShares: 2.0e9, Volatility: 0.32, DebtEquityRatio: 0.65,
		}
	}
}
