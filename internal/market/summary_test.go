package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zwennaf/dhaniverse/internal/config"
)

func testSummaryConfig() config.SummaryConfig {
	return config.SummaryConfig{
		TTLMs:            10_000,
		ActivityWindowMs: 60_000,
		Symbols:          []string{"AAPL", "MSFT"},
	}
}

func TestSummaryGetCachesWithinTTL(t *testing.T) {
	now := int64(1_000_000)
	withClock(t, &now)

	src := &fakeSource{}
	s := NewSummaryCache(testSummaryConfig(), src, nil)

	first, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(first.Stocks) != 2 {
		t.Fatalf("Stocks = %d, want 2", len(first.Stocks))
	}
	calls := src.callCount()

	now += 5_000
	if _, err := s.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.callCount() != calls {
		t.Fatalf("cached summary refetched, calls %d -> %d", calls, src.callCount())
	}

	now += 6_000
	if _, err := s.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if src.callCount() == calls {
		t.Fatal("expired summary never refreshed")
	}
}

func TestSummaryExpiredFailureSurfacesError(t *testing.T) {
	now := int64(1_000_000)
	withClock(t, &now)

	src := &fakeSource{}
	s := NewSummaryCache(testSummaryConfig(), src, nil)

	if _, err := s.Get(context.Background()); err != nil {
		t.Fatal(err)
	}

	src.mu.Lock()
	src.fail = true
	src.mu.Unlock()

	now += 11_000
	if _, err := s.Get(context.Background()); !errors.Is(err, ErrProviderFailure) {
		t.Fatalf("err = %v, want ErrProviderFailure", err)
	}

	// the failed refresh leaves the prior summary stored: back inside the
	// TTL it is served without a provider call
	calls := src.callCount()
	now = 1_005_000
	sum, err := s.Get(context.Background())
	if err != nil {
		t.Fatalf("Get within TTL: %v", err)
	}
	if len(sum.Stocks) != 2 {
		t.Fatalf("retained summary malformed: %d stocks", len(sum.Stocks))
	}
	if src.callCount() != calls {
		t.Fatalf("cached summary refetched, calls %d -> %d", calls, src.callCount())
	}
}

func TestSummaryColdFailure(t *testing.T) {
	src := &fakeSource{fail: true}
	s := NewSummaryCache(testSummaryConfig(), src, nil)
	if _, err := s.Get(context.Background()); err == nil {
		t.Fatal("expected error with no cached summary")
	}
}

func TestSummaryActivityWindow(t *testing.T) {
	now := int64(1_000_000)
	withClock(t, &now)

	s := NewSummaryCache(testSummaryConfig(), &fakeSource{}, nil)
	if s.Active() {
		t.Fatal("untouched cache should be inactive")
	}
	s.NoteActivity()
	if !s.Active() {
		t.Fatal("touched cache should be active")
	}
	now += 60_001
	if s.Active() {
		t.Fatal("cache should go inactive after the window")
	}
}

func TestSummaryIndices(t *testing.T) {
	stocks := []Stock{
		{
			Metrics:      StockMetrics{MarketCap: 100, PERatio: 10},
			PriceHistory: []PricePoint{{Close: 1}, {Close: 2}},
		},
		{
			Metrics:      StockMetrics{MarketCap: 300, PERatio: 30},
			PriceHistory: []PricePoint{{Close: 5}, {Close: 4}},
		},
	}
	idx := buildIndices(stocks)
	if idx.TotalMarketCap != 400 {
		t.Fatalf("TotalMarketCap = %v", idx.TotalMarketCap)
	}
	if idx.AveragePE != 20 {
		t.Fatalf("AveragePE = %v", idx.AveragePE)
	}
	if idx.Advancers != 1 || idx.Decliners != 1 {
		t.Fatalf("advancers/decliners = %d/%d", idx.Advancers, idx.Decliners)
	}
}

func TestSchedulerRunsWhileActiveAndSelfStops(t *testing.T) {
	cfg := config.SummaryConfig{
		TTLMs:            1,
		ActivityWindowMs: 150,
		Symbols:          []string{"AAPL"},
	}
	src := &fakeSource{}
	cache := NewSummaryCache(cfg, src, nil)
	sched := NewScheduler(cache, NewHistory(10), 30*time.Millisecond, time.Hour, nil)

	refreshed := make(chan Summary, 16)
	sched.OnRefresh = func(s Summary) {
		select {
		case refreshed <- s:
		default:
		}
	}

	sched.Touch()
	if !sched.Running() {
		t.Fatal("scheduler should run after touch")
	}

	select {
	case <-refreshed:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler never refreshed")
	}

	// with no further touches the loop notices inactivity and stops
	deadline := time.Now().Add(2 * time.Second)
	for sched.Running() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler never stopped after inactivity")
		}
		time.Sleep(10 * time.Millisecond)
	}

	// activity restarts it
	sched.Touch()
	if !sched.Running() {
		t.Fatal("scheduler should restart on new activity")
	}
	sched.Stop()
	if sched.Running() {
		t.Fatal("Stop should halt the loop")
	}
}

func TestSchedulerRecordsSnapshots(t *testing.T) {
	cfg := config.SummaryConfig{
		TTLMs:            1,
		ActivityWindowMs: 60_000,
		Symbols:          []string{"AAPL", "MSFT"},
	}
	src := &fakeSource{price: 77}
	cache := NewSummaryCache(cfg, src, nil)
	hist := NewHistory(10)
	// long refresh interval so only the snapshot ticker fires
	sched := NewScheduler(cache, hist, time.Hour, 20*time.Millisecond, nil)

	sched.Touch()
	defer sched.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for hist.Len() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("ring has %d snapshots, want >= 2", hist.Len())
		}
		time.Sleep(5 * time.Millisecond)
	}

	snaps := hist.Snapshots()
	if snaps[0].Prices["AAPL"] != 77 {
		t.Fatalf("snapshot prices = %v, want AAPL at 77", snaps[0].Prices)
	}
	if len(snaps[0].Prices) != 2 {
		t.Fatalf("snapshot tracks %d symbols, want 2", len(snaps[0].Prices))
	}
}

func TestSchedulerStopIdempotent(t *testing.T) {
	cache := NewSummaryCache(testSummaryConfig(), &fakeSource{}, nil)
	sched := NewScheduler(cache, nil, time.Hour, time.Hour, nil)
	sched.Stop()
	sched.Touch()
	sched.Stop()
	sched.Stop()
}
