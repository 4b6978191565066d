package market

import (
	"context"
	"sync"
	"time"

	"github.com/zwennaf/dhaniverse/pkg/log"
)

// Scheduler refreshes the market summary and records price snapshots in
// the background while consumers are active. It starts lazily on the
// first activity touch and stops itself once the activity window passes
// with no touches, so an idle deployment performs no provider calls.
type Scheduler struct {
	cache         *SummaryCache
	history       *History
	interval      time.Duration
	snapshotEvery time.Duration
	logger        log.Logger

	// OnRefresh, when set, receives every successfully refreshed
	// summary. The server uses it to broadcast market-summary events.
	OnRefresh func(Summary)

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewScheduler wires a scheduler to the summary cache. history may be
// nil when snapshot recording is not wanted; snapshotEvery sets the
// recording cadence for the history ring.
func NewScheduler(cache *SummaryCache, history *History, interval, snapshotEvery time.Duration, logger log.Logger) *Scheduler {
	if logger == nil {
		logger = log.NewLogger()
	}
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	if snapshotEvery <= 0 {
		snapshotEvery = 10 * time.Minute
	}
	return &Scheduler{
		cache:         cache,
		history:       history,
		interval:      interval,
		snapshotEvery: snapshotEvery,
		logger:        logger.WithComponent("scheduler"),
	}
}

// Touch records consumer activity and starts the refresh loop when it
// is not already running.
func (s *Scheduler) Touch() {
	s.cache.NoteActivity()
	s.EnsureRunning()
}

// EnsureRunning starts the loop if consumers are active. Safe to call
// repeatedly; a running loop is left alone.
func (s *Scheduler) EnsureRunning() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !s.cache.Active() {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.loop(s.stop, s.done)
	s.logger.Info("summary refresh loop started", log.Dur("interval", s.interval))
}

// Running reports whether the refresh loop is live.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop halts the loop and waits for it to exit. Idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

func (s *Scheduler) loop(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// the snapshot recorder shares the loop and its activity gate
	var snapC <-chan time.Time
	if s.history != nil {
		snaps := time.NewTicker(s.snapshotEvery)
		defer snaps.Stop()
		snapC = snaps.C
	}

	for {
		select {
		case <-stop:
			s.setStopped()
			return
		case <-snapC:
			if s.cache.Active() {
				s.snapshotOnce()
			}
		case <-ticker.C:
			if !s.cache.Active() {
				s.logger.Info("no consumer activity, summary refresh loop stopping")
				s.setStopped()
				return
			}
			s.refreshOnce()
		}
	}
}

func (s *Scheduler) setStopped() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

func (s *Scheduler) refreshOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval/2)
	defer cancel()

	sum, err := s.cache.Refresh(ctx)
	if err != nil {
		s.logger.Warn("scheduled summary refresh failed", log.Err(err))
		return
	}
	if s.OnRefresh != nil {
		s.OnRefresh(sum)
	}
}

// snapshotOnce pulls live quotes and appends one entry to the ring.
func (s *Scheduler) snapshotOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.snapshotEvery/2)
	defer cancel()

	stocks, err := s.cache.Quotes(ctx)
	if err != nil {
		s.logger.Warn("price snapshot fetch failed", log.Err(err))
		return
	}
	if len(stocks) == 0 {
		return
	}
	snap := PriceSnapshot{TimestampMs: NowMs(), Prices: make(map[string]float64, len(stocks))}
	for _, st := range stocks {
		snap.Prices[st.Symbol] = st.CurrentPrice
	}
	s.history.Record(snap)
}
