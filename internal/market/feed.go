package market

import (
	"context"
	"encoding/json"

	"github.com/zwennaf/dhaniverse/internal/rooms"
	"github.com/zwennaf/dhaniverse/pkg/log"
)

// StockRoomID maps a symbol to its event room.
func StockRoomID(symbol string) string {
	return rooms.StockRoomPrefix + symbol
}

// Feed bridges market data into rooms: price and news updates go to the
// per-symbol room, summaries to the shared market room.
type Feed struct {
	reg    *rooms.Registry
	cache  *Cache
	logger log.Logger
}

// NewFeed wires the feed to the room registry and stock cache.
func NewFeed(reg *rooms.Registry, cache *Cache, logger log.Logger) *Feed {
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Feed{reg: reg, cache: cache, logger: logger.WithComponent("feed")}
}

type priceUpdatePayload struct {
	Symbol       string       `json:"symbol"`
	Price        float64      `json:"price"`
	Metrics      StockMetrics `json:"metrics"`
	LastUpdateMs int64        `json:"lastUpdateMs"`
}

type newsUpdatePayload struct {
	Symbol    string   `json:"symbol"`
	Headlines []string `json:"headlines"`
}

// PublishStock resolves the symbol through the cache and broadcasts the
// resulting price and news updates to the symbol's room. Returns the
// stock so HTTP handlers can echo it.
func (f *Feed) PublishStock(ctx context.Context, symbol string) (Stock, error) {
	st, err := f.cache.Get(ctx, symbol)
	if err != nil {
		return Stock{}, err
	}
	roomID := StockRoomID(st.Symbol)

	price, _ := json.Marshal(priceUpdatePayload{
		Symbol:       st.Symbol,
		Price:        st.CurrentPrice,
		Metrics:      st.Metrics,
		LastUpdateMs: st.LastUpdateMs,
	})
	if _, err := f.reg.Broadcast(roomID, rooms.KindPriceUpdate, "", price); err != nil {
		f.logger.Warn("price broadcast failed", log.Str("room", roomID), log.Err(err))
	}

	if len(st.News) > 0 {
		news, _ := json.Marshal(newsUpdatePayload{Symbol: st.Symbol, Headlines: st.News})
		if _, err := f.reg.Broadcast(roomID, rooms.KindNewsUpdate, "", news); err != nil {
			f.logger.Warn("news broadcast failed", log.Str("room", roomID), log.Err(err))
		}
	}
	return st, nil
}

// PublishSummary broadcasts a market summary to the shared room.
func (f *Feed) PublishSummary(sum Summary) {
	payload, err := json.Marshal(sum)
	if err != nil {
		return
	}
	if _, err := f.reg.Broadcast(rooms.SummaryRoomID, rooms.KindMarketSummary, "", payload); err != nil {
		f.logger.Warn("summary broadcast failed", log.Err(err))
	}
}
