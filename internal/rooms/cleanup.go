package rooms

import (
	"encoding/json"

	"github.com/zwennaf/dhaniverse/pkg/log"
)

// CleanupStats reports what a sweep removed.
type CleanupStats struct {
	ConnectionsRemoved int `json:"connectionsRemoved"`
	EventsRemoved      int `json:"eventsRemoved"`
	RoomsRemoved       int `json:"roomsRemoved"`
}

// Cleanup removes connections that have not been seen within the
// connection timeout, events older than the retention age, and rooms
// left with neither once their last activity is also past the
// connection timeout. The sweep is idempotent: a second pass with no
// intervening activity removes nothing.
func (r *Registry) Cleanup() (CleanupStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := NowMs()
	connDeadline := now - r.cfg.ConnectionTimeoutMs
	eventDeadline := now - r.cfg.MaxEventAgeMs

	var stats CleanupStats
	var roomIDs []string
	pfx := metaPrefix()
	if err := r.db.ScanPrefix(pfx, func(k, _ []byte) bool {
		roomIDs = append(roomIDs, string(k[len(pfx):]))
		return true
	}); err != nil {
		return stats, err
	}

	for _, roomID := range roomIDs {
		m, err := r.loadMeta(roomID)
		if err != nil {
			continue
		}

		b := r.db.NewBatch()
		removedConns, removedEvents := 0, 0
		liveConns := 0

		err = r.db.ScanPrefix(connPrefix(roomID), func(k, v []byte) bool {
			var c Connection
			if json.Unmarshal(v, &c) != nil || c.LastSeenMs < connDeadline {
				_ = b.Delete(k, nil)
				removedConns++
			} else {
				liveConns++
			}
			return true
		})
		if err != nil {
			b.Close()
			return stats, err
		}

		firstID := uint64(0)
		err = r.db.ScanPrefix(eventPrefix(roomID), func(k, v []byte) bool {
			var ev Event
			if json.Unmarshal(v, &ev) != nil || ev.SentAtMs < eventDeadline {
				_ = b.Delete(k, nil)
				removedEvents++
			} else if firstID == 0 {
				firstID = eventIDFromKey(k)
			}
			return true
		})
		if err != nil {
			b.Close()
			return stats, err
		}

		remaining := m.Buffered - removedEvents
		if remaining < 0 {
			remaining = 0
		}
		idle := m.LastActivityMs < connDeadline
		if liveConns == 0 && remaining == 0 && idle {
			_ = b.Delete(metaKey(roomID), nil)
			stats.RoomsRemoved++
			delete(r.notify, roomID)
		} else if removedEvents > 0 {
			m.Buffered = remaining
			m.FirstID = firstID
			if mb, err := json.Marshal(m); err == nil {
				_ = b.Set(metaKey(roomID), mb, nil)
			}
		}

		if err := r.db.CommitBatch(b); err != nil {
			b.Close()
			return stats, err
		}
		b.Close()
		stats.ConnectionsRemoved += removedConns
		stats.EventsRemoved += removedEvents
	}

	if stats.ConnectionsRemoved+stats.EventsRemoved+stats.RoomsRemoved > 0 {
		r.logger.Info("cleanup sweep",
			log.Int("connections", stats.ConnectionsRemoved),
			log.Int("events", stats.EventsRemoved),
			log.Int("rooms", stats.RoomsRemoved))
	}
	return stats, nil
}
