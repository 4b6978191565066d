package rooms

import (
	"encoding/json"

	"github.com/cockroachdb/pebble"
)

// EventsSince returns the room's retained events with id greater than
// afterID, in ascending id order. afterID zero replays the whole buffer.
// A cursor at or beyond the newest event yields an empty slice. limit
// bounds the result when positive.
func (r *Registry) EventsSince(roomID string, afterID uint64, limit int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.loadMeta(roomID); err != nil {
		return nil, err
	}

	lower := eventKey(roomID, afterID+1)
	upper := append(eventPrefix(roomID), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
	it, err := r.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer it.Close()

	var out []Event
	for it.First(); it.Valid(); it.Next() {
		var ev Event
		if err := json.Unmarshal(it.Value(), &ev); err != nil {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, it.Error()
}

// GlobalStats aggregates every room for the stats endpoint.
type GlobalStats struct {
	Rooms          []string `json:"rooms"`
	Connections    int      `json:"connections"`
	BufferedEvents int      `json:"bufferedEvents"`
	LastEventID    uint64   `json:"lastEventId"`
}

// Stats summarizes the whole registry: room ids, total connections and
// buffered events, and the newest issued event id.
func (r *Registry) Stats() (GlobalStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := GlobalStats{LastEventID: r.seq.Last()}
	pfx := metaPrefix()
	err := r.db.ScanPrefix(pfx, func(k, v []byte) bool {
		var m Meta
		if json.Unmarshal(v, &m) == nil {
			st.BufferedEvents += m.Buffered
		}
		st.Rooms = append(st.Rooms, string(k[len(pfx):]))
		return true
	})
	if err != nil {
		return GlobalStats{}, err
	}
	for _, roomID := range st.Rooms {
		n, err := r.connCountLocked(roomID)
		if err != nil {
			return GlobalStats{}, err
		}
		st.Connections += n
	}
	return st, nil
}

// RoomStats summarizes a room for the stats endpoint.
func (r *Registry) RoomStats(roomID string) (Stats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.loadMeta(roomID)
	if err != nil {
		return Stats{}, err
	}
	n, err := r.connCountLocked(roomID)
	if err != nil {
		return Stats{}, err
	}
	st := Stats{RoomID: roomID, Connections: n, BufferedEvents: m.Buffered}
	err = r.db.ScanPrefix(eventPrefix(roomID), func(_, v []byte) bool {
		var ev Event
		if json.Unmarshal(v, &ev) == nil {
			if st.OldestEventMs == 0 {
				st.OldestEventMs = ev.SentAtMs
			}
			st.NewestEventMs = ev.SentAtMs
		}
		return true
	})
	return st, err
}
