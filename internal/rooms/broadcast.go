package rooms

import (
	"encoding/json"
	"fmt"
)

// Broadcast appends an event to the room's buffer, trims the buffer to
// its size bound, and wakes every subscriber blocked on the room. The
// room is created on first use. The stored event is returned so callers
// can echo its id.
func (r *Registry) Broadcast(roomID string, kind EventKind, senderID string, payload json.RawMessage) (Event, error) {
	if !validRoomID(roomID) {
		return Event{}, fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	if payload == nil {
		payload = json.RawMessage("{}")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.ensureRoomLocked(roomID)
	if err != nil {
		return Event{}, err
	}
	id, err := r.seq.Next()
	if err != nil {
		return Event{}, err
	}
	ev := Event{
		ID:       id,
		RoomID:   roomID,
		Kind:     kind,
		SenderID: senderID,
		Payload:  payload,
		SentAtMs: NowMs(),
	}
	evBytes, err := json.Marshal(ev)
	if err != nil {
		return Event{}, err
	}

	b := r.db.NewBatch()
	defer b.Close()
	if err := b.Set(eventKey(roomID, id), evBytes, nil); err != nil {
		return Event{}, err
	}

	m.Buffered++
	m.LastActivityMs = ev.SentAtMs
	if m.FirstID == 0 {
		m.FirstID = id
	}
	// Evict oldest events past the bound inside the same batch so the
	// buffer never observably exceeds its size.
	for m.BufferSize > 0 && m.Buffered > m.BufferSize {
		if err := b.Delete(eventKey(roomID, m.FirstID), nil); err != nil {
			return Event{}, err
		}
		m.Buffered--
		m.FirstID, err = r.nextRetainedID(roomID, m.FirstID, id)
		if err != nil {
			return Event{}, err
		}
	}

	metaBytes, err := json.Marshal(m)
	if err != nil {
		return Event{}, err
	}
	if err := b.Set(metaKey(roomID), metaBytes, nil); err != nil {
		return Event{}, err
	}
	if err := r.db.CommitBatch(b); err != nil {
		return Event{}, err
	}

	r.wakeLocked(roomID)
	return ev, nil
}

// nextRetainedID finds the oldest event id strictly greater than after,
// scanning up to newest. Returns newest when nothing in between exists.
func (r *Registry) nextRetainedID(roomID string, after, newest uint64) (uint64, error) {
	next := newest
	err := r.db.ScanPrefix(eventPrefix(roomID), func(k, _ []byte) bool {
		if id := eventIDFromKey(k); id > after {
			next = id
			return false
		}
		return true
	})
	return next, err
}

// wakeLocked closes the room's notify channel and installs a fresh one.
// Callers must hold r.mu.
func (r *Registry) wakeLocked(roomID string) {
	if ch, ok := r.notify[roomID]; ok {
		close(ch)
	}
	r.notify[roomID] = make(chan struct{})
}

// NotifyChan returns the channel that closes on the room's next append.
func (r *Registry) NotifyChan(roomID string) chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.notify[roomID]
	if !ok {
		ch = make(chan struct{})
		r.notify[roomID] = ch
	}
	return ch
}
