package rooms

import (
	"encoding/json"
	"time"
)

// EventKind labels what a room event carries.
type EventKind string

const (
	KindPeerJoined    EventKind = "peer-joined"
	KindPeerLeft      EventKind = "peer-left"
	KindOffer         EventKind = "offer"
	KindAnswer        EventKind = "answer"
	KindIceCandidate  EventKind = "ice-candidate"
	KindRoomState     EventKind = "room-state"
	KindPriceUpdate   EventKind = "price-update"
	KindNewsUpdate    EventKind = "news-update"
	KindMarketSummary EventKind = "market-summary"
)

// Event is a single buffered room event. IDs are globally monotonic and
// double as SSE replay cursors.
type Event struct {
	ID       uint64          `json:"id"`
	RoomID   string          `json:"roomId"`
	Kind     EventKind       `json:"kind"`
	SenderID string          `json:"senderId,omitempty"`
	Payload  json.RawMessage `json:"payload"`
	SentAtMs int64           `json:"sentAtMs"`
}

// Connection is an admitted subscriber of a room.
type Connection struct {
	ID          string `json:"id"`
	PeerID      string `json:"peerId"`
	RoomID      string `json:"roomId"`
	CreatedAtMs int64  `json:"createdAtMs"`
	LastSeenMs  int64  `json:"lastSeenMs"`
}

// Meta is the durable per-room record.
type Meta struct {
	ID             string `json:"id"`
	CreatedAtMs    int64  `json:"createdAtMs"`
	MaxConnections int    `json:"maxConnections"`
	BufferSize     int    `json:"bufferSize"`
	// LastActivityMs tracks the newest broadcast, admission, or
	// departure. Cleanup deletes an empty room only once this is past
	// the connection timeout.
	LastActivityMs int64 `json:"lastActivityMs"`
	// Buffered counts events currently retained for the room. Kept in
	// the meta record so appends can trim without a full range scan.
	Buffered int `json:"buffered"`
	// FirstID is the oldest retained event id, zero when the buffer is
	// empty.
	FirstID uint64 `json:"firstId"`
}

// Stats is a point-in-time view of a room for the stats endpoint.
type Stats struct {
	RoomID         string `json:"roomId"`
	Connections    int    `json:"connections"`
	BufferedEvents int    `json:"bufferedEvents"`
	OldestEventMs  int64  `json:"oldestEventMs,omitempty"`
	NewestEventMs  int64  `json:"newestEventMs,omitempty"`
}

// NowMs is the clock used for event timestamps and liveness checks.
// Tests replace it to drive timeouts deterministically.
var NowMs = func() int64 { return time.Now().UnixMilli() }
