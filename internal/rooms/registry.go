package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/zwennaf/dhaniverse/internal/config"
	"github.com/zwennaf/dhaniverse/internal/eventlog"
	pebblestore "github.com/zwennaf/dhaniverse/internal/storage/pebble"
	"github.com/zwennaf/dhaniverse/pkg/log"
)

var (
	// ErrRoomNotFound reports a lookup for a room that does not exist.
	ErrRoomNotFound = errors.New("rooms: room not found")
	// ErrRoomFull reports an admission attempt past the connection limit.
	ErrRoomFull = errors.New("rooms: room at connection capacity")
	// ErrConnectionNotFound reports an operation on an unknown connection.
	ErrConnectionNotFound = errors.New("rooms: connection not found")
	// ErrInvalidRoomID reports a malformed room identifier.
	ErrInvalidRoomID = errors.New("rooms: invalid room id")
)

// StockRoomPrefix marks per-symbol price rooms; they carry a smaller
// event buffer than signaling rooms.
const StockRoomPrefix = "stock_"

// SummaryRoomID is the single shared room carrying market summary events.
const SummaryRoomID = "market_global"

// Registry owns every room: membership, the bounded event buffer, and
// the per-room wakeup channels that long-polling subscribers block on.
// All state is durable; the registry itself holds only the locks and
// notify channels.
type Registry struct {
	mu     sync.Mutex
	db     *pebblestore.DB
	seq    *eventlog.Sequence
	cfg    config.RoomsConfig
	logger log.Logger

	// notify holds one channel per room, closed and replaced on every
	// append so all current waiters wake at once.
	notify map[string]chan struct{}
}

// OpenRegistry loads the event sequence and returns a ready registry.
func OpenRegistry(db *pebblestore.DB, cfg config.RoomsConfig, logger log.Logger) (*Registry, error) {
	seq, err := eventlog.OpenSequence(db, SequenceKey)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.NewLogger()
	}
	return &Registry{
		db:     db,
		seq:    seq,
		cfg:    cfg,
		logger: logger.WithComponent("rooms"),
		notify: make(map[string]chan struct{}),
	}, nil
}

func validRoomID(id string) bool {
	return id != "" && !strings.ContainsAny(id, "/\x00")
}

func (r *Registry) bufferSizeFor(roomID string) int {
	if strings.HasPrefix(roomID, StockRoomPrefix) || roomID == SummaryRoomID {
		return r.cfg.StockBufferSize
	}
	return r.cfg.MaxBufferSize
}

// EnsureRoom creates the room record if absent and returns it.
// Caller must hold no assumptions about prior existence.
func (r *Registry) EnsureRoom(roomID string) (Meta, error) {
	if !validRoomID(roomID) {
		return Meta{}, fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ensureRoomLocked(roomID)
}

func (r *Registry) ensureRoomLocked(roomID string) (Meta, error) {
	m, err := r.loadMeta(roomID)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, ErrRoomNotFound) {
		return Meta{}, err
	}
	now := NowMs()
	m = Meta{
		ID:             roomID,
		CreatedAtMs:    now,
		MaxConnections: r.cfg.MaxConnectionsPerRoom,
		BufferSize:     r.bufferSizeFor(roomID),
		LastActivityMs: now,
	}
	if err := r.storeMeta(m); err != nil {
		return Meta{}, err
	}
	r.logger.Debug("room created", log.Str("room", roomID), log.Int("buffer", m.BufferSize))
	return m, nil
}

// Room returns the room record, or ErrRoomNotFound.
func (r *Registry) Room(roomID string) (Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadMeta(roomID)
}

// AddConnection admits a peer into the room, creating the room when it
// does not exist yet. Returns ErrRoomFull at capacity.
func (r *Registry) AddConnection(roomID, connID, peerID string) (Connection, error) {
	if !validRoomID(roomID) {
		return Connection{}, fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m, err := r.ensureRoomLocked(roomID)
	if err != nil {
		return Connection{}, err
	}
	n, err := r.connCountLocked(roomID)
	if err != nil {
		return Connection{}, err
	}
	if m.MaxConnections > 0 && n >= m.MaxConnections {
		return Connection{}, fmt.Errorf("%w: %s (%d)", ErrRoomFull, roomID, m.MaxConnections)
	}
	now := NowMs()
	c := Connection{ID: connID, PeerID: peerID, RoomID: roomID, CreatedAtMs: now, LastSeenMs: now}
	if err := r.storeConn(c); err != nil {
		return Connection{}, err
	}
	m.LastActivityMs = now
	if err := r.storeMeta(m); err != nil {
		return Connection{}, err
	}
	r.logger.Debug("connection admitted",
		log.Str("room", roomID), log.Str("conn", connID), log.Int("count", n+1))
	return c, nil
}

// RemoveConnection drops a connection. Returns ErrConnectionNotFound
// for unknown ids; callers treating departure as best-effort ignore it.
func (r *Registry) RemoveConnection(roomID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := connKey(roomID, connID)
	if _, err := r.db.Get(key); err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return ErrConnectionNotFound
		}
		return err
	}
	if err := r.db.Delete(key); err != nil {
		return err
	}
	if m, err := r.loadMeta(roomID); err == nil {
		m.LastActivityMs = NowMs()
		return r.storeMeta(m)
	}
	return nil
}

// TouchConnection refreshes a connection's liveness stamp so the
// cleanup sweep keeps it. Returns ErrConnectionNotFound for unknown ids.
func (r *Registry) TouchConnection(roomID, connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, err := r.db.Get(connKey(roomID, connID))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return ErrConnectionNotFound
		}
		return err
	}
	var c Connection
	if err := json.Unmarshal(b, &c); err != nil {
		return err
	}
	c.LastSeenMs = NowMs()
	return r.storeConn(c)
}

// Connections lists the room's current connections.
func (r *Registry) Connections(roomID string) ([]Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.loadMeta(roomID); err != nil {
		return nil, err
	}
	return r.connsLocked(roomID)
}

// Peers lists the distinct peer ids present in the room.
func (r *Registry) Peers(roomID string) ([]string, error) {
	conns, err := r.Connections(roomID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(conns))
	var peers []string
	for _, c := range conns {
		if _, ok := seen[c.PeerID]; ok {
			continue
		}
		seen[c.PeerID] = struct{}{}
		peers = append(peers, c.PeerID)
	}
	return peers, nil
}

func (r *Registry) connsLocked(roomID string) ([]Connection, error) {
	var conns []Connection
	err := r.db.ScanPrefix(connPrefix(roomID), func(_, v []byte) bool {
		var c Connection
		if json.Unmarshal(v, &c) == nil {
			conns = append(conns, c)
		}
		return true
	})
	return conns, err
}

func (r *Registry) connCountLocked(roomID string) (int, error) {
	n := 0
	err := r.db.ScanPrefix(connPrefix(roomID), func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

func (r *Registry) loadMeta(roomID string) (Meta, error) {
	b, err := r.db.Get(metaKey(roomID))
	if err != nil {
		if errors.Is(err, pebblestore.ErrNotFound) {
			return Meta{}, fmt.Errorf("%w: %s", ErrRoomNotFound, roomID)
		}
		return Meta{}, err
	}
	var m Meta
	if err := json.Unmarshal(b, &m); err != nil {
		return Meta{}, err
	}
	return m, nil
}

func (r *Registry) storeMeta(m Meta) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return r.db.Set(metaKey(m.ID), b)
}

func (r *Registry) storeConn(c Connection) error {
	b, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return r.db.Set(connKey(c.RoomID, c.ID), b)
}
