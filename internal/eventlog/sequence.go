package eventlog

import (
	"encoding/binary"
	"errors"
	"sync"

	pebblestore "github.com/zwennaf/dhaniverse/internal/storage/pebble"
)

// Sequence issues globally monotonic event identifiers, starting at 1.
// The last issued value is persisted under a meta key so identifiers
// keep increasing across restarts and replay cursors stay valid.
type Sequence struct {
	mu   sync.Mutex
	db   *pebblestore.DB
	key  []byte
	last uint64
}

// OpenSequence loads the persisted counter, or starts at zero when the
// meta key is absent.
func OpenSequence(db *pebblestore.DB, key []byte) (*Sequence, error) {
	s := &Sequence{db: db, key: append([]byte(nil), key...)}
	val, err := db.Get(s.key)
	switch {
	case err == nil:
		if len(val) != 8 {
			return nil, errors.New("eventlog: corrupt sequence value")
		}
		s.last = binary.BigEndian.Uint64(val)
	case errors.Is(err, pebblestore.ErrNotFound):
		// fresh store
	default:
		return nil, err
	}
	return s, nil
}

// Next issues the next identifier and persists it before returning.
func (s *Sequence) Next() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.last + 1
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], next)
	if err := s.db.Set(s.key, buf[:]); err != nil {
		return 0, err
	}
	s.last = next
	return next, nil
}

// Last returns the most recently issued identifier, zero when none.
func (s *Sequence) Last() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
