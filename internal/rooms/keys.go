package rooms

import "encoding/binary"

// Key layout. Room ids contain no '/' (enforced at admission), so plain
// string concatenation keeps prefixes unambiguous. Event keys end in a
// big-endian id so lexicographic iteration is id order.
//
//	rm/<roomID>                room meta (JSON)
//	rc/<roomID>/<connID>       connection (JSON)
//	re/<roomID>/<be8 eventID>  event (JSON)
//	meta/eventseq              global event sequence (BE8)

var SequenceKey = []byte("meta/eventseq")

func metaKey(roomID string) []byte {
	return []byte("rm/" + roomID)
}

func metaPrefix() []byte { return []byte("rm/") }

func connKey(roomID, connID string) []byte {
	return []byte("rc/" + roomID + "/" + connID)
}

func connPrefix(roomID string) []byte {
	return []byte("rc/" + roomID + "/")
}

func eventKey(roomID string, id uint64) []byte {
	k := make([]byte, 0, len(roomID)+12)
	k = append(k, "re/"...)
	k = append(k, roomID...)
	k = append(k, '/')
	var be [8]byte
	binary.BigEndian.PutUint64(be[:], id)
	return append(k, be[:]...)
}

func eventPrefix(roomID string) []byte {
	return []byte("re/" + roomID + "/")
}

// eventIDFromKey recovers the id from an event key. Returns zero for a
// malformed key.
func eventIDFromKey(key []byte) uint64 {
	if len(key) < 8 {
		return 0
	}
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
