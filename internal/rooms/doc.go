// Package rooms implements the room registry at the heart of the
// server: bounded per-room event buffers with globally monotonic ids,
// connection admission, replay from a client-supplied cursor, blocking
// tails for live subscribers, and the periodic cleanup sweep that
// retires stale connections, aged events, and empty rooms.
package rooms
