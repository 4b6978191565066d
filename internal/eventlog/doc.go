// Package eventlog provides the durable monotonic counter behind room
// event identifiers. Identifiers are global, never reused, and survive
// process restarts.
package eventlog
