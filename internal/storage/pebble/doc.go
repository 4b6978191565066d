// Package pebblestore wraps Pebble with the durability policy and the
// small key/value surface the rest of the server builds on: single-key
// reads and writes, batched multi-key commits, and ordered prefix scans.
package pebblestore
