// Package config holds the server configuration: room admission and
// retention bounds, stock cache and rate limit tuning, market summary
// refresh policy, price history sizing, and provider credentials.
//
// Values load in three layers: built-in defaults, an optional JSON or
// YAML file, then DHANIVERSE_* environment overrides.
package config
