// Package provider implements the market data sources behind the stock
// cache: a rate-limited Polygon-style HTTP client for production and a
// deterministic synthetic source for development and tests.
package provider
