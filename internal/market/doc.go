// Package market implements the data side of the server: the durable
// per-symbol stock cache with its access-count rate limiter, the shared
// market summary with its activity-gated refresh scheduler, the rolling
// price snapshot ring, and the feed that turns market data into room
// events.
package market
