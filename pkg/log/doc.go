// Package log provides dhaniverse's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field-based attribute API. Loggers are constructed explicitly and passed
// via dependency injection; there is no package-level default logger.
//
//	logger := log.NewLogger(
//		log.WithLevel(log.InfoLevel),
//		log.WithFormatter(&log.TextFormatter{}),
//	)
//	logger = logger.With(log.Component("rooms"))
//	logger.Info("connection admitted", log.Str("room", roomID))
//
// RedirectStdLog installs a slog bridge so libraries that log through the
// standard library (Pebble, net/http) share the same formatter and outputs.
package log
