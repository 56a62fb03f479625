// Package log provides evbus's structured logging facade and utilities.
//
// # Overview
//
// The package exposes a small Logger interface with leveled methods and a
// Field type for structured context. Internally it is backed by log/slog via
// a bridge handler that feeds our formatter/outputs pipeline.
//
// Quick start
//
//	l := log.NewLogger(
//	    log.WithLevel(log.InfoLevel),
//	    log.WithFormatter(&log.TextFormatter{}),
//	    log.WithOutput(log.NewConsoleOutput()),
//	)
//	l = l.With(log.Component("eventqueue"), log.Queue("q1"))
//	l.Warn("filter evaluation failed", log.Err(err))
//
// # Configuration
//
// Use ApplyConfig to build a logger from a declarative Config, supporting JSON
// or text formatting, multiple outputs (console, file, null), key redaction
// and per-message sampling.
//
// # Interop
//
// ToStdLogger and RedirectStdLog adapt the facade for libraries expecting the
// standard *log.Logger. BaseLogger.Slog returns a *slog.Logger view.
package log
