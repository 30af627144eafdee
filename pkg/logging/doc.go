// Package logging provides structured logging configuration for the tracer.
//
// This package wraps log/slog so every component logs the same way. It
// supports configurable log levels and output formats.
//
// # Usage
//
// Create a logger with desired configuration:
//
//	logger := logging.New(logging.Config{
//	    Level:  logging.LevelInfo,
//	    Format: logging.FormatText,
//	})
//
//	logger.Info("receiver attached", "peer", identity)
//	logger.Error("send failed", "error", err)
//
// # Integration
//
// Components accept a *slog.Logger via a SetLogger method. When no logger is
// provided they fall back to logging.Nop(), which discards everything.
package logging
