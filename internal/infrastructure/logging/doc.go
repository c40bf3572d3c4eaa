// Package logging provides structured logging for the fan bridge.
//
// It wraps log/slog so every component logs through one handler with
// the same default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("bridge started", "broker", addr)
//	logger.With("component", "mqtt").Warn("connection lost", "error", err)
//
// Never log broker passwords.
package logging
