// Package logging provides structured logging for the IoT System API.
//
// It wraps log/slog so every component logs with the same default fields
// (service, version) and honours the configured level and format:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting service", "port", 8080)
//
// Never log bearer tokens or passwords. Use TokenFingerprint when a log line
// needs to correlate a rejected token.
package logging
