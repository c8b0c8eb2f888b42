// Package logging provides structured logging for gpioremote.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the CLI and the backend.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # json, text
//	  output: "stderr"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("session connected", "endpoint", endpoint)
//	logger.Error("audit write failed", "error", err)
//
// Never log broker passwords or the session token.
package logging
