// Package logging provides structured logging for the autopatch core.
//
// It wraps log/slog so every component logs the same way: JSON for
// production, text for development, default service/version fields on
// every entry, and level-based filtering.
//
// Configured via the logging section of config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	logger.Info("controller starting", "units", 4)
//	logger.Error("broker unreachable", "error", err)
//
// Never log broker credentials or API tokens.
package logging
