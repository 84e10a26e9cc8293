// Package logging provides structured logging for Fleet Core.
//
// It wraps log/slog so every component logs the same way: JSON in
// production, text for development, with service and version fields on
// every entry.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("starting", "transport", cfg.Management.Transport)
//
// Never log request bodies or credentials; device payloads may carry secrets.
package logging
