// Package logging provides structured logging for the enteliWEB service.
//
// It wraps log/slog so every entry carries the service name and build
// version, in JSON for production or text for development.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	client.SetLogger(logger.Component("gateway"))
//
// # Security
//
// Never log the gateway password, the session cookie value or the
// anti-forgery token.
package logging
