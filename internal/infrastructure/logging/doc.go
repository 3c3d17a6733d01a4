// Package logging provides structured logging using uber/zap.
//
// Two modes:
//   - Production: JSON output for machine parsing
//   - Development: colored console output with stack traces
//
// Subsystems receive a named *zap.Logger through Component so every
// line carries its origin ("window", "ws", "http").
//
// Example Usage:
//
//	logger := logging.FromLevel("debug", true)
//	defer logger.Sync()
//	manager := window.NewManager(opts, logger.Component("window"))
package logging
