// Package config provides 12-factor configuration for the bridge server.
//
// Values are layered: Default, then an optional TOML or YAML file
// (LoadFile), then environment variables. Only variables that are set
// override earlier layers.
//
// Configuration Sections:
//   - Server: listen address and shutdown timeout
//   - Bridge: client identity mode, dispatch mode, script timeout, message size
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting
//   - Metrics: whether /metrics is served
//
// Example Usage:
//
//	cfg, err := config.LoadFile("webbridge.toml")
//	if err != nil {
//		return err
//	}
//	fmt.Printf("listening on %s\n", cfg.Server.Addr())
//
// Environment Variables:
//   - PORT, HOST, SHUTDOWN_TIMEOUT
//   - BRIDGE_MULTI_CLIENT, BRIDGE_USE_COOKIES, BRIDGE_EVENT_BLOCKING
//   - BRIDGE_SCRIPT_TIMEOUT, BRIDGE_MAX_MESSAGE_SIZE, BRIDGE_ROOT_FOLDER
//   - BRIDGE_DISCONNECT_GRACE
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - METRICS_ENABLED
package config
