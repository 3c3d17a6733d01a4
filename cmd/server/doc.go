// Package main is the webbridge demo server.
//
// It opens one window and binds three callbacks to it:
//   - save: stores a note private to the calling client
//   - saveAll: stores a shared note and pushes it to every open page
//   - exit_app: shuts the bridge down
//
// A wildcard binding logs connects and disconnects and restores a client's
// notes when it reconnects.
//
// Configuration:
//   - Environment variables (12-factor), see internal/infrastructure/config
//   - --config for a TOML or YAML file
//   - CLI flags override both
//
// Usage:
//
//	# Every browser gets its own client id and notes
//	./server --multi-client --port 8080
//
//	# Serve a page from a folder
//	./server --root ./ui --page index.html --dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
