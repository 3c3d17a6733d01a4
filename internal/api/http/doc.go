// Package http serves the browser side of the bridge.
//
// Routes:
//
//	GET /                       redirect to the first window
//	GET /win/:id/*filepath      window content and root-folder files
//	GET /webbridge.js           client script
//	GET /health                 status and counters
//
// HTML responses get the client script tag injected when missing. In
// multi-client cookie mode the page load issues the identity cookie the
// WebSocket handshake later presents.
package http
