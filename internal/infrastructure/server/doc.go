// Package server assembles the bridge: configuration, logging, metrics,
// tracing, the window manager and the gin router serving pages, the client
// script and the WebSocket endpoint.
//
// The listener starts lazily the first time a window is shown, so a
// program can bind callbacks before anything is reachable.
//
// Routes:
//   - GET /                   redirect to the first window
//   - GET /health             manager statistics
//   - GET /webbridge.js       browser client
//   - GET /win/:id/*filepath  window page and root-folder files
//   - GET /_bridge/ws/:id     WebSocket
//   - GET /metrics            Prometheus, when enabled
//
// Example Usage:
//
//	srv, err := server.New(config.LoadOrDefault(), logging.NewDefault())
//	if err != nil {
//		return err
//	}
//	win := srv.Manager().NewWindow()
//	win.Bind("ping", func(e *event.Event) { e.ReturnString("pong") })
//	if _, err := win.Show("<html><body>hi</body></html>"); err != nil {
//		return err
//	}
//	return srv.Run(ctx)
package server
