// Package ws carries bridge frames over gorilla WebSocket connections.
//
// Each connection gets a read loop (the handler goroutine) and a write
// pump draining a buffered send queue with a ping ticker. JSON frames are
// encoded with sonic; raw pushes go out as binary frames. The identity
// cookie is read from the upgrade request and handed to the window manager
// together with the raw Cookie header.
//
// Example Usage:
//
//	h := ws.NewHandler(manager, tracer, logger, ws.Options{MaxMessageSize: 16 << 20})
//	router.GET("/_bridge/ws/:id", h.HandleConnection)
package ws
