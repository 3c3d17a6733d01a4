// Package window ties the bridge together.
//
// A Manager owns every Window, the binding registry, the session table and
// the script correlation table. The transport layer reports connections and
// decoded frames to the Manager; callbacks get an event carrying handles
// back to the window and to the firing connection.
//
// Dispatch is non-blocking by default: each event runs on its own
// goroutine. SetEventBlocking(true) serializes a window's events onto a
// single worker. Event numbers are assigned in arrival order either way.
//
// Example Usage:
//
//	mgr := window.NewManager(window.Options{ScriptTimeout: 5 * time.Second}, logger)
//	win := mgr.NewWindow()
//	win.Bind("save", func(e *event.Event) {
//		e.ReturnString("saved " + e.String(0))
//	})
//	url, err := win.StartServer("index.html")
//	...
//	mgr.Wait()
package window
