// Package headless is a browser stand-in for driving a bridge without a
// browser. It fetches a window page with resty, keeps the cookies it was
// issued, finds the client script the page loads with goquery and runs that
// script in a goja VM.
//
// The VM gets only what the client script touches: a WebSocket backed by a
// gorilla connection, location, a document that collects click listeners,
// timers, TextEncoder/TextDecoder and btoa/atob. Everything else, from
// exposing bindings to reconnecting, is the served script's own behavior.
//
// Example Usage:
//
//	c, err := headless.Open(ctx, url, headless.Options{})
//	if err != nil {
//		return err
//	}
//	defer c.Close()
//	ret, err := c.CallStrings(ctx, "save", "draft")
package headless
