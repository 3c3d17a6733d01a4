// Package session tracks the logical clients and live connections of every
// window.
//
// A Client is an end user. In multi-client mode its identity comes from a
// browser cookie and survives reconnects; otherwise each window has a single
// implicit client. A Connection is one live WebSocket and gets a fresh id on
// every handshake, so several tabs of the same client show up as several
// connections.
//
// Clients are never removed, which is what lets a reconnect with the same
// cookie restore the same client id. Counters are updated under the table lock
// before the caller fires the matching lifecycle event, so callbacks always
// observe post-transition values.
//
// Example Usage:
//
//	table := session.NewTable(session.Mode{MultiClient: true, UseCookies: true})
//	res, err := table.Connect(win, cookie, rawCookies)
//	...
//	conn, stats, err := table.Disconnect(res.Connection.ID)
package session
