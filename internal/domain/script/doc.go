// Package script implements the correlation table behind "run JavaScript and
// wait for the result".
//
// Every request gets a token from a monotonically increasing counter, so a
// token is never reused while an older request could still be in flight. A
// request resolves exactly once: by its correlated response, by its target
// closing, by timeout, or by shutdown. Whatever arrives afterwards for the same
// token is dropped.
//
// Example Usage:
//
//	bridge := script.NewBridge(logger)
//	result, err := bridge.Eval(ctx, connID, 5*time.Second, func(token uint64) error {
//	    return conn.SendScript(token, js)
//	})
//	// elsewhere, when the browser answers:
//	bridge.Resolve(token, data, isError)
package script
