// Package types defines the frames exchanged with the browser.
//
// JSON frames share one Message shape; only the fields relevant to the
// frame type are set. Raw payloads travel as binary frames laid out as
//
//	[0xB1][uint16 big-endian name length][name][payload]
//
// so the browser can hand the payload to the named function as a
// Uint8Array without a base64 detour.
//
// Example Usage:
//
//	frame, err := types.EncodeRaw("receiveRaw", payload)
//	...
//	name, data, err := types.DecodeRaw(frame)
package types
