// Package codec decodes call arguments sent by the browser and encodes the
// value returned to the calling JavaScript promise.
//
// Every argument travels as a byte slot. Strings and raw binary payloads share
// that representation, so a Uint8Array argument may contain any byte value,
// including zero. Numbers and booleans arrive as their textual form and are
// parsed loosely: malformed text decodes to the zero value instead of failing.
//
// Example Usage:
//
//	args := codec.NewArgs(slots)
//	name := args.String(0)
//	count := args.Int(1)
//	payload, size := args.Bytes(2), args.Size(2)
package codec
