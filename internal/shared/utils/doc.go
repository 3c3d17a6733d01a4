// Package utils holds small validation and hashing helpers shared by the
// HTTP and WebSocket layers.
package utils
