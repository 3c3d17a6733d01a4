package event

import "errors"

// ErrNoClient is returned when an event has no connection to answer on.
var ErrNoClient = errors.New("event has no client connection")
