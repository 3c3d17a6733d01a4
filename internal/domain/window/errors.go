package window

import "errors"

var (
	// ErrUnknownWindow is returned for ids that name no live window.
	ErrUnknownWindow = errors.New("unknown window")

	// ErrWindowExists is returned by NewWindowID when the id is taken.
	ErrWindowExists = errors.New("window id already in use")

	// ErrNoServer is returned by Show and StartServer before a server is
	// attached.
	ErrNoServer = errors.New("no server attached")

	// ErrUnknownMessage is returned for frames the native side does not
	// accept.
	ErrUnknownMessage = errors.New("unknown message type")

	// ErrClosed is returned once the manager has exited.
	ErrClosed = errors.New("bridge closed")
)
