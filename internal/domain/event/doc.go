// Package event defines the record handed to native callbacks when the
// browser calls a bound function or a lifecycle transition happens.
//
// An Event is built fresh for every callback invocation. It carries a
// back-reference to the window and to the connection that fired it, but owns
// neither. Return values written through the Return* methods land in a slot
// shared by every callback fired for the same incoming call; the last write
// wins and the dispatcher delivers exactly one response.
package event
