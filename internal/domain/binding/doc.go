// Package binding maps (window, element) pairs to native callbacks.
//
// Bindings get a unique positive id; id 0 means "unbound" and never fires.
// An empty element name registers a wildcard that receives every event on
// its window after the specific binding for the same element, if any.
// Binding the same pair again replaces the callback and keeps the id.
//
// Example Usage:
//
//	reg := binding.NewRegistry(logger)
//	reg.Bind(win, "save", onSave)
//	reg.Bind(win, "", onEveryEvent)
//	fired, err := reg.Dispatch(win, "save", build)
package binding
