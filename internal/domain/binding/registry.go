package binding

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/GriffinCanCode/webbridge/internal/domain/event"
	"go.uber.org/zap"
)

// ErrUnresolvedBinding is returned when an event matches no callback.
var ErrUnresolvedBinding = errors.New("no binding for event")

// Handler is a native callback.
type Handler func(e *event.Event)

// Binding links an element on a window to a handler.
type Binding struct {
	ID      uint64
	Window  uint64
	Element string
	Handler Handler
}

// IsWildcard reports whether the binding receives every event.
func (b Binding) IsWildcard() bool {
	return b.Element == ""
}

type key struct {
	window  uint64
	element string
}

// Registry holds every binding of every window.
type Registry struct {
	mu        sync.RWMutex
	nextID    uint64
	byID      map[uint64]Binding
	byElement map[key]uint64
	contexts  map[key]any
	logger    *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		byID:      make(map[uint64]Binding),
		byElement: make(map[key]uint64),
		contexts:  make(map[key]any),
		logger:    logger,
	}
}

// Bind registers handler for element on window and returns the binding id.
func (r *Registry) Bind(window uint64, element string, handler Handler) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	k := key{window: window, element: element}
	id, exists := r.byElement[k]
	if !exists {
		r.nextID++
		id = r.nextID
		r.byElement[k] = id
	}
	r.byID[id] = Binding{ID: id, Window: window, Element: element, Handler: handler}

	r.logger.Debug("Bound element",
		zap.Uint64("window", window),
		zap.String("element", element),
		zap.Uint64("bind_id", id),
		zap.Bool("replaced", exists),
	)
	return id
}

// Get returns the binding with the given id.
func (r *Registry) Get(id uint64) (Binding, bool) {
	if id == 0 {
		return Binding{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.byID[id]
	return b, ok
}

// Lookup returns the id bound to (window, element), or 0.
func (r *Registry) Lookup(window uint64, element string) uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byElement[key{window: window, element: element}]
}

// Resolve returns the bindings that fire for element on window, specific
// first and wildcard second.
func (r *Registry) Resolve(window uint64, element string) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Binding, 0, 2)
	if element != "" {
		if id, ok := r.byElement[key{window: window, element: element}]; ok {
			out = append(out, r.byID[id])
		}
	}
	if id, ok := r.byElement[key{window: window}]; ok {
		out = append(out, r.byID[id])
	}
	return out
}

// Elements lists the named (non-wildcard) elements bound on window, sorted.
func (r *Registry) Elements(window uint64) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var names []string
	for k := range r.byElement {
		if k.window == window && k.element != "" {
			names = append(names, k.element)
		}
	}
	sort.Strings(names)
	return names
}

// Count returns the number of bindings on window.
func (r *Registry) Count(window uint64) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for k := range r.byElement {
		if k.window == window {
			n++
		}
	}
	return n
}

// SetContext attaches an opaque value to (window, element).
func (r *Registry) SetContext(window uint64, element string, ctx any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contexts[key{window: window, element: element}] = ctx
}

// Context returns the value attached to (window, element).
func (r *Registry) Context(window uint64, element string) any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.contexts[key{window: window, element: element}]
}

// RemoveWindow drops every binding and context of window.
func (r *Registry) RemoveWindow(window uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for k, id := range r.byElement {
		if k.window == window {
			delete(r.byElement, k)
			delete(r.byID, id)
			removed++
		}
	}
	for k := range r.contexts {
		if k.window == window {
			delete(r.contexts, k)
		}
	}
	return removed
}

// Reset drops everything.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[uint64]Binding)
	r.byElement = make(map[key]uint64)
	r.contexts = make(map[key]any)
}

// Dispatch runs every binding matching (window, element) in order. build
// creates the event handed to each binding. The number of callbacks fired is
// returned; ErrUnresolvedBinding when none matched. A panicking callback is
// recovered and logged so the next binding still runs.
func (r *Registry) Dispatch(window uint64, element string, build func(b Binding) *event.Event) (int, error) {
	bindings := r.Resolve(window, element)
	if len(bindings) == 0 {
		return 0, fmt.Errorf("%w: window %d element %q", ErrUnresolvedBinding, window, element)
	}

	fired := 0
	for _, b := range bindings {
		if b.ID == 0 || b.Handler == nil {
			continue
		}
		r.invoke(b, build(b))
		fired++
	}
	return fired, nil
}

func (r *Registry) invoke(b Binding, e *event.Event) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("Callback panicked",
				zap.Uint64("window", b.Window),
				zap.String("element", b.Element),
				zap.Uint64("bind_id", b.ID),
				zap.Any("panic", rec),
			)
		}
	}()
	b.Handler(e)
}
