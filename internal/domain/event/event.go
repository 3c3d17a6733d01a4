package event

import (
	"context"
	"sync"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/domain/codec"
)

// Type classifies an event.
type Type int

const (
	Disconnected Type = iota
	Connected
	MouseClick
	Navigation
	Callback
)

// String returns the string representation of the type
func (t Type) String() string {
	switch t {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case MouseClick:
		return "mouse_click"
	case Navigation:
		return "navigation"
	case Callback:
		return "callback"
	default:
		return "unknown"
	}
}

// Target is the native handle used to reach the browser, either a single
// connection or every connection of a window.
type Target interface {
	ID() uint64
	Run(script string) error
	Script(ctx context.Context, script string, timeout time.Duration, buf []byte) (int, bool)
	SendRaw(function string, data []byte) error
	Navigate(url string) error
	Close() error
}

// Response collects the value returned to the calling promise.
type Response struct {
	mu     sync.Mutex
	result codec.Result
}

// NewResponse creates an empty response slot.
func NewResponse() *Response {
	return &Response{}
}

// Set stores r, replacing any previous value.
func (r *Response) Set(result codec.Result) {
	r.mu.Lock()
	r.result = result
	r.mu.Unlock()
}

// Result returns the last stored value.
func (r *Response) Result() codec.Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Event describes one dispatched call.
type Event struct {
	codec.Args

	WindowID     uint64
	ClientID     uint64
	ConnectionID uint64
	Cookies      string
	BindID       uint64
	Type         Type
	Element      string
	Number       uint64

	window   Target
	client   Target
	response *Response
	userCtx  any
}

// Params holds everything needed to build an Event.
type Params struct {
	WindowID     uint64
	ClientID     uint64
	ConnectionID uint64
	Cookies      string
	BindID       uint64
	Type         Type
	Element      string
	Number       uint64
	Args         codec.Args
	Window       Target
	Client       Target
	Response     *Response
	Context      any
}

// New builds an event. A nil Response gets a private slot.
func New(p Params) *Event {
	if p.Response == nil {
		p.Response = NewResponse()
	}
	return &Event{
		Args:         p.Args,
		WindowID:     p.WindowID,
		ClientID:     p.ClientID,
		ConnectionID: p.ConnectionID,
		Cookies:      p.Cookies,
		BindID:       p.BindID,
		Type:         p.Type,
		Element:      p.Element,
		Number:       p.Number,
		window:       p.Window,
		client:       p.Client,
		response:     p.Response,
		userCtx:      p.Context,
	}
}

// Window returns the window that fired the event.
func (e *Event) Window() Target { return e.window }

// Client returns the connection that fired the event.
func (e *Event) Client() Target { return e.client }

// Context returns the value attached with SetContext for this element.
func (e *Event) Context() any { return e.userCtx }

// Result returns the value currently set for the calling promise.
func (e *Event) Result() codec.Result { return e.response.Result() }

// ReturnInt answers the calling promise with an integer.
func (e *Event) ReturnInt(n int64) { e.response.Set(codec.Int(n)) }

// ReturnFloat answers the calling promise with a float.
func (e *Event) ReturnFloat(f float64) { e.response.Set(codec.Float(f)) }

// ReturnString answers the calling promise with a string.
func (e *Event) ReturnString(s string) { e.response.Set(codec.String(s)) }

// ReturnBool answers the calling promise with a boolean.
func (e *Event) ReturnBool(b bool) { e.response.Set(codec.Bool(b)) }

// RunClient runs JavaScript on the firing connection without waiting.
func (e *Event) RunClient(script string) error {
	if e.client == nil {
		return ErrNoClient
	}
	return e.client.Run(script)
}

// ScriptClient runs JavaScript on the firing connection and waits for the
// result, which is copied into buf. See the window package for semantics.
func (e *Event) ScriptClient(ctx context.Context, script string, timeout time.Duration, buf []byte) (int, bool) {
	if e.client == nil {
		return copy(buf, "disconnected"), false
	}
	return e.client.Script(ctx, script, timeout, buf)
}

// SendRawClient pushes a binary payload to the firing connection.
func (e *Event) SendRawClient(function string, data []byte) error {
	if e.client == nil {
		return ErrNoClient
	}
	return e.client.SendRaw(function, data)
}

// NavigateClient points the firing connection at url.
func (e *Event) NavigateClient(url string) error {
	if e.client == nil {
		return ErrNoClient
	}
	return e.client.Navigate(url)
}

// CloseClient closes the firing connection.
func (e *Event) CloseClient() error {
	if e.client == nil {
		return ErrNoClient
	}
	return e.client.Close()
}
