package types

// MessageType identifies a JSON frame exchanged with the browser.
type MessageType string

const (
	// Browser -> native
	MessageCall         MessageType = "call"
	MessageScriptResult MessageType = "script_result"
	MessagePing         MessageType = "ping"

	// Native -> browser
	MessageHello    MessageType = "hello"
	MessageReturn   MessageType = "return"
	MessageScript   MessageType = "script"
	MessageNavigate MessageType = "navigate"
	MessageClose    MessageType = "close"
	MessagePong     MessageType = "pong"
)

// Message is the single JSON frame shape used in both directions. Only the
// fields relevant to Type are populated.
type Message struct {
	Type MessageType `json:"type"`

	// call / return
	ID      uint64   `json:"id,omitempty"`
	Element string   `json:"element,omitempty"`
	Event   int      `json:"event,omitempty"`
	Args    [][]byte `json:"args,omitempty"`
	Kind    string   `json:"kind,omitempty"`
	Value   string   `json:"value,omitempty"`

	// script / script_result. Token 0 means fire-and-forget.
	Token  uint64 `json:"token,omitempty"`
	Script string `json:"script,omitempty"`
	Error  bool   `json:"error,omitempty"`
	Data   string `json:"data,omitempty"`

	// navigate
	URL string `json:"url,omitempty"`

	// hello. Client and connection ids are always present; client 0 is a
	// real id.
	Window       uint64   `json:"window,omitempty"`
	ClientID     uint64   `json:"client_id"`
	ConnectionID uint64   `json:"connection_id"`
	Bindings     []string `json:"bindings,omitempty"`
	Globals      []string `json:"globals,omitempty"`
	Wildcard     bool     `json:"wildcard,omitempty"`
}
