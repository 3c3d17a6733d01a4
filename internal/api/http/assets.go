package http

import _ "embed"

// ClientScriptPath is where the client script is served.
const ClientScriptPath = "/webbridge.js"

//go:embed assets/webbridge.js
var clientScript []byte

// ClientScript returns the browser side of the bridge.
func ClientScript() []byte {
	return clientScript
}
