package types

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHelloKeepsZeroClientID(t *testing.T) {
	data, err := sonic.Marshal(Message{Type: MessageHello, Window: 1, ClientID: 0, ConnectionID: 3})
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, sonic.Unmarshal(data, &fields))
	assert.Contains(t, fields, "client_id")
	assert.EqualValues(t, 0, fields["client_id"])
	assert.EqualValues(t, 3, fields["connection_id"])
	assert.NotContains(t, fields, "wildcard")
}
