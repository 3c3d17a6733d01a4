package event

import (
	"context"
	"testing"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/domain/codec"
	"github.com/stretchr/testify/assert"
)

func TestReturnLastWriteWins(t *testing.T) {
	resp := NewResponse()
	specific := New(Params{Element: "calc", Response: resp})
	wildcard := New(Params{Element: "calc", Response: resp})

	specific.ReturnInt(10)
	wildcard.ReturnString("twenty")

	assert.Equal(t, codec.String("twenty"), resp.Result())
	assert.Equal(t, specific.Result(), wildcard.Result())
}

func TestEventArgsAreEmbedded(t *testing.T) {
	e := New(Params{Args: codec.NewArgs([][]byte{[]byte("21"), []byte("2")})})

	assert.Equal(t, 2, e.Count())
	assert.Equal(t, int64(42), e.Int(0)*e.Int(1))
}

func TestEventWithoutClient(t *testing.T) {
	e := New(Params{Type: Callback})

	assert.ErrorIs(t, e.RunClient("x"), ErrNoClient)
	assert.ErrorIs(t, e.SendRawClient("f", nil), ErrNoClient)
	assert.ErrorIs(t, e.NavigateClient("/"), ErrNoClient)
	assert.ErrorIs(t, e.CloseClient(), ErrNoClient)

	buf := make([]byte, 32)
	n, ok := e.ScriptClient(context.Background(), "return 1", time.Second, buf)
	assert.False(t, ok)
	assert.Equal(t, "disconnected", string(buf[:n]))
}

func TestTypeString(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "disconnected", Disconnected.String())
	assert.Equal(t, "callback", Callback.String())
	assert.Equal(t, "unknown", Type(42).String())
}
