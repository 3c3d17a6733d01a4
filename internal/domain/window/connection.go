package window

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/domain/script"
	"github.com/GriffinCanCode/webbridge/internal/shared/types"
)

// Transport delivers frames to one browser connection. Implementations must
// be safe for concurrent use.
type Transport interface {
	Send(msg types.Message) error
	SendBinary(frame []byte) error
	Close() error
}

// connection is the native handle for one live transport session.
type connection struct {
	id        uint64
	clientID  uint64
	window    uint64
	cookies   string
	transport Transport
	mgr       *Manager

	// ready is closed once the CONNECTED callbacks have returned.
	ready     chan struct{}
	closeOnce sync.Once
}

func (c *connection) ID() uint64 { return c.id }

func (c *connection) Run(js string) error {
	c.mgr.logger.Debug("Running script on connection",
		scriptField(js),
		connField(c.id),
	)
	return c.send(types.Message{Type: types.MessageScript, Script: js})
}

func (c *connection) Script(ctx context.Context, js string, timeout time.Duration, buf []byte) (int, bool) {
	data, err := c.Eval(ctx, js, timeout)
	return script.Fill(buf, script.Message(err, data)), err == nil
}

// Eval runs js and returns its result as a string.
func (c *connection) Eval(ctx context.Context, js string, timeout time.Duration) (string, error) {
	if !c.mgr.live(c.id) {
		return script.ErrEvalTargetClosed.Error(), script.ErrEvalTargetClosed
	}
	return c.mgr.eval(ctx, c, js, timeout)
}

func (c *connection) SendRaw(function string, data []byte) error {
	frame, err := types.EncodeRaw(function, data)
	if err != nil {
		return err
	}
	if err := c.transport.SendBinary(frame); err != nil {
		return fmt.Errorf("connection %d: %w", c.id, err)
	}
	if c.mgr.metrics != nil {
		c.mgr.metrics.AddRawBytes(len(data))
		c.mgr.metrics.RecordWSMessage("out", "raw")
	}
	return nil
}

func (c *connection) Navigate(url string) error {
	return c.send(types.Message{Type: types.MessageNavigate, URL: url})
}

// Close asks the browser to close and drops the transport. The transport
// layer reports the disconnect.
func (c *connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		_ = c.transport.Send(types.Message{Type: types.MessageClose})
		err = c.transport.Close()
	})
	return err
}

func (c *connection) send(msg types.Message) error {
	if err := c.transport.Send(msg); err != nil {
		return fmt.Errorf("connection %d: %w", c.id, err)
	}
	if c.mgr.metrics != nil {
		c.mgr.metrics.RecordWSMessage("out", string(msg.Type))
	}
	return nil
}
