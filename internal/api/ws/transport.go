package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/shared/types"
	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// DefaultSendBuffer is the number of frames a connection may have
	// queued before it is dropped as a slow consumer.
	DefaultSendBuffer = 256
)

var (
	// ErrTransportClosed is returned when sending on a closed connection.
	ErrTransportClosed = errors.New("websocket closed")

	// ErrSlowConsumer is returned when the send queue is full; the
	// connection is closed.
	ErrSlowConsumer = errors.New("websocket send queue full")
)

type outbound struct {
	kind int
	data []byte
}

// transport is one WebSocket connection. Writes go through a buffered
// queue drained by writePump so callers never block on the network.
type transport struct {
	conn *websocket.Conn
	send chan outbound

	closeOnce sync.Once
	done      chan struct{}
	finished  chan struct{}
}

func newTransport(conn *websocket.Conn, buffer int) *transport {
	return &transport{
		conn:     conn,
		send:     make(chan outbound, buffer),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
	}
}

// Send queues a JSON frame.
func (t *transport) Send(msg types.Message) error {
	data, err := sonic.Marshal(msg)
	if err != nil {
		return err
	}
	return t.enqueue(outbound{kind: websocket.TextMessage, data: data})
}

// SendBinary queues a binary frame.
func (t *transport) SendBinary(frame []byte) error {
	return t.enqueue(outbound{kind: websocket.BinaryMessage, data: frame})
}

func (t *transport) enqueue(f outbound) error {
	select {
	case <-t.done:
		return ErrTransportClosed
	default:
	}

	select {
	case t.send <- f:
		return nil
	default:
		t.Close()
		return ErrSlowConsumer
	}
}

// Close flushes queued frames, sends a close frame and drops the socket.
func (t *transport) Close() error {
	t.closeOnce.Do(func() { close(t.done) })
	return nil
}

func (t *transport) closed() <-chan struct{} {
	return t.done
}

func (t *transport) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.conn.Close()
		close(t.finished)
	}()

	for {
		select {
		case f := <-t.send:
			if err := t.write(f); err != nil {
				t.Close()
				return
			}
		case <-ticker.C:
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := t.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				t.Close()
				return
			}
		case <-t.done:
			t.flush()
			t.conn.SetWriteDeadline(time.Now().Add(writeWait))
			t.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (t *transport) flush() {
	for {
		select {
		case f := <-t.send:
			if err := t.write(f); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (t *transport) write(f outbound) error {
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(f.kind, f.data)
}
