package script

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrEvalTimeout            = errors.New("timeout")
	ErrEvalTargetClosed       = errors.New("disconnected")
	ErrWindowClosed     error = targetClosed("window closed")
	ErrShuttingDown           = errors.New("shutting down")
	ErrScriptError            = errors.New("script error")
)

// targetClosed is a closed-target error that still matches
// ErrEvalTargetClosed.
type targetClosed string

func (e targetClosed) Error() string        { return string(e) }
func (e targetClosed) Is(target error) bool { return target == ErrEvalTargetClosed }

// Outcome is the resolution of a pending request.
type Outcome struct {
	Data string
	Err  error
}

type pending struct {
	token   uint64
	conn    uint64
	started time.Time
	done    chan Outcome
}

// Bridge is the correlation table.
type Bridge struct {
	mu       sync.Mutex
	next     uint64
	pending  map[uint64]*pending
	shutdown bool
	logger   *zap.Logger
}

// NewBridge creates an empty correlation table.
func NewBridge(logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{
		pending: make(map[uint64]*pending),
		logger:  logger,
	}
}

// Begin allocates a pending request bound to conn.
func (b *Bridge) Begin(conn uint64) (uint64, <-chan Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return 0, nil, ErrShuttingDown
	}
	b.next++
	token := b.next
	if _, exists := b.pending[token]; exists {
		panic(fmt.Sprintf("script: duplicate correlation token %d", token))
	}
	p := &pending{
		token:   token,
		conn:    conn,
		started: time.Now(),
		done:    make(chan Outcome, 1),
	}
	b.pending[token] = p
	return token, p.done, nil
}

// take removes and returns the request for token. Must hold b.mu.
func (b *Bridge) take(token uint64) (*pending, bool) {
	p, ok := b.pending[token]
	if ok {
		delete(b.pending, token)
	}
	return p, ok
}

// Resolve delivers a browser response. It reports false when the token is
// unknown, already resolved or discarded; such responses are dropped.
func (b *Bridge) Resolve(token uint64, data string, isError bool) bool {
	b.mu.Lock()
	p, ok := b.take(token)
	b.mu.Unlock()

	if !ok {
		b.logger.Debug("Dropping late script response", zap.Uint64("token", token))
		return false
	}
	out := Outcome{Data: data}
	if isError {
		out.Err = fmt.Errorf("%w: %s", ErrScriptError, data)
	}
	p.done <- out
	return true
}

// Cancel discards a pending request with err. It reports false when the
// request already resolved.
func (b *Bridge) Cancel(token uint64, err error) bool {
	b.mu.Lock()
	p, ok := b.take(token)
	b.mu.Unlock()

	if !ok {
		return false
	}
	p.done <- Outcome{Data: err.Error(), Err: err}
	return true
}

// CloseConnection fails every request waiting on conn.
func (b *Bridge) CloseConnection(conn uint64) int {
	b.mu.Lock()
	var closed []*pending
	for token, p := range b.pending {
		if p.conn == conn {
			delete(b.pending, token)
			closed = append(closed, p)
		}
	}
	b.mu.Unlock()

	for _, p := range closed {
		p.done <- Outcome{Data: ErrEvalTargetClosed.Error(), Err: ErrEvalTargetClosed}
	}
	return len(closed)
}

// Shutdown fails every pending request and refuses new ones. Safe to call
// more than once.
func (b *Bridge) Shutdown() int {
	b.mu.Lock()
	b.shutdown = true
	all := make([]*pending, 0, len(b.pending))
	for token, p := range b.pending {
		delete(b.pending, token)
		all = append(all, p)
	}
	b.mu.Unlock()

	for _, p := range all {
		p.done <- Outcome{Data: ErrShuttingDown.Error(), Err: ErrShuttingDown}
	}
	return len(all)
}

// Pending returns the number of in-flight requests.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Eval allocates a request for conn, hands the token to send and blocks until
// the request resolves. A zero timeout waits until the response, the target
// closing, shutdown or ctx cancellation. On failure the returned string is a
// human-readable message.
func (b *Bridge) Eval(ctx context.Context, conn uint64, timeout time.Duration, send func(token uint64) error) (string, error) {
	token, done, err := b.Begin(conn)
	if err != nil {
		return err.Error(), err
	}

	if err := send(token); err != nil {
		b.Cancel(token, fmt.Errorf("%w: %v", ErrEvalTargetClosed, err))
		out := <-done
		return ErrEvalTargetClosed.Error(), out.Err
	}

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	select {
	case out := <-done:
		return out.Data, out.Err
	case <-expired:
		b.Cancel(token, ErrEvalTimeout)
	case <-ctx.Done():
		b.Cancel(token, fmt.Errorf("%w: %v", ErrEvalTimeout, ctx.Err()))
	}
	// Cancel lost the race when a response slipped in first; either way the
	// single outcome is in done.
	out := <-done
	return out.Data, out.Err
}

// Fill copies s into buf, truncating to its capacity, and returns the number
// of bytes written.
func Fill(buf []byte, s string) int {
	return copy(buf, s)
}

// Message maps an eval error to the text placed in the caller's buffer.
func Message(err error, data string) string {
	switch {
	case err == nil:
		return data
	case errors.Is(err, ErrScriptError):
		return data
	case errors.Is(err, ErrWindowClosed):
		return "window closed"
	case errors.Is(err, ErrEvalTargetClosed):
		return "disconnected"
	case errors.Is(err, ErrShuttingDown):
		return "shutting down"
	case errors.Is(err, ErrEvalTimeout):
		return "timeout"
	default:
		return err.Error()
	}
}
