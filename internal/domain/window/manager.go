package window

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/domain/binding"
	"github.com/GriffinCanCode/webbridge/internal/domain/codec"
	"github.com/GriffinCanCode/webbridge/internal/domain/event"
	"github.com/GriffinCanCode/webbridge/internal/domain/script"
	"github.com/GriffinCanCode/webbridge/internal/domain/session"
	"github.com/GriffinCanCode/webbridge/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/webbridge/internal/shared/types"
	"github.com/aquilax/truncate"
	"go.uber.org/zap"
)

// Server starts the HTTP side on demand and returns its base URL.
type Server interface {
	Start() (string, error)
}

// Options configures a Manager. They are read once.
type Options struct {
	Mode session.Mode

	// EventBlocking is the dispatch mode new windows start with.
	EventBlocking bool

	// ScriptTimeout is used when Script or Eval get DefaultTimeout.
	ScriptTimeout time.Duration

	// RootFolder is the default directory windows serve files from.
	RootFolder string

	// DisconnectGrace, when positive, exits the manager once no connection
	// has been live for that long.
	DisconnectGrace time.Duration
}

// Manager owns windows, bindings, sessions and pending scripts.
type Manager struct {
	mu         sync.RWMutex
	windows    map[uint64]*Window     // Protected by mu
	conns      map[uint64]*connection // Protected by mu
	nextWindow uint64                 // Protected by mu
	idle       *time.Timer            // Protected by mu
	exited     bool                   // Protected by mu
	server     Server                 // Protected by mu

	registry *binding.Registry
	sessions *session.Table
	bridge   *script.Bridge
	opts     Options
	logger   *zap.Logger
	metrics  *monitoring.Metrics

	exitOnce sync.Once
	done     chan struct{}
}

// NewManager creates a manager. A nil logger discards output.
func NewManager(opts Options, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		windows:  make(map[uint64]*Window),
		conns:    make(map[uint64]*connection),
		registry: binding.NewRegistry(logger),
		sessions: session.NewTable(opts.Mode),
		bridge:   script.NewBridge(logger),
		opts:     opts,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// WithMetrics adds metrics tracking to the manager
func (m *Manager) WithMetrics(metrics *monitoring.Metrics) *Manager {
	m.metrics = metrics
	return m
}

// SetServer attaches the HTTP side used by Show, StartServer and URL.
func (m *Manager) SetServer(s Server) {
	m.mu.Lock()
	m.server = s
	m.mu.Unlock()
}

func (m *Manager) serverURL() (string, error) {
	m.mu.RLock()
	s := m.server
	m.mu.RUnlock()
	if s == nil {
		return "", ErrNoServer
	}
	return s.Start()
}

// Options returns the manager configuration.
func (m *Manager) Options() Options {
	return m.opts
}

// NewWindow creates a window with the next free id.
func (m *Manager) NewWindow() *Window {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.freeIDLocked()
	m.nextWindow = id
	return m.addLocked(id)
}

// NewWindowID creates a window with a caller-chosen id.
func (m *Manager) NewWindowID(id uint64) (*Window, error) {
	if id == 0 {
		return nil, fmt.Errorf("%w: id 0 is reserved", ErrUnknownWindow)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.windows[id]; exists {
		return nil, fmt.Errorf("%w: %d", ErrWindowExists, id)
	}
	return m.addLocked(id), nil
}

// NextWindowID returns the id NewWindow would use, without reserving it.
func (m *Manager) NextWindowID() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.freeIDLocked()
}

func (m *Manager) freeIDLocked() uint64 {
	id := m.nextWindow + 1
	for {
		if _, taken := m.windows[id]; !taken {
			return id
		}
		id++
	}
}

func (m *Manager) addLocked(id uint64) *Window {
	w := &Window{id: id, mgr: m}
	if m.opts.EventBlocking {
		w.blocking = true
		w.worker = newWorker()
	}
	w.page.RootFolder = m.opts.RootFolder
	m.windows[id] = w
	if m.metrics != nil {
		m.metrics.SetWindows(len(m.windows))
	}
	return w
}

// Window returns the live window with id.
func (m *Manager) Window(id uint64) (*Window, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.windows[id]
	return w, ok
}

// Windows returns every live window ordered by id.
func (m *Manager) Windows() []*Window {
	m.mu.RLock()
	out := make([]*Window, 0, len(m.windows))
	for _, w := range m.windows {
		out = append(out, w)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (m *Manager) forget(id uint64) {
	m.mu.Lock()
	delete(m.windows, id)
	count := len(m.windows)
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetWindows(count)
	}
	m.updateBindingGauge()
}

func (m *Manager) updateBindingGauge() {
	if m.metrics == nil {
		return
	}
	total := 0
	for _, w := range m.Windows() {
		total += m.registry.Count(w.id)
	}
	m.metrics.SetBindings(total)
}

// Stats returns the client and connection counters.
func (m *Manager) Stats() session.Stats {
	return m.sessions.Stats()
}

// Client returns the client with id.
func (m *Manager) Client(id uint64) (session.Client, bool) {
	return m.sessions.Client(id)
}

// Connect registers a transport session on window and schedules the
// CONNECTED event. Counters are updated before any callback runs.
func (m *Manager) Connect(windowID uint64, cookie, rawCookies string, t Transport) (session.ConnectResult, error) {
	m.mu.RLock()
	exited := m.exited
	w, ok := m.windows[windowID]
	m.mu.RUnlock()

	if exited {
		return session.ConnectResult{}, ErrClosed
	}
	if !ok {
		return session.ConnectResult{}, fmt.Errorf("%w: %d", ErrUnknownWindow, windowID)
	}

	res := m.sessions.Connect(windowID, cookie, rawCookies)
	c := &connection{
		id:        res.Connection.ID,
		clientID:  res.Client.ID,
		window:    windowID,
		cookies:   rawCookies,
		transport: t,
		mgr:       m,
		ready:     make(chan struct{}),
	}

	m.mu.Lock()
	if m.exited {
		// Exit ran since the check above and may already have reset the
		// session table; drop the entry it missed.
		m.mu.Unlock()
		_, _, _ = m.sessions.Disconnect(c.id)
		return session.ConnectResult{}, ErrClosed
	}
	m.conns[c.id] = c
	if m.idle != nil {
		m.idle.Stop()
		m.idle = nil
	}
	m.mu.Unlock()

	if m.metrics != nil {
		m.metrics.SetConnections(res.Stats.ActiveConnections)
		if res.NewClient {
			m.metrics.IncClients()
		}
	}

	m.logger.Info("Client connected",
		zap.Uint64("window", windowID),
		zap.Uint64("client", res.Client.ID),
		connField(c.id),
		zap.Bool("new_client", res.NewClient),
		zap.Int("active_connections", res.Stats.ActiveConnections),
	)

	_ = c.send(types.Message{
		Type:         types.MessageHello,
		Window:       windowID,
		ClientID:     res.Client.ID,
		ConnectionID: c.id,
		Bindings:     w.Bindings(),
		Globals:      w.Globals(),
		Wildcard:     w.HasWildcard(),
	})

	queued := w.enqueue(func(number uint64) {
		defer close(c.ready)
		m.fire(w, c, event.Connected, "", codec.Args{}, number)
	})
	if !queued {
		close(c.ready)
	}
	return res, nil
}

// Disconnect removes a connection, fails its pending scripts and schedules
// the DISCONNECTED event.
func (m *Manager) Disconnect(connID uint64) error {
	conn, stats, err := m.sessions.Disconnect(connID)
	if err != nil {
		m.mu.RLock()
		exited := m.exited
		m.mu.RUnlock()
		if !exited {
			m.logger.Warn("Session table inconsistency", connField(connID), zap.Error(err))
		}
		return err
	}

	m.mu.Lock()
	c := m.conns[connID]
	delete(m.conns, connID)
	if stats.ActiveConnections == 0 && m.opts.DisconnectGrace > 0 && !m.exited {
		m.armIdleLocked()
	}
	w, ok := m.windows[conn.Window]
	m.mu.Unlock()

	failed := m.bridge.CloseConnection(connID)
	if m.metrics != nil {
		m.metrics.SetConnections(stats.ActiveConnections)
	}

	m.logger.Info("Client disconnected",
		zap.Uint64("window", conn.Window),
		zap.Uint64("client", conn.ClientID),
		connField(connID),
		zap.Int("scripts_failed", failed),
		zap.Int("active_connections", stats.ActiveConnections),
	)

	if ok && c != nil {
		w.enqueue(func(number uint64) {
			<-c.ready
			m.fire(w, c, event.Disconnected, "", codec.Args{}, number)
		})
	}
	return nil
}

func (m *Manager) armIdleLocked() {
	if m.idle != nil {
		m.idle.Stop()
	}
	m.idle = time.AfterFunc(m.opts.DisconnectGrace, func() {
		if m.sessions.Stats().ActiveConnections > 0 {
			return
		}
		m.logger.Info("No connections left, exiting", zap.Duration("grace", m.opts.DisconnectGrace))
		m.Exit()
	})
}

// HandleMessage processes one decoded frame from connection connID.
func (m *Manager) HandleMessage(connID uint64, msg types.Message) error {
	m.mu.RLock()
	c, ok := m.conns[connID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %d", session.ErrUnknownConnection, connID)
	}

	m.sessions.Touch(connID)
	if m.metrics != nil {
		m.metrics.RecordWSMessage("in", string(msg.Type))
	}

	switch msg.Type {
	case types.MessageCall:
		m.handleCall(c, msg)
	case types.MessageScriptResult:
		m.bridge.Resolve(msg.Token, msg.Data, msg.Error)
	case types.MessagePing:
		return c.send(types.Message{Type: types.MessagePong})
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
	}
	return nil
}

func (m *Manager) handleCall(c *connection, msg types.Message) {
	w, ok := m.Window(c.window)
	if !ok {
		return
	}

	typ := event.Type(msg.Event)
	switch typ {
	case event.MouseClick, event.Navigation, event.Callback:
	default:
		typ = event.Callback
	}
	args := codec.NewArgs(msg.Args)

	w.enqueue(func(number uint64) {
		<-c.ready
		result := m.fire(w, c, typ, msg.Element, args, number)
		if msg.ID == 0 {
			return
		}
		// One return frame per call, empty when no callback answered.
		err := c.send(types.Message{
			Type:  types.MessageReturn,
			ID:    msg.ID,
			Kind:  string(result.Kind),
			Value: result.Value,
		})
		if err != nil {
			m.logger.Debug("Dropping call response", connField(c.id), zap.Uint64("call", msg.ID), zap.Error(err))
		}
	})
}

// fire runs the bindings for element and returns the response they left.
func (m *Manager) fire(w *Window, c *connection, typ event.Type, element string, args codec.Args, number uint64) codec.Result {
	response := event.NewResponse()
	start := time.Now()

	fired, err := m.registry.Dispatch(w.id, element, func(b binding.Binding) *event.Event {
		return event.New(event.Params{
			WindowID:     w.id,
			ClientID:     c.clientID,
			ConnectionID: c.id,
			Cookies:      c.cookies,
			BindID:       b.ID,
			Type:         typ,
			Element:      element,
			Number:       number,
			Args:         args,
			Window:       w,
			Client:       c,
			Response:     response,
			Context:      m.registry.Context(w.id, b.Element),
		})
	})
	if errors.Is(err, binding.ErrUnresolvedBinding) {
		if m.metrics != nil {
			m.metrics.IncUnresolved()
		}
		m.logger.Debug("Unresolved binding",
			zap.Uint64("window", w.id),
			zap.String("element", element),
			zap.Stringer("type", typ),
		)
	}
	if fired > 0 && m.metrics != nil {
		m.metrics.RecordEvent(typ.String(), time.Since(start))
	}
	return response.Result()
}

func (m *Manager) live(connID uint64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.conns[connID]
	return ok
}

func (m *Manager) mostRecent(windowID uint64) (*connection, bool) {
	conn, ok := m.sessions.MostRecent(windowID)
	if !ok {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[conn.ID]
	return c, ok
}

func (m *Manager) connectionsOf(windowID uint64) []*connection {
	live := m.sessions.Connections(windowID)

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*connection, 0, len(live))
	for _, conn := range live {
		if c, ok := m.conns[conn.ID]; ok {
			out = append(out, c)
		}
	}
	return out
}

func (m *Manager) eval(ctx context.Context, c *connection, js string, timeout time.Duration) (string, error) {
	if timeout < 0 {
		timeout = m.opts.ScriptTimeout
	}
	timer := monitoring.NewTimer(m.metrics)

	var token uint64
	data, err := m.bridge.Eval(ctx, c.id, timeout, func(t uint64) error {
		token = t
		return c.send(types.Message{Type: types.MessageScript, Token: t, Script: js})
	})
	elapsed := timer.Stop(outcome(err))

	m.logger.Debug("Script evaluated",
		scriptField(js),
		connField(c.id),
		zap.Uint64("token", token),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)
	return data, err
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, script.ErrScriptError):
		return "script_error"
	case errors.Is(err, script.ErrEvalTargetClosed):
		return "disconnected"
	case errors.Is(err, script.ErrShuttingDown):
		return "shutting_down"
	default:
		return "timeout"
	}
}

// Exit shuts the bridge down: pending scripts fail with "shutting down",
// windows are destroyed and Wait returns. Safe to call more than once.
func (m *Manager) Exit() {
	m.exitOnce.Do(func() {
		failed := m.bridge.Shutdown()

		m.mu.Lock()
		m.exited = true
		if m.idle != nil {
			m.idle.Stop()
			m.idle = nil
		}
		m.mu.Unlock()

		for _, w := range m.Windows() {
			w.Destroy()
		}
		m.registry.Reset()
		m.sessions.Reset()

		m.mu.Lock()
		m.conns = make(map[uint64]*connection)
		m.mu.Unlock()

		m.logger.Info("Bridge exited", zap.Int("scripts_failed", failed))
		close(m.done)
	})
}

// Done is closed once Exit has run.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Wait blocks until Exit has run.
func (m *Manager) Wait() {
	<-m.done
}

func scriptField(js string) zap.Field {
	return zap.String("script", truncate.Truncate(js, 64, "...", truncate.PositionMiddle))
}

func connField(id uint64) zap.Field {
	return zap.Uint64("connection", id)
}
