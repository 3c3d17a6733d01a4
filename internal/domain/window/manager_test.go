package window

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/domain/event"
	"github.com/GriffinCanCode/webbridge/internal/domain/session"
	"github.com/GriffinCanCode/webbridge/internal/shared/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransportClosed = errors.New("transport closed")

// fakeTransport records frames. respond, when set, plays the browser for
// script frames.
type fakeTransport struct {
	mu      sync.Mutex
	frames  []types.Message
	binary  [][]byte
	closed  bool
	sent    chan types.Message
	respond func(types.Message)
	onClose func()
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(chan types.Message, 256)}
}

func (f *fakeTransport) Send(msg types.Message) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return errTransportClosed
	}
	f.frames = append(f.frames, msg)
	respond := f.respond
	f.mu.Unlock()

	select {
	case f.sent <- msg:
	default:
	}
	if respond != nil && msg.Type == types.MessageScript && msg.Token != 0 {
		go respond(msg)
	}
	return nil
}

func (f *fakeTransport) SendBinary(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errTransportClosed
	}
	f.binary = append(f.binary, frame)
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil
	}
	f.closed = true
	onClose := f.onClose
	f.mu.Unlock()

	if onClose != nil {
		go onClose()
	}
	return nil
}

func (f *fakeTransport) next(t *testing.T, typ types.MessageType) types.Message {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-f.sent:
			if msg.Type == typ {
				return msg
			}
		case <-deadline:
			t.Fatalf("no %s frame received", typ)
			return types.Message{}
		}
	}
}

func (f *fakeTransport) count(typ types.MessageType) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, msg := range f.frames {
		if msg.Type == typ {
			n++
		}
	}
	return n
}

func newTestManager(opts Options) *Manager {
	if opts.ScriptTimeout == 0 {
		opts.ScriptTimeout = 2 * time.Second
	}
	return NewManager(opts, nil)
}

func connect(t *testing.T, m *Manager, w *Window, cookie string) (*fakeTransport, session.ConnectResult) {
	t.Helper()
	tr := newFakeTransport()
	res, err := m.Connect(w.ID(), cookie, "webbridge_client="+cookie, tr)
	require.NoError(t, err)
	tr.onClose = func() { _ = m.Disconnect(res.Connection.ID) }
	tr.next(t, types.MessageHello)
	return tr, res
}

func call(t *testing.T, m *Manager, connID, id uint64, element string, args ...string) {
	t.Helper()
	slots := make([][]byte, len(args))
	for i, a := range args {
		slots[i] = []byte(a)
	}
	require.NoError(t, m.HandleMessage(connID, types.Message{
		Type:    types.MessageCall,
		ID:      id,
		Element: element,
		Event:   int(event.Callback),
		Args:    slots,
	}))
}

func TestRebindReplacesHandler(t *testing.T) {
	m := newTestManager(Options{EventBlocking: true})
	defer m.Exit()
	w := m.NewWindow()

	first := w.Bind("save", func(e *event.Event) { e.ReturnString("old") })
	second := w.Bind("save", func(e *event.Event) { e.ReturnString("new") })
	assert.Equal(t, first, second)

	tr, res := connect(t, m, w, "")
	call(t, m, res.Connection.ID, 1, "save")

	ret := tr.next(t, types.MessageReturn)
	assert.Equal(t, uint64(1), ret.ID)
	assert.Equal(t, "new", ret.Value)
	assert.Equal(t, "string", ret.Kind)
}

func TestWildcardRunsAfterSpecificAndWinsResponse(t *testing.T) {
	m := newTestManager(Options{EventBlocking: true})
	defer m.Exit()
	w := m.NewWindow()

	var mu sync.Mutex
	var order []string
	w.Bind("add", func(e *event.Event) {
		mu.Lock()
		order = append(order, "specific")
		mu.Unlock()
		e.ReturnInt(e.Int(0) + e.Int(1))
	})
	w.Bind("", func(e *event.Event) {
		if e.Type != event.Callback {
			return
		}
		mu.Lock()
		order = append(order, "wildcard:"+e.Element)
		mu.Unlock()
		assert.Equal(t, "5", e.Result().Value)
		e.ReturnString("seen")
	})

	tr, res := connect(t, m, w, "")
	call(t, m, res.Connection.ID, 7, "add", "2", "3")

	ret := tr.next(t, types.MessageReturn)
	assert.Equal(t, "seen", ret.Value)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"specific", "wildcard:add"}, order)
}

func TestUnresolvedCallStillAnswersOnce(t *testing.T) {
	m := newTestManager(Options{EventBlocking: true})
	defer m.Exit()
	w := m.NewWindow()

	tr, res := connect(t, m, w, "")
	call(t, m, res.Connection.ID, 3, "missing")

	ret := tr.next(t, types.MessageReturn)
	assert.Equal(t, uint64(3), ret.ID)
	assert.Empty(t, ret.Value)
	assert.Equal(t, 1, tr.count(types.MessageReturn))
}

func TestEventNumbersIncreaseInBlockingMode(t *testing.T) {
	m := newTestManager(Options{})
	defer m.Exit()
	w := m.NewWindow()
	w.SetEventBlocking(true)
	require.True(t, w.EventBlocking())

	numbers := make(chan uint64, 64)
	w.Bind("tick", func(e *event.Event) { numbers <- e.Number })

	tr, res := connect(t, m, w, "")
	for i := 1; i <= 20; i++ {
		call(t, m, res.Connection.ID, uint64(i), "tick")
	}
	for i := 0; i < 20; i++ {
		tr.next(t, types.MessageReturn)
	}

	var last uint64
	for i := 0; i < 20; i++ {
		n := <-numbers
		assert.Greater(t, n, last)
		last = n
	}
}

func TestEventNumbersUniqueInNonBlockingMode(t *testing.T) {
	m := newTestManager(Options{})
	defer m.Exit()
	w := m.NewWindow()
	require.False(t, w.EventBlocking())

	var mu sync.Mutex
	seen := make(map[uint64]bool)
	w.Bind("tick", func(e *event.Event) {
		mu.Lock()
		seen[e.Number] = true
		mu.Unlock()
	})

	tr, res := connect(t, m, w, "")
	for i := 1; i <= 50; i++ {
		call(t, m, res.Connection.ID, uint64(i), "tick")
	}
	for i := 0; i < 50; i++ {
		tr.next(t, types.MessageReturn)
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, seen, 50)
	// CONNECTED took number 1.
	for n := uint64(2); n <= 51; n++ {
		assert.True(t, seen[n], "missing event number %d", n)
	}
}

func TestConnectedFiresBeforeCallsAndSeesCounters(t *testing.T) {
	m := newTestManager(Options{Mode: session.Mode{MultiClient: true, UseCookies: true}})
	defer m.Exit()
	w := m.NewWindow()

	var mu sync.Mutex
	var order []string
	w.Bind("", func(e *event.Event) {
		switch e.Type {
		case event.Connected:
			// Give a racing call a chance to overtake.
			time.Sleep(50 * time.Millisecond)
			assert.Equal(t, 1, m.Stats().ActiveConnections)
			mu.Lock()
			order = append(order, "connected")
			mu.Unlock()
		case event.Callback:
			mu.Lock()
			order = append(order, "call")
			mu.Unlock()
		}
	})

	tr, res := connect(t, m, w, "alice")
	call(t, m, res.Connection.ID, 1, "anything")
	tr.next(t, types.MessageReturn)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"connected", "call"}, order)
}

func TestReconnectKeepsClientID(t *testing.T) {
	m := newTestManager(Options{Mode: session.Mode{MultiClient: true, UseCookies: true}})
	defer m.Exit()
	w := m.NewWindow()

	connected := make(chan event.Event, 8)
	disconnected := make(chan session.Stats, 8)
	w.Bind("", func(e *event.Event) {
		switch e.Type {
		case event.Connected:
			connected <- *e
		case event.Disconnected:
			disconnected <- m.Stats()
		}
	})

	tr, first := connect(t, m, w, "cookie-a")
	assert.True(t, first.NewClient)
	firstEvent := <-connected

	require.NoError(t, tr.Close())
	stats := <-disconnected
	assert.Equal(t, 0, stats.ActiveConnections)
	assert.Equal(t, 1, stats.ClientsSeen)

	_, second := connect(t, m, w, "cookie-a")
	secondEvent := <-connected

	assert.False(t, second.NewClient)
	assert.Equal(t, first.Client.ID, second.Client.ID)
	assert.NotEqual(t, first.Connection.ID, second.Connection.ID)
	assert.Equal(t, firstEvent.ClientID, secondEvent.ClientID)
	assert.NotEqual(t, firstEvent.ConnectionID, secondEvent.ConnectionID)
	assert.Equal(t, 1, m.Stats().ClientsSeen)

	_, other := connect(t, m, w, "cookie-b")
	assert.True(t, other.NewClient)
	assert.NotEqual(t, first.Client.ID, other.Client.ID)
	assert.Equal(t, 2, m.Stats().ClientsSeen)
}

func TestDisconnectUnknownConnection(t *testing.T) {
	m := newTestManager(Options{})
	defer m.Exit()

	err := m.Disconnect(99)
	assert.ErrorIs(t, err, session.ErrUnknownConnection)

	err = m.HandleMessage(99, types.Message{Type: types.MessagePing})
	assert.ErrorIs(t, err, session.ErrUnknownConnection)
}

func TestConnectUnknownWindow(t *testing.T) {
	m := newTestManager(Options{})
	defer m.Exit()

	_, err := m.Connect(42, "", "", newFakeTransport())
	assert.ErrorIs(t, err, ErrUnknownWindow)
}

func TestPingAndUnknownFrames(t *testing.T) {
	m := newTestManager(Options{})
	defer m.Exit()
	w := m.NewWindow()
	tr, res := connect(t, m, w, "")

	require.NoError(t, m.HandleMessage(res.Connection.ID, types.Message{Type: types.MessagePing}))
	tr.next(t, types.MessagePong)

	err := m.HandleMessage(res.Connection.ID, types.Message{Type: "bogus"})
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestWindowIDs(t *testing.T) {
	m := newTestManager(Options{})
	defer m.Exit()

	a := m.NewWindow()
	assert.Equal(t, uint64(1), a.ID())

	_, err := m.NewWindowID(3)
	require.NoError(t, err)
	_, err = m.NewWindowID(3)
	assert.ErrorIs(t, err, ErrWindowExists)
	_, err = m.NewWindowID(0)
	assert.Error(t, err)

	assert.Equal(t, uint64(2), m.NextWindowID())
	assert.Equal(t, uint64(2), m.NewWindow().ID())
	assert.Equal(t, uint64(4), m.NewWindow().ID())
	assert.Len(t, m.Windows(), 4)
}

func TestSetContextReachesEvent(t *testing.T) {
	m := newTestManager(Options{EventBlocking: true})
	defer m.Exit()
	w := m.NewWindow()

	type counter struct{ n int }
	state := &counter{n: 41}
	w.SetContext("inc", state)
	w.Bind("inc", func(e *event.Event) {
		c := e.Context().(*counter)
		c.n++
		e.ReturnInt(int64(c.n))
	})

	tr, res := connect(t, m, w, "")
	call(t, m, res.Connection.ID, 1, "inc")
	assert.Equal(t, "42", tr.next(t, types.MessageReturn).Value)
}

func TestDestroyReleasesWindow(t *testing.T) {
	m := newTestManager(Options{})
	defer m.Exit()
	w := m.NewWindow()
	w.Bind("x", func(*event.Event) {})
	tr, _ := connect(t, m, w, "")

	w.Destroy()
	w.Destroy()

	_, ok := m.Window(w.ID())
	assert.False(t, ok)
	assert.Empty(t, m.registry.Elements(w.ID()))
	assert.Equal(t, uint64(0), w.Bind("y", func(*event.Event) {}))
	assert.Equal(t, 1, tr.count(types.MessageClose))

	buf := make([]byte, 32)
	n, ok := w.Script(context.Background(), "return 1", time.Second, buf)
	assert.False(t, ok)
	assert.Equal(t, "window closed", string(buf[:n]))
}

func TestCloseKeepsWindow(t *testing.T) {
	m := newTestManager(Options{})
	defer m.Exit()
	w := m.NewWindow()
	connect(t, m, w, "")
	require.True(t, w.IsShown())

	require.NoError(t, w.Close())
	assert.Eventually(t, func() bool { return !w.IsShown() }, time.Second, 5*time.Millisecond)

	_, ok := m.Window(w.ID())
	assert.True(t, ok)
}

func TestEncodeDecode(t *testing.T) {
	encoded := Encode("hello\x00world")
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	assert.Equal(t, "hello\x00world", decoded)

	_, err = Decode("not base64!")
	assert.Error(t, err)
}

type fakeServer struct{ url string }

func (s fakeServer) Start() (string, error) { return s.url, nil }

func TestShowAndStartServer(t *testing.T) {
	m := newTestManager(Options{RootFolder: t.TempDir()})
	defer m.Exit()
	w := m.NewWindow()

	_, err := w.Show("<html></html>")
	assert.ErrorIs(t, err, ErrNoServer)

	m.SetServer(fakeServer{url: "http://127.0.0.1:9000/"})
	url, err := w.StartServer("index.html")
	require.NoError(t, err)
	assert.Equal(t, "http://127.0.0.1:9000/win/1/", url)

	page := w.Page()
	assert.False(t, page.Inline)
	assert.Equal(t, "index.html", page.Content)
	assert.NotEmpty(t, page.RootFolder)

	_, err = w.Show("  <html><body>hi</body></html>")
	require.NoError(t, err)
	assert.True(t, w.Page().Inline)

	assert.Error(t, w.SetRootFolder("/definitely/not/here"))
}

func TestDisconnectGraceExits(t *testing.T) {
	m := newTestManager(Options{DisconnectGrace: 30 * time.Millisecond})
	w := m.NewWindow()
	tr, _ := connect(t, m, w, "")

	require.NoError(t, tr.Close())

	select {
	case <-m.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not exit after the last disconnect")
	}
}

func TestExitIsIdempotent(t *testing.T) {
	m := newTestManager(Options{})
	w := m.NewWindow()
	connect(t, m, w, "")

	m.Exit()
	m.Exit()
	m.Wait()

	_, err := m.Connect(w.ID(), "", "", newFakeTransport())
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, m.Windows())
}

func TestBindRejectsNamesTheTransportRefuses(t *testing.T) {
	m := newTestManager(Options{})
	defer m.Exit()
	w := m.NewWindow()

	noop := func(e *event.Event) {}
	assert.Zero(t, w.Bind(strings.Repeat("x", 300), noop))
	assert.Zero(t, w.Bind("tab\tname", noop))
	assert.NotZero(t, w.Bind(strings.Repeat("x", 256), noop))
	assert.Len(t, w.Bindings(), 1)
}

func TestHelloDescribesBindings(t *testing.T) {
	m := newTestManager(Options{Mode: session.Mode{MultiClient: true}})
	defer m.Exit()
	w := m.NewWindow()

	noop := func(e *event.Event) {}
	w.Bind("save", noop)
	w.Bind("my-button", noop)

	tr := newFakeTransport()
	_, err := m.Connect(w.ID(), "", "", tr)
	require.NoError(t, err)
	hello := tr.next(t, types.MessageHello)
	assert.Equal(t, []string{"my-button", "save"}, hello.Bindings)
	assert.Equal(t, []string{"save"}, hello.Globals)
	assert.False(t, hello.Wildcard)
	assert.Zero(t, hello.ClientID)

	w.Bind("", noop)
	tr = newFakeTransport()
	_, err = m.Connect(w.ID(), "", "", tr)
	require.NoError(t, err)
	assert.True(t, tr.next(t, types.MessageHello).Wildcard)
}

func TestConnectRacingExitLeavesNothingBehind(t *testing.T) {
	for i := 0; i < 50; i++ {
		m := newTestManager(Options{})
		w := m.NewWindow()

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = m.Connect(w.ID(), "", "", newFakeTransport())
		}()
		go func() {
			defer wg.Done()
			m.Exit()
		}()
		wg.Wait()

		m.mu.RLock()
		conns := len(m.conns)
		m.mu.RUnlock()
		assert.Zero(t, conns)
		assert.Zero(t, m.Stats().ActiveConnections)
	}
}
