package headless

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
	"github.com/go-resty/resty/v2"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webbridge/internal/shared/types"
)

var (
	ErrDisconnected    = errors.New("disconnected")
	ErrNotWindowURL    = errors.New("url is not a window page")
	ErrNoClientScript  = errors.New("page does not load the client script")
	ErrCallNotSent     = errors.New("page did not send a call")
	errSocketNotOpened = errors.New("socket is not open")
)

var windowPath = regexp.MustCompile(`^/win/(\d+)(/|$)`)

const writeWait = 10 * time.Second

// Options configures a Client.
type Options struct {
	Logger *zap.Logger

	// Timeout bounds the page fetch, each WebSocket handshake and the wait
	// for the native greeting.
	Timeout time.Duration

	// ScriptLimit interrupts a page script that runs longer than this.
	ScriptLimit time.Duration

	// Reconnect lets the page script redial after the connection drops.
	// Without it every redial fails, as if the server were gone.
	Reconnect bool

	// Jar shares cookies between clients, which makes them the same
	// browser. Nil gives the client its own jar.
	Jar http.CookieJar
}

// Return is the value a native callback answered with.
type Return struct {
	Kind  string
	Value string
}

// socket is one WebSocket the page opened.
type socket struct {
	id   uint64
	obj  *goja.Object    // Touched on the loop only
	conn *websocket.Conn // Protected by Client.mu
}

// Client is a browser stand-in. It loads a window page over HTTP, fetches
// the client script the page references and runs it in a goja VM whose
// WebSocket, location and document are backed by Go.
type Client struct {
	opts     Options
	logger   *zap.Logger
	page     *url.URL
	windowID uint64
	http     *resty.Client
	jar      http.CookieJar
	rt       *runtime

	mu         sync.Mutex
	sockets    map[uint64]*socket            // Protected by mu
	current    *socket                       // Protected by mu
	conn       *websocket.Conn               // Protected by mu; nil while disconnected
	nextSocket uint64                        // Protected by mu
	dials      int                           // Protected by mu
	reload     bool                          // Protected by mu
	hello      types.Message                 // Protected by mu
	helloCh    chan struct{}                 // Protected by mu
	waiters    map[uint64]chan types.Message // Protected by mu
	capture    chan types.Message            // Protected by mu
	captured   uint64                        // Protected by mu
	closed     bool                          // Protected by mu

	writeMu sync.Mutex

	navigations chan string
	nativeClose chan struct{}
	closeOnce   sync.Once
}

// Open loads pageURL, runs its client script and returns once the native
// side has greeted the connection.
func Open(ctx context.Context, pageURL string, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.ScriptLimit <= 0 {
		opts.ScriptLimit = 5 * time.Second
	}

	page, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid page url: %w", err)
	}
	m := windowPath.FindStringSubmatch(page.Path)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotWindowURL, pageURL)
	}
	windowID, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotWindowURL, pageURL)
	}

	jar := opts.Jar
	if jar == nil {
		if jar, err = cookiejar.New(nil); err != nil {
			return nil, err
		}
	}

	c := &Client{
		opts:        opts,
		logger:      opts.Logger,
		page:        page,
		windowID:    windowID,
		http:        resty.New().SetCookieJar(jar).SetTimeout(opts.Timeout),
		jar:         jar,
		sockets:     make(map[uint64]*socket),
		waiters:     make(map[uint64]chan types.Message),
		helloCh:     make(chan struct{}),
		navigations: make(chan string, 16),
		nativeClose: make(chan struct{}),
	}

	body, err := c.fetch(ctx, page.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load page: %w", err)
	}
	scriptURL, err := clientScriptURL(page, body)
	if err != nil {
		return nil, err
	}
	script, err := c.fetch(ctx, scriptURL.String())
	if err != nil {
		return nil, fmt.Errorf("failed to load client script: %w", err)
	}

	if c.rt, err = newRuntime(c, page, opts.ScriptLimit, opts.Logger); err != nil {
		return nil, err
	}
	if err := c.rt.run(scriptURL.Path, string(script)); err != nil {
		c.Close()
		return nil, fmt.Errorf("client script failed: %w", err)
	}

	c.mu.Lock()
	helloCh := c.helloCh
	c.mu.Unlock()
	if err := c.awaitHello(ctx, helloCh); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) fetch(ctx context.Context, target string) ([]byte, error) {
	resp, err := c.http.R().SetContext(ctx).Get(target)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode())
	}
	return resp.Body(), nil
}

// clientScriptURL finds the bridge script the page loads.
func clientScriptURL(page *url.URL, body []byte) (*url.URL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	src, ok := doc.Find(`script[src$="webbridge.js"]`).First().Attr("src")
	if !ok {
		return nil, ErrNoClientScript
	}
	ref, err := url.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("bad client script src %q: %w", src, err)
	}
	return page.ResolveReference(ref), nil
}

func (c *Client) awaitHello(ctx context.Context, helloCh <-chan struct{}) error {
	timer := time.NewTimer(c.opts.Timeout)
	defer timer.Stop()
	select {
	case <-helloCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timed out waiting for hello")
	}
}

// dial backs new WebSocket(url). Called on the loop.
func (c *Client) dial(rawURL string, ws *goja.Object) uint64 {
	c.mu.Lock()
	c.nextSocket++
	s := &socket{id: c.nextSocket, obj: ws}
	allowed := !c.closed && (c.dials == 0 || c.opts.Reconnect || c.reload)
	c.dials++
	c.reload = false
	if allowed {
		c.sockets[s.id] = s
	}
	c.mu.Unlock()

	if !allowed {
		go c.rt.post(func() { c.rt.call(c.rt.shim.closed, s.obj) })
		return s.id
	}
	go c.open(s, rawURL)
	return s.id
}

func (c *Client) open(s *socket, rawURL string) {
	header := http.Header{}
	for _, cookie := range c.jar.Cookies(c.page) {
		header.Add("Cookie", cookie.String())
	}

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.Timeout}
	conn, _, err := dialer.Dial(rawURL, header)
	if err != nil {
		c.logger.Debug("Dial failed", zap.String("url", rawURL), zap.Error(err))
		c.forget(s)
		c.rt.post(func() { c.rt.call(c.rt.shim.closed, s.obj) })
		return
	}

	// The socket counts as open once the page has seen onopen, so calls
	// from Go and from page scripts agree on its state.
	opened := make(chan bool, 1)
	posted := c.rt.post(func() {
		c.mu.Lock()
		_, live := c.sockets[s.id]
		live = live && !c.closed
		if live {
			s.conn = conn
			c.conn = conn
			c.current = s
		}
		c.mu.Unlock()
		opened <- live
		if live {
			c.rt.call(c.rt.shim.open, s.obj)
		} else {
			c.rt.call(c.rt.shim.closed, s.obj)
		}
	})
	live := false
	if posted {
		select {
		case live = <-opened:
		case <-c.rt.done:
		}
	}
	if !live {
		conn.Close()
		return
	}
	c.readLoop(s, conn)
}

func (c *Client) readLoop(s *socket, conn *websocket.Conn) {
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			c.dropped(s, err)
			return
		}

		if kind == websocket.BinaryMessage {
			if name, payload, err := types.DecodeRaw(data); err == nil {
				c.logger.Debug("Raw frame", zap.String("function", name), zap.Int("bytes", len(payload)))
			} else {
				c.logger.Warn("Bad raw frame", zap.Error(err))
			}
			c.rt.post(func() {
				c.rt.call(c.rt.shim.message, s.obj, c.rt.vm.ToValue(c.rt.vm.NewArrayBuffer(data)))
			})
			continue
		}

		var msg types.Message
		if err := sonic.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Bad frame", zap.Error(err))
		}
		var after func()
		switch msg.Type {
		case types.MessageHello:
			after = c.greeted(msg)
		case types.MessageReturn:
			c.answer(msg)
		}

		text := string(data)
		c.rt.post(func() {
			c.rt.call(c.rt.shim.message, s.obj, c.rt.vm.ToValue(text))
			if after != nil {
				after()
			}
		})
	}
}

// greeted records a hello and returns what releases its waiters once the
// page has processed the frame.
func (c *Client) greeted(msg types.Message) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hello = msg
	helloCh := c.helloCh
	c.helloCh = nil
	if helloCh == nil {
		return nil
	}
	return func() { close(helloCh) }
}

func (c *Client) answer(msg types.Message) {
	c.mu.Lock()
	ch, ok := c.waiters[msg.ID]
	delete(c.waiters, msg.ID)
	c.mu.Unlock()
	if ok {
		ch <- msg
	}
}

// dropped fails Go-side calls and tells the page its socket closed.
func (c *Client) dropped(s *socket, err error) {
	c.mu.Lock()
	delete(c.sockets, s.id)
	var waiters map[uint64]chan types.Message
	if c.current == s {
		c.current = nil
		c.conn = nil
		waiters = c.waiters
		c.waiters = make(map[uint64]chan types.Message)
	}
	c.mu.Unlock()

	for _, ch := range waiters {
		close(ch)
	}
	c.logger.Debug("Connection dropped", zap.Uint64("window", c.windowID), zap.Error(err))
	c.rt.post(func() { c.rt.call(c.rt.shim.closed, s.obj) })
}

func (c *Client) forget(s *socket) {
	c.mu.Lock()
	delete(c.sockets, s.id)
	c.mu.Unlock()
}

// send backs WebSocket.send. Called on the loop.
func (c *Client) send(socketID uint64, text string) error {
	c.mu.Lock()
	s, ok := c.sockets[socketID]
	var conn *websocket.Conn
	if ok {
		conn = s.conn
	}
	if conn != nil && c.capture != nil && c.current == s {
		var msg types.Message
		if err := sonic.UnmarshalString(text, &msg); err == nil && msg.Type == types.MessageCall && msg.ID != 0 {
			c.waiters[msg.ID] = c.capture
			c.captured = msg.ID
			c.capture = nil
		}
	}
	c.mu.Unlock()
	if conn == nil {
		return errSocketNotOpened
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, []byte(text))
}

// close backs WebSocket.close.
func (c *Client) close(socketID uint64) {
	c.mu.Lock()
	s, ok := c.sockets[socketID]
	var conn *websocket.Conn
	if ok {
		conn = s.conn
		if conn == nil {
			// Still dialing; open drops it.
			delete(c.sockets, socketID)
		}
	}
	c.mu.Unlock()
	if conn != nil {
		c.closeConn(conn)
	}
}

func (c *Client) closeConn(conn *websocket.Conn) {
	c.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.writeMu.Unlock()
	_ = conn.Close()
}

// closeWindow backs window.close, which the page calls when the native
// side closes it.
func (c *Client) closeWindow() {
	c.closeOnce.Do(func() { close(c.nativeClose) })
	c.mu.Lock()
	s := c.current
	c.mu.Unlock()
	if s != nil {
		c.close(s.id)
	}
}

// navigate backs assignments to location.href.
func (c *Client) navigate(rawURL string) {
	select {
	case c.navigations <- rawURL:
	default:
		c.logger.Warn("Navigation dropped", zap.String("url", rawURL))
	}
}

// Reconnect drops the current connection and waits for the page script to
// dial again with the same cookies, as a page reload would.
func (c *Client) Reconnect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	c.reload = true
	helloCh := make(chan struct{})
	c.helloCh = helloCh
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return c.awaitHello(ctx, helloCh)
}

// Call invokes a bound element through the page's webbridge.call and
// waits for its return frame.
func (c *Client) Call(ctx context.Context, element string, args ...[]byte) (Return, error) {
	return c.fire(ctx, func(vm *goja.Runtime) error {
		bridge := vm.Get("webbridge")
		if bridge == nil || goja.IsUndefined(bridge) {
			return ErrNoClientScript
		}
		call, ok := goja.AssertFunction(bridge.ToObject(vm).Get("call"))
		if !ok {
			return ErrNoClientScript
		}

		values := []goja.Value{vm.ToValue(element)}
		u8 := vm.Get("Uint8Array")
		for _, arg := range args {
			buf := vm.NewArrayBuffer(append([]byte(nil), arg...))
			arr, err := vm.New(u8, vm.ToValue(buf))
			if err != nil {
				return err
			}
			values = append(values, arr)
		}
		return c.rt.call(call, values...)
	})
}

// CallStrings is Call with text arguments.
func (c *Client) CallStrings(ctx context.Context, element string, args ...string) (Return, error) {
	raw := make([][]byte, len(args))
	for i, a := range args {
		raw[i] = []byte(a)
	}
	return c.Call(ctx, element, raw...)
}

// Click dispatches a click on the element with the given id. The page
// only reports it when the element is bound or the window has a wildcard
// binding; otherwise ErrCallNotSent is returned.
func (c *Client) Click(ctx context.Context, element string) (Return, error) {
	return c.fire(ctx, func(vm *goja.Runtime) error {
		return c.rt.call(c.rt.shim.click, vm.ToValue(element))
	})
}

// fire runs trigger on the loop, captures the call frame it makes the page
// send and waits for the matching return frame.
func (c *Client) fire(ctx context.Context, trigger func(vm *goja.Runtime) error) (Return, error) {
	ch := make(chan types.Message, 1)
	var id uint64
	err := c.rt.do(func(vm *goja.Runtime) error {
		c.mu.Lock()
		switch {
		case c.closed:
			c.mu.Unlock()
			return ErrClientClosed
		case c.conn == nil:
			c.mu.Unlock()
			return ErrDisconnected
		}
		c.capture = ch
		c.captured = 0
		c.mu.Unlock()

		err := trigger(vm)

		c.mu.Lock()
		id = c.captured
		c.capture = nil
		c.mu.Unlock()
		if err != nil {
			return err
		}
		if id == 0 {
			return ErrCallNotSent
		}
		return nil
	})
	if err != nil {
		return Return{}, err
	}

	select {
	case msg, ok := <-ch:
		if !ok {
			return Return{}, ErrDisconnected
		}
		return Return{Kind: msg.Kind, Value: msg.Value}, nil
	case <-ctx.Done():
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
		return Return{}, ctx.Err()
	}
}

// Evaluate runs src in the page and returns its exported value.
func (c *Client) Evaluate(src string) (any, error) {
	return c.rt.evaluate(src)
}

// Console returns what page scripts logged so far.
func (c *Client) Console() []LogEntry {
	return c.rt.Console()
}

// Hello returns the greeting of the current connection.
func (c *Client) Hello() types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hello
}

// WindowID is the window the page belongs to.
func (c *Client) WindowID() uint64 {
	return c.windowID
}

// Connected reports whether the page has an open connection.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Cookies returns the cookies the page holds.
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.Cookies(c.page)
}

// Navigations delivers URLs the page was told to open.
func (c *Client) Navigations() <-chan string {
	return c.navigations
}

// ClosedByNative is closed when the page handles a close frame.
func (c *Client) ClosedByNative() <-chan struct{} {
	return c.nativeClose
}

// Close disconnects and stops the page runtime. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	var conns []*websocket.Conn
	for _, s := range c.sockets {
		if s.conn != nil {
			conns = append(conns, s.conn)
		}
	}
	c.conn = nil
	c.mu.Unlock()

	for _, conn := range conns {
		c.closeConn(conn)
	}
	if c.rt != nil {
		c.rt.stop()
	}
	return nil
}
