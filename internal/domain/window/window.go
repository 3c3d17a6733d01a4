package window

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/GriffinCanCode/webbridge/internal/domain/binding"
	"github.com/GriffinCanCode/webbridge/internal/domain/script"
	"github.com/GriffinCanCode/webbridge/internal/shared/utils"
	"go.uber.org/zap"
)

// DefaultTimeout makes Script and Eval use the manager's configured
// timeout.
const DefaultTimeout time.Duration = -1

// Page describes what the HTTP layer serves for a window.
type Page struct {
	// Content is inline HTML or a file path relative to RootFolder.
	Content    string
	Inline     bool
	RootFolder string
}

// Window is a logical UI surface.
type Window struct {
	id  uint64
	mgr *Manager

	mu          sync.Mutex
	page        Page
	blocking    bool
	worker      *worker
	eventNumber uint64
	destroyed   bool
}

// ID returns the window id.
func (w *Window) ID() uint64 { return w.id }

// Bind registers handler for element. An empty element receives every event
// on the window. Binding an element again replaces its handler. Names the
// transport would refuse (too long, control characters) are not bound and
// yield 0.
func (w *Window) Bind(element string, handler binding.Handler) uint64 {
	if w.isDestroyed() {
		return 0
	}
	if err := utils.ValidateElement(element); err != nil {
		w.mgr.logger.Warn("Binding rejected", zap.Uint64("window", w.id), zap.Error(err))
		return 0
	}
	id := w.mgr.registry.Bind(w.id, element, handler)
	w.mgr.updateBindingGauge()
	return id
}

// SetContext attaches ctx to element; events for it expose the value.
func (w *Window) SetContext(element string, ctx any) {
	w.mgr.registry.SetContext(w.id, element, ctx)
}

// Bindings lists the named elements bound on the window.
func (w *Window) Bindings() []string {
	return w.mgr.registry.Elements(w.id)
}

// Globals lists the bound elements whose names are valid JS identifiers.
// The client script exposes these as global functions.
func (w *Window) Globals() []string {
	var out []string
	for _, name := range w.Bindings() {
		if utils.IsJSIdentifier(name) {
			out = append(out, name)
		}
	}
	return out
}

// HasWildcard reports whether an empty-element binding exists, in which
// case the page reports clicks on every element with an id.
func (w *Window) HasWildcard() bool {
	return w.mgr.registry.Lookup(w.id, "") != 0
}

// SetEventBlocking selects serialized (true) or concurrent (false) dispatch.
// Events already queued on the worker still run in order.
func (w *Window) SetEventBlocking(blocking bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if blocking == w.blocking || w.destroyed {
		return
	}
	w.blocking = blocking
	if blocking {
		w.worker = newWorker()
		return
	}
	w.worker.stop()
	w.worker = nil
}

// EventBlocking reports the dispatch mode.
func (w *Window) EventBlocking() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.blocking
}

// enqueue numbers the event and schedules job according to the dispatch
// mode. The number is fixed here, in transport arrival order.
func (w *Window) enqueue(job func(number uint64)) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.destroyed {
		return false
	}
	w.eventNumber++
	number := w.eventNumber
	run := func() { job(number) }

	if w.blocking {
		return w.worker.submit(run)
	}
	go run()
	return true
}

// Run executes js in every connection of the window without waiting.
// Frames are queued per connection; a connection whose queue is full
// (BRIDGE_SEND_BUFFER frames) is dropped as a slow consumer.
func (w *Window) Run(js string) error {
	if w.isDestroyed() {
		return fmt.Errorf("%w: %d", ErrUnknownWindow, w.id)
	}
	var errs []error
	for _, c := range w.mgr.connectionsOf(w.id) {
		if err := c.Run(js); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Script runs js in the most recently active connection and copies the
// result, or a failure message, into buf. The copy is truncated to the
// length of buf. A zero timeout waits until the browser answers.
func (w *Window) Script(ctx context.Context, js string, timeout time.Duration, buf []byte) (int, bool) {
	data, err := w.Eval(ctx, js, timeout)
	return script.Fill(buf, script.Message(err, data)), err == nil
}

// Eval is Script returning the result as a string.
func (w *Window) Eval(ctx context.Context, js string, timeout time.Duration) (string, error) {
	if w.isDestroyed() {
		return script.ErrWindowClosed.Error(), script.ErrWindowClosed
	}
	c, ok := w.mgr.mostRecent(w.id)
	if !ok {
		return script.ErrWindowClosed.Error(), script.ErrWindowClosed
	}
	return c.Eval(ctx, js, timeout)
}

// SendRaw pushes data to function in every connection of the window. Like
// Run it only queues; pushing faster than a browser reads overflows the
// connection's send queue and closes it.
func (w *Window) SendRaw(function string, data []byte) error {
	if w.isDestroyed() {
		return fmt.Errorf("%w: %d", ErrUnknownWindow, w.id)
	}
	var errs []error
	for _, c := range w.mgr.connectionsOf(w.id) {
		if err := c.SendRaw(function, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Navigate points every connection of the window at url.
func (w *Window) Navigate(url string) error {
	var errs []error
	for _, c := range w.mgr.connectionsOf(w.id) {
		if err := c.Navigate(url); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every connection of the window. The window stays usable and
// can be shown again.
func (w *Window) Close() error {
	var errs []error
	for _, c := range w.mgr.connectionsOf(w.id) {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// IsShown reports whether at least one connection is live.
func (w *Window) IsShown() bool {
	return len(w.mgr.connectionsOf(w.id)) > 0
}

// Destroy closes the window's connections and releases its bindings. The
// id is not reused.
func (w *Window) Destroy() {
	w.mu.Lock()
	if w.destroyed {
		w.mu.Unlock()
		return
	}
	w.destroyed = true
	if w.worker != nil {
		w.worker.stop()
		w.worker = nil
	}
	w.mu.Unlock()

	_ = w.Close()
	removed := w.mgr.registry.RemoveWindow(w.id)
	w.mgr.forget(w.id)

	w.mgr.logger.Info("Window destroyed",
		zap.Uint64("window", w.id),
		zap.Int("bindings_removed", removed),
	)
}

func (w *Window) isDestroyed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.destroyed
}

// SetRootFolder sets the directory files are served from.
func (w *Window) SetRootFolder(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("root folder %s is not a directory", abs)
	}
	w.mu.Lock()
	w.page.RootFolder = abs
	w.mu.Unlock()
	return nil
}

// Page returns what the HTTP layer serves for the window.
func (w *Window) Page() Page {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.page
}

// setContent records inline HTML or a file path to serve.
func (w *Window) setContent(content string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.page.Content = content
	w.page.Inline = isInlineHTML(content)
	if w.page.RootFolder == "" {
		w.page.RootFolder = w.mgr.opts.RootFolder
	}
}

func isInlineHTML(content string) bool {
	trimmed := strings.TrimSpace(content)
	return strings.HasPrefix(trimmed, "<")
}

// StartServer starts serving content and returns the window URL.
func (w *Window) StartServer(content string) (string, error) {
	if w.isDestroyed() {
		return "", fmt.Errorf("%w: %d", ErrUnknownWindow, w.id)
	}
	w.setContent(content)
	return w.URL()
}

// Show serves content and logs the URL. Opening a browser is left to the
// caller.
func (w *Window) Show(content string) (string, error) {
	url, err := w.StartServer(content)
	if err != nil {
		return "", err
	}
	w.mgr.logger.Info("Window ready", zap.Uint64("window", w.id), zap.String("url", url))
	return url, nil
}

// URL returns the address the window is served on, starting the server if
// needed.
func (w *Window) URL() (string, error) {
	base, err := w.mgr.serverURL()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/win/%d/", strings.TrimRight(base, "/"), w.id), nil
}
