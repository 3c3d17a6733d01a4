package headless

import (
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

//go:embed browser.js
var browserJS string

// ErrClientClosed is returned once the client has been closed.
var ErrClientClosed = errors.New("headless client closed")

// LogEntry is one console line written by page scripts.
type LogEntry struct {
	Level   string
	Message string
	Time    time.Time
}

// browser is the Go side of the shimmed WebSocket and window globals.
type browser interface {
	dial(rawURL string, ws *goja.Object) uint64
	send(socketID uint64, text string) error
	close(socketID uint64)
	closeWindow()
	navigate(rawURL string)
}

// shim holds the entry points browser.js returns.
type shim struct {
	open    goja.Callable
	message goja.Callable
	closed  goja.Callable
	click   goja.Callable
}

// runtime owns a goja VM. goja is single threaded, so every touch of the VM
// happens on the loop goroutine through post.
type runtime struct {
	vm       *goja.Runtime
	shim     shim
	limit    time.Duration
	logger   *zap.Logger
	jobs     chan func()
	done     chan struct{}
	stopOnce sync.Once

	consoleMu sync.Mutex
	console   []LogEntry

	timersMu  sync.Mutex
	timers    map[int64]*time.Timer
	nextTimer int64
}

func newRuntime(b browser, page *url.URL, limit time.Duration, logger *zap.Logger) (*runtime, error) {
	r := &runtime{
		vm:     goja.New(),
		limit:  limit,
		logger: logger,
		jobs:   make(chan func(), 256),
		done:   make(chan struct{}),
		timers: make(map[int64]*time.Timer),
	}
	if err := r.setupGlobals(); err != nil {
		return nil, err
	}
	if err := r.installBrowser(b, page); err != nil {
		return nil, err
	}

	go r.loop()
	return r, nil
}

// installBrowser evaluates browser.js against a host object backed by b.
func (r *runtime) installBrowser(b browser, page *url.URL) error {
	boot, err := r.vm.RunScript("browser.js", browserJS)
	if err != nil {
		return fmt.Errorf("failed to evaluate browser shim: %w", err)
	}
	fn, ok := goja.AssertFunction(boot)
	if !ok {
		return errors.New("browser shim did not evaluate to a function")
	}

	host := r.vm.NewObject()
	for name, value := range map[string]any{
		"dial": func(call goja.FunctionCall) goja.Value {
			return r.vm.ToValue(b.dial(call.Argument(0).String(), call.Argument(1).ToObject(r.vm)))
		},
		"send": func(call goja.FunctionCall) goja.Value {
			if err := b.send(uint64(call.Argument(0).ToInteger()), call.Argument(1).String()); err != nil {
				panic(r.vm.NewGoError(err))
			}
			return goja.Undefined()
		},
		"close":       func(id int64) { b.close(uint64(id)) },
		"closeWindow": b.closeWindow,
		"navigate":    b.navigate,
		"encodeUTF8": func(text string) goja.Value {
			return r.vm.ToValue(r.vm.NewArrayBuffer([]byte(text)))
		},
		"decodeUTF8": func(call goja.FunctionCall) goja.Value {
			return r.vm.ToValue(string(r.bytes(call.Argument(0))))
		},
		"btoa":     r.btoa,
		"atob":     r.atob,
		"href":     page.String(),
		"protocol": page.Scheme + ":",
		"host":     page.Host,
		"pathname": page.Path,
	} {
		if err := host.Set(name, value); err != nil {
			return err
		}
	}

	exported, err := fn(goja.Undefined(), host, r.vm.GlobalObject())
	if err != nil {
		return fmt.Errorf("failed to run browser shim: %w", err)
	}
	obj := exported.ToObject(r.vm)
	for name, dst := range map[string]*goja.Callable{
		"open":    &r.shim.open,
		"message": &r.shim.message,
		"closed":  &r.shim.closed,
		"click":   &r.shim.click,
	} {
		f, ok := goja.AssertFunction(obj.Get(name))
		if !ok {
			return fmt.Errorf("browser shim entry %q missing", name)
		}
		*dst = f
	}
	return nil
}

func (r *runtime) loop() {
	for {
		select {
		case job := <-r.jobs:
			job()
		case <-r.done:
			return
		}
	}
}

// post queues job for the loop. It reports false once the runtime stopped.
func (r *runtime) post(job func()) bool {
	select {
	case <-r.done:
		return false
	default:
	}
	select {
	case r.jobs <- job:
		return true
	case <-r.done:
		return false
	}
}

// do runs fn on the loop and waits for it.
func (r *runtime) do(fn func(vm *goja.Runtime) error) error {
	out := make(chan error, 1)
	if !r.post(func() { out <- fn(r.vm) }) {
		return ErrClientClosed
	}
	select {
	case err := <-out:
		return err
	case <-r.done:
		return ErrClientClosed
	}
}

// call invokes fn under the execution limit. Must be called on the loop.
func (r *runtime) call(fn goja.Callable, args ...goja.Value) error {
	return r.guard(func() error {
		_, err := fn(goja.Undefined(), args...)
		return err
	})
}

// run evaluates a whole script, as a <script> element would.
func (r *runtime) run(name, src string) error {
	return r.do(func(vm *goja.Runtime) error {
		return r.guard(func() error {
			_, err := vm.RunScript(name, src)
			return err
		})
	})
}

// evaluate runs src on the loop and returns its exported value.
func (r *runtime) evaluate(src string) (any, error) {
	var value any
	err := r.do(func(vm *goja.Runtime) error {
		return r.guard(func() error {
			v, err := vm.RunString(src)
			if err == nil && v != nil && !goja.IsUndefined(v) && !goja.IsNull(v) {
				value = v.Export()
			}
			return err
		})
	})
	return value, err
}

// guard runs fn with an execution limit. Must be called on the loop.
func (r *runtime) guard(fn func() error) error {
	timer := time.AfterFunc(r.limit, func() {
		r.vm.Interrupt("execution timeout exceeded")
	})
	err := fn()
	timer.Stop()
	r.vm.ClearInterrupt()
	if err != nil {
		r.logger.Debug("Page script failed", zap.Error(err))
	}
	return err
}

// bytes reads a Uint8Array, ArrayBuffer or array of numbers.
func (r *runtime) bytes(v goja.Value) []byte {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	switch b := v.Export().(type) {
	case []byte:
		return b
	case goja.ArrayBuffer:
		return b.Bytes()
	}
	obj := v.ToObject(r.vm)
	length := obj.Get("length")
	if length == nil {
		return nil
	}
	out := make([]byte, length.ToInteger())
	for i := range out {
		out[i] = byte(obj.Get(strconv.Itoa(i)).ToInteger())
	}
	return out
}

// btoa encodes a binary string, one byte per character.
func (r *runtime) btoa(call goja.FunctionCall) goja.Value {
	text := call.Argument(0).String()
	buf := make([]byte, 0, len(text))
	for _, ch := range text {
		if ch > 0xFF {
			panic(r.vm.NewTypeError("btoa: character outside of Latin1 range"))
		}
		buf = append(buf, byte(ch))
	}
	return r.vm.ToValue(base64.StdEncoding.EncodeToString(buf))
}

// atob decodes base64 into a binary string.
func (r *runtime) atob(call goja.FunctionCall) goja.Value {
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(call.Argument(0).String()))
	if err != nil {
		panic(r.vm.NewTypeError("atob: " + err.Error()))
	}
	chars := make([]rune, len(data))
	for i, b := range data {
		chars[i] = rune(b)
	}
	return r.vm.ToValue(string(chars))
}

// setupGlobals configures console and timers and removes module globals
func (r *runtime) setupGlobals() error {
	for _, name := range []string{"require", "process", "module", "exports"} {
		if err := r.vm.Set(name, goja.Undefined()); err != nil {
			return err
		}
	}

	console := r.vm.NewObject()
	for _, level := range []string{"log", "warn", "error", "info"} {
		if err := console.Set(level, r.makeConsoleFunc(level)); err != nil {
			return err
		}
	}
	if err := r.vm.Set("console", console); err != nil {
		return err
	}

	if err := r.vm.Set("setTimeout", r.setTimeout); err != nil {
		return err
	}
	return r.vm.Set("clearTimeout", r.clearTimeout)
}

// makeConsoleFunc creates a console function
func (r *runtime) makeConsoleFunc(level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = arg.String()
		}
		msg := strings.Join(parts, " ")

		r.consoleMu.Lock()
		r.console = append(r.console, LogEntry{
			Level:   level,
			Message: msg,
			Time:    time.Now(),
		})
		r.consoleMu.Unlock()

		r.logger.Debug("Page console", zap.String("level", level), zap.String("message", msg))
		return goja.Undefined()
	}
}

func (r *runtime) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		return goja.Undefined()
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	extra := append([]goja.Value(nil), call.Arguments[min(2, len(call.Arguments)):]...)

	r.timersMu.Lock()
	r.nextTimer++
	id := r.nextTimer
	r.timers[id] = time.AfterFunc(delay, func() {
		r.timersMu.Lock()
		_, live := r.timers[id]
		delete(r.timers, id)
		r.timersMu.Unlock()
		if !live {
			return
		}
		r.post(func() {
			r.guard(func() error {
				_, err := fn(goja.Undefined(), extra...)
				return err
			})
		})
	})
	r.timersMu.Unlock()

	return r.vm.ToValue(id)
}

func (r *runtime) clearTimeout(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	r.timersMu.Lock()
	if t, ok := r.timers[id]; ok {
		t.Stop()
		delete(r.timers, id)
	}
	r.timersMu.Unlock()
	return goja.Undefined()
}

// Console returns a copy of everything page scripts logged.
func (r *runtime) Console() []LogEntry {
	r.consoleMu.Lock()
	defer r.consoleMu.Unlock()
	return append([]LogEntry(nil), r.console...)
}

func (r *runtime) stop() {
	r.stopOnce.Do(func() {
		r.timersMu.Lock()
		for id, t := range r.timers {
			t.Stop()
			delete(r.timers, id)
		}
		r.timersMu.Unlock()
		close(r.done)
	})
}
