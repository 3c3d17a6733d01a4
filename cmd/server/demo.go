package main

import (
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/webbridge/internal/domain/event"
	"github.com/GriffinCanCode/webbridge/internal/domain/window"
)

// demo keeps one note per client and one note shared by everybody.
type demo struct {
	logger *zap.Logger

	mu     sync.Mutex
	notes  map[uint64]string
	shared string
}

func newDemo(logger *zap.Logger) *demo {
	return &demo{
		logger: logger,
		notes:  make(map[uint64]string),
	}
}

func (d *demo) bind(w *window.Window, exit func()) {
	w.Bind("", d.lifecycle)
	w.Bind("save", d.save)
	w.Bind("saveAll", d.saveAll)
	w.Bind("exit_app", func(e *event.Event) {
		d.logger.Info("Exit requested", zap.Uint64("client", e.ClientID))
		exit()
	})
}

func (d *demo) lifecycle(e *event.Event) {
	switch e.Type {
	case event.Connected:
		d.mu.Lock()
		note, shared := d.notes[e.ClientID], d.shared
		d.mu.Unlock()
		d.logger.Info("Client connected",
			zap.Uint64("client", e.ClientID),
			zap.Uint64("connection", e.ConnectionID),
		)
		_ = e.RunClient(fmt.Sprintf("showNotes(%s, %s, %d)", jsString(note), jsString(shared), e.ClientID))
	case event.Disconnected:
		d.logger.Info("Client disconnected",
			zap.Uint64("client", e.ClientID),
			zap.Uint64("connection", e.ConnectionID),
		)
	}
}

// save stores the caller's private note.
func (d *demo) save(e *event.Event) {
	text := e.String(0)
	d.mu.Lock()
	d.notes[e.ClientID] = text
	d.mu.Unlock()
	e.ReturnString(fmt.Sprintf("saved %d bytes for client %d", len(text), e.ClientID))
}

// saveAll stores the shared note and pushes it to every open page.
func (d *demo) saveAll(e *event.Event) {
	text := e.String(0)
	d.mu.Lock()
	d.shared = text
	d.mu.Unlock()

	if err := e.Window().Run(fmt.Sprintf("showShared(%s)", jsString(text))); err != nil {
		d.logger.Warn("Failed to push shared note", zap.Error(err))
	}
	e.ReturnBool(true)
}

func jsString(s string) string {
	out, err := sonic.MarshalString(s)
	if err != nil {
		return `""`
	}
	return out
}

const demoPage = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>webbridge demo</title>
  <style>
    body { font-family: sans-serif; max-width: 40em; margin: 2em auto; }
    textarea { width: 100%; height: 6em; }
  </style>
</head>
<body>
  <h1>Client <span id="client">?</span></h1>
  <h2>Private note</h2>
  <textarea id="note"></textarea>
  <button onclick="save(document.getElementById('note').value).then(setStatus)">Save</button>
  <h2>Shared note</h2>
  <textarea id="sharedNote"></textarea>
  <button onclick="saveAll(document.getElementById('sharedNote').value)">Save for everyone</button>
  <p id="status"></p>
  <button id="exit_app">Exit</button>
  <script>
    function setStatus(text) { document.getElementById("status").textContent = text; }
    function showShared(text) { document.getElementById("sharedNote").value = text; }
    function showNotes(note, shared, client) {
      document.getElementById("note").value = note;
      document.getElementById("client").textContent = client;
      showShared(shared);
    }
  </script>
</body>
</html>`
