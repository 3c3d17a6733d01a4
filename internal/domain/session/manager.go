package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ErrUnknownConnection is returned when removing a connection that is not in
// the table.
var ErrUnknownConnection = errors.New("unknown connection")

// Mode selects how client identity is derived.
type Mode struct {
	MultiClient bool
	UseCookies  bool
}

// Client is a logical end user.
type Client struct {
	ID          uint64
	Cookie      string
	Connections int
	FirstSeen   time.Time
}

// Active reports whether the client has at least one live connection.
func (c Client) Active() bool {
	return c.Connections > 0
}

// Connection is one live transport session.
type Connection struct {
	ID          uint64
	ClientID    uint64
	Window      uint64
	Cookies     string
	ConnectedAt time.Time
	LastActive  time.Time

	clientKey string
}

// Stats holds the observable counters.
type Stats struct {
	ClientsSeen       int
	ActiveConnections int
}

// ConnectResult is returned by Connect.
type ConnectResult struct {
	Client     Client
	Connection Connection
	NewClient  bool
	Stats      Stats
}

// Table is the session/client table.
type Table struct {
	mu          sync.Mutex
	mode        Mode
	nextClient  uint64
	nextConn    uint64
	clients     map[string]*Client
	connections map[uint64]*Connection
	active      int
	now         func() time.Time
}

// NewTable creates an empty table.
func NewTable(mode Mode) *Table {
	return &Table{
		mode:        mode,
		clients:     make(map[string]*Client),
		connections: make(map[uint64]*Connection),
		now:         time.Now,
	}
}

// Mode returns the identity mode of the table.
func (t *Table) Mode() Mode {
	return t.mode
}

// clientKey derives the identity key. Must be called with t.mu held.
func (t *Table) clientKey(window uint64, cookie string, connID uint64) string {
	if !t.mode.MultiClient {
		return fmt.Sprintf("window:%d", window)
	}
	if t.mode.UseCookies && cookie != "" {
		return "cookie:" + cookie
	}
	return fmt.Sprintf("connection:%d", connID)
}

// Connect registers a new connection on window. cookie is the identity cookie
// value, rawCookies the full Cookie header.
func (t *Table) Connect(window uint64, cookie, rawCookies string) ConnectResult {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.nextConn++
	connID := t.nextConn
	now := t.now()

	k := t.clientKey(window, cookie, connID)
	client, seen := t.clients[k]
	if !seen {
		client = &Client{Cookie: cookie, FirstSeen: now}
		if t.mode.MultiClient {
			client.ID = t.nextClient
			t.nextClient++
		}
		t.clients[k] = client
	}
	client.Connections++

	conn := &Connection{
		ID:          connID,
		ClientID:    client.ID,
		Window:      window,
		Cookies:     rawCookies,
		ConnectedAt: now,
		LastActive:  now,
		clientKey:   k,
	}
	t.connections[connID] = conn
	t.active++

	return ConnectResult{
		Client:     *client,
		Connection: *conn,
		NewClient:  !seen,
		Stats:      t.statsLocked(),
	}
}

// Disconnect removes a connection. The client entry is kept.
func (t *Table) Disconnect(connID uint64) (Connection, Stats, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	conn, ok := t.connections[connID]
	if !ok {
		return Connection{}, t.statsLocked(), fmt.Errorf("%w: %d", ErrUnknownConnection, connID)
	}
	delete(t.connections, connID)
	if t.active > 0 {
		t.active--
	}
	if c, ok := t.clients[conn.clientKey]; ok && c.Connections > 0 {
		c.Connections--
	}
	return *conn, t.statsLocked(), nil
}

// Touch records activity on a connection.
func (t *Table) Touch(connID uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if conn, ok := t.connections[connID]; ok {
		conn.LastActive = t.now()
	}
}

// Get returns a live connection.
func (t *Table) Get(connID uint64) (Connection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	conn, ok := t.connections[connID]
	if !ok {
		return Connection{}, false
	}
	return *conn, true
}

// Connections returns the live connections of window ordered by id.
func (t *Table) Connections(window uint64) []Connection {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]Connection, 0)
	for _, conn := range t.connections {
		if conn.Window == window {
			out = append(out, *conn)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// MostRecent returns the most recently active connection of window.
func (t *Table) MostRecent(window uint64) (Connection, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var best *Connection
	for _, conn := range t.connections {
		if conn.Window != window {
			continue
		}
		if best == nil || conn.LastActive.After(best.LastActive) ||
			(conn.LastActive.Equal(best.LastActive) && conn.ID > best.ID) {
			best = conn
		}
	}
	if best == nil {
		return Connection{}, false
	}
	return *best, true
}

// Client returns the client with the given id, if any was seen.
func (t *Table) Client(id uint64) (Client, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.clients {
		if c.ID == id {
			return *c, true
		}
	}
	return Client{}, false
}

// Stats returns the current counters.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.statsLocked()
}

func (t *Table) statsLocked() Stats {
	return Stats{
		ClientsSeen:       len(t.clients),
		ActiveConnections: t.active,
	}
}

// Reset drops all connections and clients.
func (t *Table) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.clients = make(map[string]*Client)
	t.connections = make(map[uint64]*Connection)
	t.active = 0
}
