package sse

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/camlog/camlog/pkg/logging"
)

// Connection is one live SSE stream. The Manager exclusively owns every
// connection it registers: its output handle, its heartbeat timer and its
// registry entry all live and die together.
type Connection struct {
	// ID is unique even across repeated subscriptions from the same
	// client: clientID plus the creation timestamp.
	ID string
	// ClientID identifies the subscribing client.
	ClientID string
	// Types is the subscribed event-type list; empty means all events.
	Types []string
	// CreatedAt is when the connection was registered.
	CreatedAt time.Time

	w       http.ResponseWriter
	flusher http.Flusher

	mu         sync.Mutex // serializes writes to w
	lastActive time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// Done is closed when the manager removes the connection. The transport
// handler selects on it to end the HTTP response.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// write sends raw frame bytes and flushes. Not safe to call outside the
// manager.
func (c *Connection) write(frame string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}

	if _, err := c.w.Write([]byte(frame)); err != nil {
		return err
	}
	c.flusher.Flush()
	c.lastActive = time.Now()
	return nil
}

// subscribedTo reports whether the connection wants the given event type.
func (c *Connection) subscribedTo(eventType string) bool {
	return len(c.Types) == 0 || slices.Contains(c.Types, eventType)
}

// ConnectionObserver is notified as streaming connections come and go.
// Calls are balanced: every StreamOpened is eventually matched by exactly
// one StreamClosed.
type ConnectionObserver interface {
	StreamOpened()
	StreamClosed()
}

// Manager registers SSE connections, runs their heartbeats and fans
// domain events out to them. Broadcast delivery is best-effort: a write
// failure reaps that one connection and never affects the others.
type Manager struct {
	heartbeat time.Duration
	log       *slog.Logger
	obs       ConnectionObserver

	mu    sync.Mutex
	conns map[string]*Connection
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithObserver sets the connection lifecycle observer.
func WithObserver(obs ConnectionObserver) ManagerOption {
	return func(m *Manager) {
		m.obs = obs
	}
}

// NewManager creates a connection manager with the given heartbeat
// interval. A non-positive interval falls back to the default.
func NewManager(heartbeat time.Duration, opts ...ManagerOption) *Manager {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	m := &Manager{
		heartbeat: heartbeat,
		log:       logging.Nop(),
		conns:     make(map[string]*Connection),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Add registers a new streaming connection. It emits the stream headers,
// sends the initial connected frame carrying the connection id, and starts
// the per-connection heartbeat timer.
func (m *Manager) Add(clientID string, w http.ResponseWriter, types []string) (*Connection, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}

	h := w.Header()
	h.Set("Content-Type", ContentTypeEventStream)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	now := time.Now()
	conn := &Connection{
		ID:         fmt.Sprintf("%s-%d", clientID, now.UnixNano()),
		ClientID:   clientID,
		Types:      types,
		CreatedAt:  now,
		w:          w,
		flusher:    flusher,
		lastActive: now,
		done:       make(chan struct{}),
	}

	m.mu.Lock()
	m.conns[conn.ID] = conn
	m.mu.Unlock()
	if m.obs != nil {
		m.obs.StreamOpened()
	}

	frame, err := FormatFrame(EventConnected, map[string]string{"connectionId": conn.ID})
	if err == nil {
		err = conn.write(frame)
	}
	if err != nil {
		m.Remove(conn.ID)
		return nil, err
	}

	go m.heartbeatLoop(conn)

	m.log.Debug("sse connection added",
		"connection_id", conn.ID, "client_id", clientID, "types", types)
	return conn, nil
}

// heartbeatLoop writes a heartbeat frame at the configured interval until
// the connection is removed. A failed write reaps the connection.
func (m *Manager) heartbeatLoop(conn *Connection) {
	ticker := time.NewTicker(m.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-conn.done:
			return
		case <-ticker.C:
			frame, err := FormatFrame(EventHeartbeat, map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			if err == nil {
				err = conn.write(frame)
			}
			if err != nil {
				m.log.Debug("sse heartbeat failed, removing connection",
					"connection_id", conn.ID, "error", err)
				m.Remove(conn.ID)
				return
			}
		}
	}
}

// Broadcast delivers an event to every connection whose subscription list
// is empty or contains eventType. Failures are isolated per connection: a
// dead transport is removed and the remaining deliveries proceed.
func (m *Manager) Broadcast(eventType string, data any) {
	frame, err := FormatFrame(eventType, data)
	if err != nil {
		m.log.Warn("sse broadcast dropped", "event", eventType, "error", err)
		return
	}

	m.mu.Lock()
	targets := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		if conn.subscribedTo(eventType) {
			targets = append(targets, conn)
		}
	}
	m.mu.Unlock()

	for _, conn := range targets {
		if err := conn.write(frame); err != nil {
			m.log.Debug("sse write failed, removing connection",
				"connection_id", conn.ID, "error", err)
			m.Remove(conn.ID)
		}
	}
}

// Remove deregisters a connection, cancels its heartbeat and releases its
// output handle. Removing an already-removed connection is a no-op.
func (m *Manager) Remove(connectionID string) {
	m.mu.Lock()
	conn, ok := m.conns[connectionID]
	if ok {
		delete(m.conns, connectionID)
	}
	m.mu.Unlock()

	if !ok {
		return
	}
	if m.obs != nil {
		m.obs.StreamClosed()
	}
	conn.stopOnce.Do(func() { close(conn.done) })
}

// CloseAll cancels every heartbeat and ends every connection. Used only
// during server shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := make([]*Connection, 0, len(m.conns))
	for _, conn := range m.conns {
		conns = append(conns, conn)
	}
	m.conns = make(map[string]*Connection)
	m.mu.Unlock()

	for _, conn := range conns {
		if m.obs != nil {
			m.obs.StreamClosed()
		}
		conn.stopOnce.Do(func() { close(conn.done) })
	}
}

// Count returns the number of live connections.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}
