// Package gateway owns transport-level connections: admission control
// against a global ceiling, per-connection liveness, inactivity eviction,
// and session-scoped broadcast fan-out. Connections are owned exclusively
// by the Gateway; the rest of the system refers to them by opaque id.
package gateway

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/copairhq/copair/model"
	"github.com/copairhq/copair/wire"
)

// Transport is one client connection's transport. ReadMessage blocks
// until a frame arrives or the transport fails. Implementations must
// allow Ping and Close to be called concurrently with WriteMessage.
type Transport interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Ping() error
	Close() error
}

// Handler receives inbound traffic and disconnect notifications.
// HandleMessage is invoked on the connection's reader goroutine, so
// messages from one connection arrive in order. HandleDisconnect is
// invoked exactly once per connection, on its own goroutine (a close can
// be triggered from inside a broadcast).
type Handler interface {
	HandleMessage(connID string, raw []byte)
	HandleDisconnect(connID string)
}

// Config holds gateway tunables.
type Config struct {
	// MaxConnections is the hard global ceiling (default 100).
	MaxConnections int
	// HeartbeatInterval is the ping cadence (default 30s).
	HeartbeatInterval time.Duration
	// InactivityTimeout is how long a connection may sit without inbound
	// traffic before the sweep force-closes it (default 5m).
	InactivityTimeout time.Duration
	// SweepInterval is how often the inactivity sweep runs (default 1m).
	SweepInterval time.Duration
	// SendBuffer is the per-connection outbound queue depth (default 64).
	SendBuffer int
}

func (c Config) withDefaults() Config {
	if c.MaxConnections <= 0 {
		c.MaxConnections = 100
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	if c.InactivityTimeout <= 0 {
		c.InactivityTimeout = 5 * time.Minute
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	return c
}

type conn struct {
	id        string
	transport Transport

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	// guarded by Gateway.mu
	sessionID    string
	lastActivity time.Time
}

// Gateway tracks live connections and fans events out to them.
type Gateway struct {
	cfg     Config
	handler Handler

	mu       sync.Mutex
	conns    map[string]*conn
	sessions map[string]map[string]*conn // sessionID -> connID -> conn

	ctx    chan struct{}
	wg     sync.WaitGroup
	closed bool
}

// New creates a Gateway. SetHandler must be called before Start.
func New(cfg Config) *Gateway {
	return &Gateway{
		cfg:      cfg.withDefaults(),
		conns:    make(map[string]*conn),
		sessions: make(map[string]map[string]*conn),
		ctx:      make(chan struct{}),
	}
}

// SetHandler installs the inbound message handler.
func (g *Gateway) SetHandler(h Handler) { g.handler = h }

// Start launches the heartbeat and inactivity-sweep loops. Call Stop to
// shut down.
func (g *Gateway) Start() {
	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		g.heartbeatLoop()
	}()
	go func() {
		defer g.wg.Done()
		g.sweepLoop()
	}()
}

// Stop halts the background loops and closes every live connection.
func (g *Gateway) Stop() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	close(g.ctx)
	conns := make([]*conn, 0, len(g.conns))
	for _, c := range g.conns {
		conns = append(conns, c)
	}
	g.mu.Unlock()

	for _, c := range conns {
		g.closeConn(c)
	}
	g.wg.Wait()
}

// Accept admits a new connection, or rejects it at the ceiling with a
// capacity error frame and an immediate close. On success the returned
// id identifies the connection for Send/Bind/Publish.
func (g *Gateway) Accept(t Transport) (string, error) {
	g.mu.Lock()
	if g.closed || len(g.conns) >= g.cfg.MaxConnections {
		g.mu.Unlock()
		t.WriteMessage(wire.Encode(wire.ErrorEvent("", model.ErrCapacity)))
		t.Close()
		return "", model.ErrCapacity
	}

	c := &conn{
		id:           uuid.New().String(),
		transport:    t,
		send:         make(chan []byte, g.cfg.SendBuffer),
		done:         make(chan struct{}),
		lastActivity: time.Now(),
	}
	g.conns[c.id] = c
	g.mu.Unlock()

	g.wg.Add(2)
	go func() {
		defer g.wg.Done()
		g.readLoop(c)
	}()
	go func() {
		defer g.wg.Done()
		g.writeLoop(c)
	}()

	return c.id, nil
}

// Send queues an event frame for one connection. A full queue or a dead
// connection counts as a delivery failure: the connection is evicted and
// an error returned.
func (g *Gateway) Send(connID string, data []byte) error {
	g.mu.Lock()
	c, ok := g.conns[connID]
	g.mu.Unlock()
	if !ok {
		return model.ErrNotFound
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return model.ErrNotFound
	default:
		// Slow consumer: treat as an implicit disconnect.
		log.Printf("gateway: send queue full for connection %s, evicting", shortID(connID))
		g.closeConn(c)
		return model.ErrNotFound
	}
}

// Publish delivers a frame to every connection bound to the session,
// except the optionally excluded originator. Delivery is best-effort: a
// failed send evicts that recipient but the fan-out continues.
func (g *Gateway) Publish(sessionID string, data []byte, excludeConnID string) {
	g.mu.Lock()
	bound := g.sessions[sessionID]
	targets := make([]*conn, 0, len(bound))
	for id, c := range bound {
		if id == excludeConnID {
			continue
		}
		targets = append(targets, c)
	}
	g.mu.Unlock()

	for _, c := range targets {
		g.Send(c.id, data)
	}
}

// Bind associates a connection with a session for Publish fan-out.
func (g *Gateway) Bind(connID, sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.conns[connID]
	if !ok {
		return
	}
	if c.sessionID != "" {
		delete(g.sessions[c.sessionID], connID)
	}
	c.sessionID = sessionID
	if g.sessions[sessionID] == nil {
		g.sessions[sessionID] = make(map[string]*conn)
	}
	g.sessions[sessionID][connID] = c
}

// Unbind detaches a connection from its session without closing it.
func (g *Gateway) Unbind(connID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	c, ok := g.conns[connID]
	if !ok {
		return
	}
	if c.sessionID != "" {
		delete(g.sessions[c.sessionID], connID)
		if len(g.sessions[c.sessionID]) == 0 {
			delete(g.sessions, c.sessionID)
		}
		c.sessionID = ""
	}
}

// Close force-closes one connection. Closing an already-closed connection
// is a no-op.
func (g *Gateway) Close(connID string) {
	g.mu.Lock()
	c, ok := g.conns[connID]
	g.mu.Unlock()
	if ok {
		g.closeConn(c)
	}
}

// Count returns the number of live connections.
func (g *Gateway) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

func (g *Gateway) readLoop(c *conn) {
	for {
		raw, err := c.transport.ReadMessage()
		if err != nil {
			g.closeConn(c)
			return
		}
		g.mu.Lock()
		c.lastActivity = time.Now()
		g.mu.Unlock()
		if g.handler != nil {
			g.handler.HandleMessage(c.id, raw)
		}
	}
}

func (g *Gateway) writeLoop(c *conn) {
	for {
		select {
		case data := <-c.send:
			if err := c.transport.WriteMessage(data); err != nil {
				g.closeConn(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (g *Gateway) heartbeatLoop() {
	ticker := time.NewTicker(g.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx:
			return
		case <-ticker.C:
			g.mu.Lock()
			conns := make([]*conn, 0, len(g.conns))
			for _, c := range g.conns {
				conns = append(conns, c)
			}
			g.mu.Unlock()

			for _, c := range conns {
				if err := c.transport.Ping(); err != nil {
					log.Printf("gateway: heartbeat failed for connection %s: %v", shortID(c.id), err)
					g.closeConn(c)
				}
			}
		}
	}
}

func (g *Gateway) sweepLoop() {
	ticker := time.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-g.ctx:
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-g.cfg.InactivityTimeout)
			g.mu.Lock()
			var stale []*conn
			for _, c := range g.conns {
				if c.lastActivity.Before(cutoff) {
					stale = append(stale, c)
				}
			}
			g.mu.Unlock()

			for _, c := range stale {
				log.Printf("gateway: closing inactive connection %s", shortID(c.id))
				g.closeConn(c)
			}
		}
	}
}

// closeConn tears a connection down exactly once: it is removed from the
// live set and its session binding, the transport is closed, and the
// handler is notified on a fresh goroutine.
func (g *Gateway) closeConn(c *conn) {
	c.closeOnce.Do(func() {
		g.mu.Lock()
		delete(g.conns, c.id)
		if c.sessionID != "" {
			delete(g.sessions[c.sessionID], c.id)
			if len(g.sessions[c.sessionID]) == 0 {
				delete(g.sessions, c.sessionID)
			}
		}
		g.mu.Unlock()

		close(c.done)
		c.transport.Close()

		if g.handler != nil {
			g.wg.Add(1)
			go func() {
				defer g.wg.Done()
				g.handler.HandleDisconnect(c.id)
			}()
		}
	})
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
