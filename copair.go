// Package copair is the top-level entry point for the copair
// collaborative editing server.
//
// Use the Builder to compose a custom copair application:
//
//	app, err := copair.NewBuilder().Build()
//	app.Start(ctx)
//
// Or customize every component:
//
//	app, err := copair.NewBuilder().
//	    WithStore(myStore).
//	    WithGenerator(myGenerator).
//	    WithSandbox(myRuntime).
//	    Build()
package copair

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/copairhq/copair/ai"
	"github.com/copairhq/copair/engine"
	"github.com/copairhq/copair/gateway"
	"github.com/copairhq/copair/httpapi"
	"github.com/copairhq/copair/sandbox"
	"github.com/copairhq/copair/store"
)

// Config holds top-level configuration for a copair application.
type Config struct {
	// ServerAddr is the address the HTTP server listens on (default ":7080").
	ServerAddr string

	// DataDir is the directory for persistent data (default "~/.copair").
	DataDir string

	// DatabasePath is the full path to the SQLite database file.
	DatabasePath string

	// MaxConnections is the global websocket connection ceiling (default 100).
	MaxConnections int

	// HeartbeatInterval is the websocket ping cadence (default 30s).
	HeartbeatInterval time.Duration

	// InactivityTimeout is how long a connection may sit without inbound
	// traffic before it is closed (default 5m).
	InactivityTimeout time.Duration

	// SessionIdleTimeout is how long a session may go without activity
	// before it is marked inactive (default 24h).
	SessionIdleTimeout time.Duration

	// SessionSweepInterval is the session-inactivity sweep cadence (default 10m).
	SessionSweepInterval time.Duration

	// SnapshotInterval is the best-effort snapshot flush cadence (default 1m).
	SnapshotInterval time.Duration

	// AITimeout bounds one AI generator call (default 30s).
	AITimeout time.Duration

	// ChatHistoryCap bounds each session's chat history (default 100).
	ChatHistoryCap int

	// SandboxTimeout is the default wall clock for code execution (default 5s).
	SandboxTimeout time.Duration
}

// Builder constructs a copair App.
type Builder struct {
	config  Config
	store   store.SnapshotStore
	gen     ai.Generator
	sandbox sandbox.Runtime
}

// NewBuilder creates a new Builder with sensible defaults.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the application configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithStore sets the snapshot store implementation.
func (b *Builder) WithStore(s store.SnapshotStore) *Builder {
	b.store = s
	return b
}

// WithGenerator sets the AI text generator. Without one, assistant
// requests receive the canned fallback reply.
func (b *Builder) WithGenerator(g ai.Generator) *Builder {
	b.gen = g
	return b
}

// WithSandbox sets the sandbox runtime implementation.
func (b *Builder) WithSandbox(s sandbox.Runtime) *Builder {
	b.sandbox = s
	return b
}

// Build creates the App. Missing components are filled with defaults.
func (b *Builder) Build() (*App, error) {
	if err := applyDefaults(b); err != nil {
		return nil, err
	}

	gw := gateway.New(gateway.Config{
		MaxConnections:    b.config.MaxConnections,
		HeartbeatInterval: b.config.HeartbeatInterval,
		InactivityTimeout: b.config.InactivityTimeout,
	})

	eng := engine.New(
		engine.Config{
			ChatHistoryCap:     b.config.ChatHistoryCap,
			SessionIdleTimeout: b.config.SessionIdleTimeout,
			SweepInterval:      b.config.SessionSweepInterval,
			SnapshotInterval:   b.config.SnapshotInterval,
			GenerateTimeout:    b.config.AITimeout,
		},
		gw,
		b.store,
		b.gen,
		b.sandbox,
	)
	gw.SetHandler(eng)

	server := httpapi.New(eng, gw, b.config.HeartbeatInterval)

	return &App{
		config:  b.config,
		store:   b.store,
		gateway: gw,
		engine:  eng,
		server:  server,
	}, nil
}

// App is a running copair application.
type App struct {
	config  Config
	store   store.SnapshotStore
	gateway *gateway.Gateway
	engine  *engine.Engine
	server  *httpapi.Server
}

// Engine returns the underlying engine for direct access.
func (a *App) Engine() *engine.Engine { return a.engine }

// Start runs the HTTP server and background loops. Blocks until ctx is
// done, then shuts everything down in dependency order.
func (a *App) Start(ctx context.Context) error {
	a.engine.Start(ctx)
	a.gateway.Start()

	srv := &http.Server{
		Addr:    a.config.ServerAddr,
		Handler: a.server.Router(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Printf("copair server listening on %s", a.config.ServerAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}

	a.gateway.Stop()
	a.engine.Stop()
	if a.store != nil {
		return a.store.Close()
	}
	return nil
}
