package copair

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	aiAnthropic "github.com/copairhq/copair/ai/anthropic"
	"github.com/copairhq/copair/sandbox"
	sqliteStore "github.com/copairhq/copair/store/sqlite"
)

// applyDefaults fills in missing fields on the builder with sensible defaults.
func applyDefaults(b *Builder) error {
	// Config defaults.
	if b.config.ServerAddr == "" {
		b.config.ServerAddr = ":7080"
	}
	if b.config.DataDir == "" {
		b.config.DataDir = defaultDataDir()
	}
	if b.config.DatabasePath == "" {
		b.config.DatabasePath = filepath.Join(b.config.DataDir, "copair.db")
	}
	if b.config.MaxConnections == 0 {
		b.config.MaxConnections = 100
	}
	if b.config.HeartbeatInterval == 0 {
		b.config.HeartbeatInterval = 30 * time.Second
	}
	if b.config.InactivityTimeout == 0 {
		b.config.InactivityTimeout = 5 * time.Minute
	}
	if b.config.SessionIdleTimeout == 0 {
		b.config.SessionIdleTimeout = 24 * time.Hour
	}
	if b.config.SessionSweepInterval == 0 {
		b.config.SessionSweepInterval = 10 * time.Minute
	}
	if b.config.SnapshotInterval == 0 {
		b.config.SnapshotInterval = time.Minute
	}
	if b.config.AITimeout == 0 {
		b.config.AITimeout = 30 * time.Second
	}
	if b.config.ChatHistoryCap == 0 {
		b.config.ChatHistoryCap = 100
	}
	if b.config.SandboxTimeout == 0 {
		b.config.SandboxTimeout = 5 * time.Second
	}

	// Ensure data dir exists.
	if err := os.MkdirAll(b.config.DataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	// Store.
	if b.store == nil {
		st, err := sqliteStore.New(b.config.DatabasePath)
		if err != nil {
			return fmt.Errorf("initializing store: %w", err)
		}
		b.store = st
	}

	// Sandbox runtime.
	if b.sandbox == nil {
		local := sandbox.NewLocal()
		local.DefaultTimeout = b.config.SandboxTimeout
		b.sandbox = local
	}

	// AI generator. nil is fine: assistant replies degrade to the fallback.
	if b.gen == nil {
		if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
			b.gen = aiAnthropic.New(key, os.Getenv("COPAIR_AI_MODEL"))
		}
	}

	return nil
}

// ConfigFromEnv builds a Config from COPAIR_* environment variables.
// Unset variables leave the zero value for applyDefaults to fill.
func ConfigFromEnv() Config {
	return Config{
		ServerAddr:           os.Getenv("COPAIR_ADDR"),
		DataDir:              os.Getenv("COPAIR_DATA_DIR"),
		DatabasePath:         os.Getenv("COPAIR_DB_PATH"),
		MaxConnections:       envInt("COPAIR_MAX_CONNECTIONS"),
		HeartbeatInterval:    envDuration("COPAIR_HEARTBEAT_INTERVAL"),
		InactivityTimeout:    envDuration("COPAIR_INACTIVITY_TIMEOUT"),
		SessionIdleTimeout:   envDuration("COPAIR_SESSION_IDLE_TIMEOUT"),
		SessionSweepInterval: envDuration("COPAIR_SESSION_SWEEP_INTERVAL"),
		SnapshotInterval:     envDuration("COPAIR_SNAPSHOT_INTERVAL"),
		AITimeout:            envDuration("COPAIR_AI_TIMEOUT"),
		ChatHistoryCap:       envInt("COPAIR_CHAT_HISTORY_CAP"),
		SandboxTimeout:       envDuration("COPAIR_SANDBOX_TIMEOUT"),
	}
}

func envInt(name string) int {
	v, err := strconv.Atoi(os.Getenv(name))
	if err != nil {
		return 0
	}
	return v
}

func envDuration(name string) time.Duration {
	d, err := time.ParseDuration(os.Getenv(name))
	if err != nil {
		return 0
	}
	return d
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".copair"
	}
	return filepath.Join(home, ".copair")
}
