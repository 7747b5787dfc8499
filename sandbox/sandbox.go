// Package sandbox runs short, resource- and time-bounded evaluations of
// untrusted code snippets. Every request is independent: no resumption,
// no retry, no session state.
package sandbox

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/copairhq/copair/model"
)

// Status is the terminal state of one execution.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusTimeout Status = "timeout"
)

// Request describes one snippet evaluation.
type Request struct {
	Code     string        `json:"code"`
	Language string        `json:"language"`
	Timeout  time.Duration `json:"timeout_ms"`
	// MemoryLimitKB caps the interpreter's virtual memory (ulimit -v).
	// Zero means no explicit cap.
	MemoryLimitKB int `json:"memory_limit_kb"`
}

// Result is the structured outcome of one execution.
type Result struct {
	Status      Status    `json:"status"`
	Output      string    `json:"output"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// Runtime executes snippets. The engine and HTTP API depend on this
// interface so tests can substitute a fake.
type Runtime interface {
	Execute(ctx context.Context, req Request) (Result, error)
}

// preludes are prepended to snippets to strip network and filesystem
// primitives from the interpreter's global scope before user code runs.
var preludes = map[string]string{
	"javascript": `"use strict";
const require = undefined, process = undefined, fetch = undefined;
const XMLHttpRequest = undefined, WebSocket = undefined;
`,
	"python": `import builtins
for _name in ("open", "exec", "eval", "compile", "__import__", "input"):
    if hasattr(builtins, _name):
        delattr(builtins, _name)
del builtins, _name
`,
}

// Local runs snippets in interpreter subprocesses on the host. The
// program is fed on stdin so no temp files are written, the environment
// is cleared down to PATH, and a prelude removes network/filesystem
// globals. Output is whatever the snippet prints; return values are not
// captured.
type Local struct {
	// Interpreters maps a language to the argv of a command that reads
	// the program from stdin.
	Interpreters map[string][]string

	// DefaultTimeout bounds requests that carry no timeout (default 5s).
	DefaultTimeout time.Duration

	// MaxOutputBytes caps captured output (default 64 KiB).
	MaxOutputBytes int
}

// NewLocal creates a Local runtime with the stock interpreter table.
func NewLocal() *Local {
	return &Local{
		Interpreters: map[string][]string{
			"javascript": {"node", "-"},
			"python":     {"python3", "-"},
		},
		DefaultTimeout: 5 * time.Second,
		MaxOutputBytes: 64 * 1024,
	}
}

// Execute runs one request. Unsupported languages are rejected before any
// execution attempt. A request that outlives its wall clock is aborted
// and reported as StatusTimeout; the abandoned computation yields no
// partial result beyond the output already captured.
func (l *Local) Execute(ctx context.Context, req Request) (Result, error) {
	argv, ok := l.Interpreters[strings.ToLower(req.Language)]
	if !ok {
		return Result{}, fmt.Errorf("%w: %q", model.ErrUnsupported, req.Language)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = l.DefaultTimeout
	}
	maxOutput := l.MaxOutputBytes
	if maxOutput <= 0 {
		maxOutput = 64 * 1024
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if req.MemoryLimitKB > 0 {
		argv = []string{"sh", "-c",
			fmt.Sprintf("ulimit -v %d; exec %s", req.MemoryLimitKB, strings.Join(argv, " "))}
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Env = []string{"PATH=/usr/local/bin:/usr/bin:/bin"}
	cmd.Stdin = strings.NewReader(preludes[strings.ToLower(req.Language)] + req.Code)

	var buf bytes.Buffer
	out := &capWriter{w: &buf, remaining: maxOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	res := Result{StartedAt: time.Now().UTC()}
	err := cmd.Run()
	res.CompletedAt = time.Now().UTC()
	res.Output = buf.String()

	switch {
	case runCtx.Err() == context.DeadlineExceeded:
		res.Status = StatusTimeout
	case err != nil:
		res.Status = StatusError
		if res.Output == "" {
			res.Output = err.Error()
		}
	default:
		res.Status = StatusSuccess
	}
	return res, nil
}

// capWriter discards everything past its byte budget so a chatty snippet
// cannot balloon memory.
type capWriter struct {
	w         io.Writer
	remaining int
}

func (c *capWriter) Write(p []byte) (int, error) {
	n := len(p)
	if c.remaining <= 0 {
		return n, nil
	}
	if n > c.remaining {
		if _, err := c.w.Write(p[:c.remaining]); err != nil && !errors.Is(err, io.ErrShortWrite) {
			return 0, err
		}
		c.remaining = 0
		return n, nil
	}
	if _, err := c.w.Write(p); err != nil {
		return 0, err
	}
	c.remaining -= n
	return n, nil
}
