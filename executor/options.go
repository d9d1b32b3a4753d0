package executor

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"
)

// WorkerCommand is the hidden CLI argument that starts a worker process.
const WorkerCommand = "worker"

// Option configures a Strategy.
type Option func(*config)

type config struct {
	log     *slog.Logger
	timeout time.Duration

	// Isolated only.
	command      func(ctx context.Context) (*exec.Cmd, error)
	workerStderr io.Writer
	maxLineSize  int
}

const defaultMaxLineSize = 16 << 20 // 16MB

func defaultConfig() config {
	return config{
		log:          slog.Default(),
		command:      selfCommand,
		workerStderr: os.Stderr,
		maxLineSize:  defaultMaxLineSize,
	}
}

func newConfig(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// selfCommand re-executes the running binary in worker mode.
func selfCommand(ctx context.Context) (*exec.Cmd, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, err
	}
	return exec.CommandContext(ctx, exe, WorkerCommand), nil
}

// WithLogger sets the logger for invocation lifecycle and handler debug output.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithTimeout bounds every invocation. Zero, the default, means no bound.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// WithCommand overrides how isolated workers are started. The command must
// speak the worker protocol on stdin/stdout (see ServeWorker).
//
// Examples:
//
//	executor.NewIsolated(executor.WithCommand(func(ctx context.Context) (*exec.Cmd, error) {
//	    return exec.CommandContext(ctx, "/usr/local/bin/fnhost", "worker"), nil
//	}))
func WithCommand(fn func(ctx context.Context) (*exec.Cmd, error)) Option {
	return func(c *config) {
		c.command = fn
	}
}

// WithWorkerStderr sets where worker stderr goes. Defaults to os.Stderr.
func WithWorkerStderr(w io.Writer) Option {
	return func(c *config) {
		c.workerStderr = w
	}
}

// WithMaxMessageSize caps a single worker protocol line. A longer line fails
// the invocation with a receive TransportError.
func WithMaxMessageSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxLineSize = n
		}
	}
}
