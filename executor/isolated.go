package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"

	"github.com/caffeineduck/fnhost/reply"
	"github.com/google/uuid"
)

// TransportError is a failure to talk to a worker process: it could not be
// started, fed, or it went away without a terminal message.
type TransportError struct {
	Op  string // "spawn", "send", "receive" or "decode"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("worker %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrNoTerminalMessage reports a worker that exited without replying.
var ErrNoTerminalMessage = errors.New("worker exited without a reply")

// Isolated runs every invocation in a fresh worker process. Workers are
// never reused: each is killed once its terminal message arrives.
type Isolated struct {
	cfg config
}

func NewIsolated(opts ...Option) *Isolated {
	return &Isolated{cfg: newConfig(opts)}
}

func (i *Isolated) Invoke(ctx context.Context, req Request) (reply.Outcome, error) {
	if i.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, i.cfg.timeout)
		defer cancel()
	}

	log := i.cfg.log.With("invocation", uuid.NewString(), "function", req.FunctionPath, "mode", "isolated")
	m := newMachine(log)

	outcome, err := i.invoke(ctx, req, m, log)
	if serr := m.settle(outcome, err); serr != nil {
		log.Error("settle invocation", "error", serr)
	}
	return outcome, err
}

func (i *Isolated) invoke(ctx context.Context, req Request, m *machine, log *slog.Logger) (reply.Outcome, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return reply.Outcome{}, &TransportError{Op: "send", Err: err}
	}

	cmd, err := i.cfg.command(ctx)
	if err != nil {
		return reply.Outcome{}, &TransportError{Op: "spawn", Err: err}
	}
	cmd.Stderr = i.cfg.workerStderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return reply.Outcome{}, &TransportError{Op: "spawn", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return reply.Outcome{}, &TransportError{Op: "spawn", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return reply.Outcome{}, &TransportError{Op: "spawn", Err: err}
	}
	defer stopWorker(cmd, log)

	if err := m.transition(Dispatched); err != nil {
		return reply.Outcome{}, err
	}
	if _, err := stdin.Write(append(payload, '\n')); err != nil {
		return reply.Outcome{}, &TransportError{Op: "send", Err: err}
	}
	stdin.Close()

	if err := m.transition(AwaitingReply); err != nil {
		return reply.Outcome{}, err
	}
	return i.await(ctx, stdout, log)
}

// await reads worker lines until the terminal message.
func (i *Isolated) await(ctx context.Context, stdout io.Reader, log *slog.Logger) (reply.Outcome, error) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, min(64*1024, i.cfg.maxLineSize)), i.cfg.maxLineSize)

	for scanner.Scan() {
		var msg workerMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			return reply.Outcome{}, &TransportError{Op: "decode", Err: err}
		}
		if msg.terminal() {
			return reply.Outcome{Reply: msg.Reply, Err: msg.Err}, nil
		}
		if len(msg.DebugArgs) > 0 {
			log.InfoContext(ctx, msg.DebugMessage, "source", "handler", "args", msg.DebugArgs)
		} else {
			log.InfoContext(ctx, msg.DebugMessage, "source", "handler")
		}
	}

	if err := ctx.Err(); err != nil {
		return reply.Outcome{}, &TransportError{Op: "receive", Err: err}
	}
	if err := scanner.Err(); err != nil {
		return reply.Outcome{}, &TransportError{Op: "receive", Err: err}
	}
	return reply.Outcome{}, &TransportError{Op: "receive", Err: ErrNoTerminalMessage}
}

// stopWorker kills the worker and reaps it.
func stopWorker(cmd *exec.Cmd, log *slog.Logger) {
	if cmd.ProcessState == nil {
		_ = cmd.Process.Kill()
	}
	err := cmd.Wait()
	log.Debug("worker stopped", "pid", cmd.Process.Pid, "state", cmd.ProcessState.String(), "wait", err)
}
