package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/caffeineduck/fnhost/reply"
	"github.com/caffeineduck/fnhost/scope"
	"github.com/google/uuid"
)

// InProcess runs handlers inside the host process. Globals are shared by
// every invocation.
type InProcess struct {
	runners *RunnerSet
	globals *scope.Globals
	cfg     config
}

func NewInProcess(runners *RunnerSet, globals *scope.Globals, opts ...Option) *InProcess {
	return &InProcess{runners: runners, globals: globals, cfg: newConfig(opts)}
}

// Globals returns the process scope handed to every invocation.
func (p *InProcess) Globals() *scope.Globals {
	return p.globals
}

func (p *InProcess) Invoke(ctx context.Context, req Request) (reply.Outcome, error) {
	if p.cfg.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.timeout)
		defer cancel()
	}

	log := p.cfg.log.With("invocation", uuid.NewString(), "function", req.FunctionPath, "mode", "in-process")
	m := newMachine(log)

	runner, err := p.runners.ForFile(req.FunctionPath)
	if err != nil {
		_ = m.transition(Failed)
		return reply.Outcome{}, err
	}

	inv := &Invocation{
		FunctionPath: req.FunctionPath,
		Event:        req.Event,
		Context:      scope.NewContext(req.Config, req.Path),
		Globals:      p.globals,
		Debug:        debugLogger(ctx, log),
	}
	if err := m.transition(Dispatched); err != nil {
		return reply.Outcome{}, err
	}
	if err := m.transition(AwaitingReply); err != nil {
		return reply.Outcome{}, err
	}

	outcome, err := runGuarded(ctx, runner, inv)
	if serr := m.settle(outcome, err); serr != nil {
		log.Error("settle invocation", "error", serr)
	}
	log.Debug("invocation finished", "state", m.current())
	return outcome, err
}

// runGuarded runs the handler and turns a panic into a Failed outcome.
func runGuarded(ctx context.Context, runner Runner, inv *Invocation) (outcome reply.Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome = reply.Failed(&reply.HandlerError{
				Name:       "Error",
				Message:    fmt.Sprint(r),
				Stack:      string(debug.Stack()),
				Structured: true,
			})
			err = nil
		}
	}()
	return runner.Run(ctx, inv)
}

// debugLogger logs handler console output at info level.
func debugLogger(ctx context.Context, log *slog.Logger) DebugFunc {
	return func(msg string, args ...any) {
		if len(args) > 0 {
			log.InfoContext(ctx, msg, "source", "handler", "args", args)
			return
		}
		log.InfoContext(ctx, msg, "source", "handler")
	}
}
