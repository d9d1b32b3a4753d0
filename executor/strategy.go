package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/caffeineduck/fnhost/reply"
	"github.com/caffeineduck/fnhost/scope"
)

// Request is a matched function invocation. In isolated mode it is the
// single message sent to the worker.
type Request struct {
	FunctionPath string         `json:"functionPath"`
	Event        map[string]any `json:"event"`
	Config       scope.Config   `json:"config"`
	Path         string         `json:"path"`
}

// Strategy runs a Request to its single outcome.
type Strategy interface {
	Invoke(ctx context.Context, req Request) (reply.Outcome, error)
}

// State is the lifecycle position of one invocation.
type State int

const (
	Idle State = iota
	Dispatched
	AwaitingReply
	Completed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dispatched:
		return "dispatched"
	case AwaitingReply:
		return "awaiting_reply"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == Completed || s == Failed
}

var ErrIllegalTransition = errors.New("illegal state transition")

var transitions = map[State][]State{
	Idle:          {Dispatched, Failed},
	Dispatched:    {AwaitingReply, Failed},
	AwaitingReply: {Completed, Failed},
}

// machine tracks one invocation through its states.
type machine struct {
	mu    sync.Mutex
	state State
	log   *slog.Logger
}

func newMachine(log *slog.Logger) *machine {
	return &machine{state: Idle, log: log}
}

func (m *machine) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !slices.Contains(transitions[m.state], to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, to)
	}
	m.log.Debug("invocation state", "from", m.state, "to", to)
	m.state = to
	return nil
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// settle moves the machine to Completed or Failed according to the outcome.
func (m *machine) settle(outcome reply.Outcome, err error) error {
	if err != nil || outcome.Err != nil || outcome.Reply == nil {
		return m.transition(Failed)
	}
	return m.transition(Completed)
}

// Settlement is the single-assignment result of a handler callback. The
// first Resolve wins; later calls are logged and ignored.
type Settlement struct {
	settled atomic.Bool
	done    chan struct{}
	outcome reply.Outcome
	log     *slog.Logger
}

func NewSettlement(log *slog.Logger) *Settlement {
	if log == nil {
		log = slog.Default()
	}
	return &Settlement{done: make(chan struct{}), log: log}
}

// Resolve records o unless the settlement already holds an outcome.
func (s *Settlement) Resolve(o reply.Outcome) bool {
	if !s.settled.CompareAndSwap(false, true) {
		s.log.Warn("callback invoked more than once, ignoring")
		return false
	}
	s.outcome = o
	close(s.done)
	return true
}

func (s *Settlement) Settled() bool {
	return s.settled.Load()
}

// Done is closed once the settlement holds an outcome.
func (s *Settlement) Done() <-chan struct{} {
	return s.done
}

// Outcome returns the recorded outcome, if any.
func (s *Settlement) Outcome() (reply.Outcome, bool) {
	select {
	case <-s.done:
		return s.outcome, true
	default:
		return reply.Outcome{}, false
	}
}

// Wait blocks until the settlement resolves or ctx is done.
func (s *Settlement) Wait(ctx context.Context) (reply.Outcome, error) {
	select {
	case <-s.done:
		return s.outcome, nil
	case <-ctx.Done():
		return reply.Outcome{}, ctx.Err()
	}
}
