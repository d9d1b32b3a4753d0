package executor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/caffeineduck/fnhost/reply"
	"github.com/caffeineduck/fnhost/scope"
)

// ErrNoRunner is returned when no runner handles a function file's extension.
var ErrNoRunner = errors.New("no runner for function file")

// NoCallbackMessage is reported when a handler finishes without producing a
// result.
const NoCallbackMessage = "handler completed without invoking callback"

// NoCallbackError returns the handler error for a handler that finished
// without producing a result.
func NoCallbackError() *reply.HandlerError {
	return &reply.HandlerError{Name: "Error", Message: NoCallbackMessage, Structured: true}
}

// DebugFunc receives diagnostic output from handler code (console.log and
// friends). It never carries the terminal result.
type DebugFunc func(msg string, args ...any)

// Invocation is one handler call as seen by a Runner.
type Invocation struct {
	FunctionPath string
	Event        map[string]any
	Context      *scope.Context
	Globals      *scope.Globals
	Debug        DebugFunc
}

// Runner executes handler files of one kind.
//
// Run returns the settled outcome of the handler: a reply when the callback
// succeeded, a handler error when it failed or the handler threw. The error
// return is reserved for failures to run the handler at all, such as an
// unreadable file or a cancelled context.
type Runner interface {
	// Name identifies the runner in logs (e.g., "javascript", "wasm").
	Name() string

	// Extensions lists the function file extensions the runner executes.
	Extensions() []string

	Run(ctx context.Context, inv *Invocation) (reply.Outcome, error)
}

// RunnerSet selects a runner by function file extension.
type RunnerSet struct {
	byExt   map[string]Runner
	runners []Runner
}

// NewRunnerSet indexes runners by extension. Later runners win on conflict.
func NewRunnerSet(runners ...Runner) *RunnerSet {
	s := &RunnerSet{byExt: make(map[string]Runner)}
	for _, r := range runners {
		s.runners = append(s.runners, r)
		for _, ext := range r.Extensions() {
			s.byExt[strings.ToLower(ext)] = r
		}
	}
	return s
}

// ForFile returns the runner for path.
func (s *RunnerSet) ForFile(path string) (Runner, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if r, ok := s.byExt[ext]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoRunner, path)
}

// Extensions returns every handled extension, sorted.
func (s *RunnerSet) Extensions() []string {
	exts := make([]string, 0, len(s.byExt))
	for ext := range s.byExt {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// Close closes every runner that holds resources.
func (s *RunnerSet) Close() error {
	var errs []error
	for _, r := range s.runners {
		if c, ok := r.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
