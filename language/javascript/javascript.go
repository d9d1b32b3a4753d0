// Package javascript runs CommonJS handlers on goja.
//
// A handler file exports a function taking (context, event, callback):
//
//	exports.handler = function (context, event, callback) {
//	  callback(null, new Runtime.markup.VoiceResponse().say('hi'));
//	};
//
// Every invocation gets a fresh VM. The handler may require relative .js and
// .json files and packages under node_modules, log through console, and
// schedule work with setTimeout. The first callback settles the invocation;
// a handler that throws before calling back fails it.
package javascript

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/caffeineduck/fnhost/executor"
	"github.com/caffeineduck/fnhost/reply"
	"github.com/dop251/goja"
)

//go:embed prelude.js
var prelude string

var preludeProgram = goja.MustCompile("prelude.js", prelude, true)

type cachedProgram struct {
	program *goja.Program
	modTime time.Time
	size    int64
}

// Runner executes .js handlers. Compiled module programs are shared between
// VMs and recompiled when the file changes.
type Runner struct {
	log      *slog.Logger
	mu       sync.RWMutex
	programs map[string]cachedProgram
}

var _ executor.Runner = (*Runner)(nil)

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for runtime diagnostics such as a callback
// invoked twice.
func WithLogger(log *slog.Logger) Option {
	return func(r *Runner) {
		if log != nil {
			r.log = log
		}
	}
}

// New returns a JavaScript runner.
func New(opts ...Option) *Runner {
	r := &Runner{
		log:      slog.Default(),
		programs: make(map[string]cachedProgram),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Runner) Name() string { return "javascript" }

func (r *Runner) Extensions() []string { return []string{".js"} }

// Run loads the handler module into a new VM, calls it and drives its timers
// until the callback settles the invocation or no work is left.
func (r *Runner) Run(ctx context.Context, inv *executor.Invocation) (reply.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return reply.Outcome{}, err
	}

	vm := goja.New()
	vm.SetFieldNameMapper(goja.TagFieldNameMapper("json", true))

	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	s := newSession(ctx, r, vm, inv)
	defer s.loop.close()

	helpers, err := vm.RunProgram(preludeProgram)
	if err != nil {
		return reply.Outcome{}, fmt.Errorf("prelude: %w", err)
	}
	invoke, ok := goja.AssertFunction(helpers.ToObject(vm).Get("invoke"))
	if !ok {
		return reply.Outcome{}, errors.New("prelude: invoke is not a function")
	}

	if err := s.install(); err != nil {
		return reply.Outcome{}, err
	}

	exports, err := s.load(inv.FunctionPath)
	if err != nil {
		return s.loadFailure(err)
	}

	handler := exports.ToObject(vm).Get("handler")
	if _, ok := goja.AssertFunction(handler); !ok {
		return reply.Failed(&reply.HandlerError{
			Name:       "TypeError",
			Message:    fmt.Sprintf("%s does not export a handler function", inv.FunctionPath),
			Structured: true,
		}), nil
	}

	event, err := s.jsonValue(inv.Event)
	if err != nil {
		return reply.Outcome{}, fmt.Errorf("encode event: %w", err)
	}

	_, err = invoke(goja.Undefined(), handler, s.contextObject(), event, vm.ToValue(s.settle), vm.ToValue(s.fail))
	if err != nil {
		if ctxErr := interrupted(ctx, err); ctxErr != nil {
			return reply.Outcome{}, ctxErr
		}
		return reply.Outcome{}, fmt.Errorf("invoke handler: %w", err)
	}

	if err := s.loop.run(ctx, s.settlement.Done(), s.throw); err != nil {
		return reply.Outcome{}, err
	}

	if outcome, ok := s.settlement.Outcome(); ok {
		return outcome, nil
	}
	return reply.Failed(executor.NoCallbackError()), nil
}

// loadFailure turns an error raised while loading the handler module into a
// failed outcome.
func (s *session) loadFailure(err error) (reply.Outcome, error) {
	if ctxErr := interrupted(s.ctx, err); ctxErr != nil {
		return reply.Outcome{}, ctxErr
	}
	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) {
		return reply.Failed(&reply.HandlerError{Name: "SyntaxError", Message: syntaxErr.Error(), Structured: true}), nil
	}
	var ex *goja.Exception
	if errors.As(err, &ex) {
		return reply.Failed(s.errorFromValue(ex.Value())), nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return reply.Outcome{}, err
	}
	return reply.Failed(reply.NewHandlerError(err)), nil
}

// interrupted reports the context error when err stems from the VM being
// interrupted on cancellation.
func interrupted(ctx context.Context, err error) error {
	var ie *goja.InterruptedError
	if errors.As(err, &ie) {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
	return nil
}

// program returns the compiled module wrapper for path.
func (r *Runner) program(path string) (*goja.Program, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	if c, ok := r.programs[path]; ok && c.fresh(info) {
		r.mu.RUnlock()
		return c.program, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.programs[path]; ok && c.fresh(info) {
		return c.program, nil
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	program, err := goja.Compile(path, wrapModule(string(src)), false)
	if err != nil {
		return nil, err
	}
	r.programs[path] = cachedProgram{program: program, modTime: info.ModTime(), size: info.Size()}
	r.log.Debug("compiled javascript module", "path", path)
	return program, nil
}

func (c cachedProgram) fresh(info os.FileInfo) bool {
	return c.modTime.Equal(info.ModTime()) && c.size == info.Size()
}

func wrapModule(src string) string {
	return "(function (exports, require, module, __filename, __dirname) {" + src + "\n})"
}
