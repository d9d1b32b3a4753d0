package javascript

import (
	"context"
	"time"

	"github.com/dop251/goja"
)

type job func() error

// loop runs timer callbacks on the VM's goroutine. Timers fire on their own
// goroutines and hand their callback over as a job.
type loop struct {
	vm     *goja.Runtime
	jobs   chan job
	done   chan struct{}
	timers map[int64]*time.Timer
	nextID int64
}

func newLoop(vm *goja.Runtime) *loop {
	return &loop{
		vm:     vm,
		jobs:   make(chan job),
		done:   make(chan struct{}),
		timers: make(map[int64]*time.Timer),
	}
}

func (l *loop) setTimeout(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(l.vm.NewTypeError("setTimeout: callback is not a function"))
	}
	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}
	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	l.nextID++
	id := l.nextID
	run := func() error {
		if _, pending := l.timers[id]; !pending {
			return nil
		}
		delete(l.timers, id)
		_, err := fn(goja.Undefined(), args...)
		return err
	}
	l.timers[id] = time.AfterFunc(delay, func() {
		select {
		case l.jobs <- run:
		case <-l.done:
		}
	})
	return l.vm.ToValue(id)
}

func (l *loop) clearTimeout(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if t, ok := l.timers[id]; ok {
		t.Stop()
		delete(l.timers, id)
	}
	return goja.Undefined()
}

// run executes jobs until settled is closed, no timers are pending or ctx is
// done. A job that throws is passed to onThrow.
func (l *loop) run(ctx context.Context, settled <-chan struct{}, onThrow func(error) error) error {
	for {
		select {
		case <-settled:
			return nil
		default:
		}
		if len(l.timers) == 0 {
			return nil
		}

		select {
		case <-settled:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case j := <-l.jobs:
			if err := j(); err != nil {
				if err := onThrow(err); err != nil {
					return err
				}
			}
		}
	}
}

func (l *loop) close() {
	for id, t := range l.timers {
		t.Stop()
		delete(l.timers, id)
	}
	close(l.done)
}
