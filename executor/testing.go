package executor

import (
	"context"

	"github.com/caffeineduck/fnhost/reply"
)

// FuncRunner adapts a Go function into a Runner. Tests and benchmarks use
// it to exercise strategies without a script engine.
type FuncRunner struct {
	RunnerName string
	Exts       []string
	Fn         func(ctx context.Context, inv *Invocation) (reply.Outcome, error)
}

func (f *FuncRunner) Name() string {
	if f.RunnerName == "" {
		return "func"
	}
	return f.RunnerName
}

func (f *FuncRunner) Extensions() []string {
	if len(f.Exts) == 0 {
		return []string{".fn"}
	}
	return f.Exts
}

func (f *FuncRunner) Run(ctx context.Context, inv *Invocation) (reply.Outcome, error) {
	return f.Fn(ctx, inv)
}

// TextRunner returns a FuncRunner that always replies with text.
func TextRunner(text string) *FuncRunner {
	return &FuncRunner{Fn: func(ctx context.Context, inv *Invocation) (reply.Outcome, error) {
		return reply.Succeeded(reply.TextResult(text)), nil
	}}
}
