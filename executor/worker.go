package executor

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/caffeineduck/fnhost/reply"
	"github.com/caffeineduck/fnhost/scope"
)

// Worker protocol, one JSON object per line.
//
//	host -> worker   {"functionPath", "event", "config", "path"}     exactly once
//	worker -> host   {"debugMessage", "debugArgs"}                   zero or more
//	worker -> host   {"reply": {...}} or {"err": {...}}              exactly once, last
type workerMessage struct {
	DebugMessage string              `json:"debugMessage,omitempty"`
	DebugArgs    []any               `json:"debugArgs,omitempty"`
	Reply        *reply.Reply        `json:"reply,omitempty"`
	Err          *reply.HandlerError `json:"err,omitempty"`
}

func (m workerMessage) terminal() bool {
	return m.Reply != nil || m.Err != nil
}

// messageWriter serializes protocol lines and refuses anything after the
// terminal message.
type messageWriter struct {
	mu     sync.Mutex
	out    io.Writer
	closed bool
}

func (w *messageWriter) debug(msg string, args ...any) {
	w.write(workerMessage{DebugMessage: msg, DebugArgs: jsonSafe(args)})
}

func (w *messageWriter) finish(o reply.Outcome) error {
	msg := workerMessage{Reply: o.Reply, Err: o.Err}
	if !msg.terminal() {
		msg.Err = &reply.HandlerError{Name: "Error", Message: "handler produced no outcome", Structured: true}
	}
	err := w.write(msg)
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	return err
}

func (w *messageWriter) write(msg workerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		if !msg.terminal() {
			return err
		}
		// Fall back to an error the host can always decode.
		data, _ = json.Marshal(workerMessage{Err: &reply.HandlerError{
			Name: "Error", Message: fmt.Sprintf("encode reply: %v", err), Structured: true,
		}})
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("worker already replied")
	}
	_, err = w.out.Write(append(data, '\n'))
	return err
}

// jsonSafe replaces values that cannot be encoded with their printed form.
func jsonSafe(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		if _, err := json.Marshal(a); err != nil {
			out[i] = fmt.Sprint(a)
			continue
		}
		out[i] = a
	}
	return out
}

// ServeWorker is the worker side of isolated execution. It reads one Request
// from in, runs it with a fresh Globals and Context, and writes debug lines
// followed by exactly one terminal line to out.
func ServeWorker(ctx context.Context, in io.Reader, out io.Writer, runners *RunnerSet) error {
	w := &messageWriter{out: out}

	line, err := bufio.NewReader(in).ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		werr := w.finish(reply.Failed(reply.NewHandlerError(fmt.Errorf("read request: %w", err))))
		return errors.Join(err, werr)
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		werr := w.finish(reply.Failed(reply.NewHandlerError(fmt.Errorf("decode request: %w", err))))
		return errors.Join(err, werr)
	}

	outcome, err := runWorkerRequest(ctx, req, runners, w.debug)
	if err != nil {
		outcome = reply.Failed(reply.NewHandlerError(err))
	}
	return w.finish(outcome)
}

func runWorkerRequest(ctx context.Context, req Request, runners *RunnerSet, debug DebugFunc) (reply.Outcome, error) {
	runner, err := runners.ForFile(req.FunctionPath)
	if err != nil {
		return reply.Outcome{}, err
	}
	inv := &Invocation{
		FunctionPath: req.FunctionPath,
		Event:        req.Event,
		Context:      scope.NewContext(req.Config, req.Path),
		Globals:      scope.NewGlobals(req.Config),
		Debug:        debug,
	}
	return runGuarded(ctx, runner, inv)
}
