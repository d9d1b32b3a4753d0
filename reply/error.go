package reply

import (
	"encoding/json"
	"errors"
	"fmt"
)

// HandlerError is an error thrown by, or passed to the callback of, a
// handler. Structured errors carry a name, message and stack. Anything else
// a handler fails with is kept verbatim in Value.
type HandlerError struct {
	Name       string `json:"name,omitempty"`
	Message    string `json:"message,omitempty"`
	Stack      string `json:"stack,omitempty"`
	Value      any    `json:"value,omitempty"`
	Structured bool   `json:"structured"`
}

func (e *HandlerError) Error() string {
	if e.Structured {
		if e.Name != "" {
			return e.Name + ": " + e.Message
		}
		return e.Message
	}
	if s, ok := e.Value.(string); ok {
		return s
	}
	data, err := json.Marshal(e.Value)
	if err != nil {
		return fmt.Sprint(e.Value)
	}
	return string(data)
}

// NewHandlerError wraps a Go error raised while running a handler.
func NewHandlerError(err error) *HandlerError {
	var he *HandlerError
	if errors.As(err, &he) {
		return he
	}
	name := "Error"
	var named interface{ ErrorName() string }
	if errors.As(err, &named) {
		name = named.ErrorName()
	}
	return &HandlerError{Name: name, Message: err.Error(), Structured: true}
}

// ValueError wraps a non-error value a handler failed with.
func ValueError(v any) *HandlerError {
	return &HandlerError{Value: v}
}

// Outcome is the single terminal result of an invocation: either a reply or
// a handler error, never both.
type Outcome struct {
	Reply *Reply        `json:"reply,omitempty"`
	Err   *HandlerError `json:"err,omitempty"`
}

// Succeeded returns an outcome carrying the translated result.
func Succeeded(r Result) Outcome {
	rep := Translate(r)
	return Outcome{Reply: &rep}
}

// Failed returns an outcome carrying err.
func Failed(err *HandlerError) Outcome {
	return Outcome{Err: err}
}
