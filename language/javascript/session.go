package javascript

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/caffeineduck/fnhost/executor"
	"github.com/caffeineduck/fnhost/reply"
	"github.com/caffeineduck/fnhost/scope"
	"github.com/dop251/goja"
)

// session is the state of one invocation's VM.
type session struct {
	ctx        context.Context
	runner     *Runner
	vm         *goja.Runtime
	inv        *executor.Invocation
	settlement *executor.Settlement
	loop       *loop
	modules    map[string]*goja.Object
	errorCtor  *goja.Object
}

func newSession(ctx context.Context, r *Runner, vm *goja.Runtime, inv *executor.Invocation) *session {
	return &session{
		ctx:        ctx,
		runner:     r,
		vm:         vm,
		inv:        inv,
		settlement: executor.NewSettlement(r.log),
		loop:       newLoop(vm),
		modules:    make(map[string]*goja.Object),
	}
}

// install defines the handler-visible globals.
func (s *session) install() error {
	vm := s.vm
	s.errorCtor = vm.Get("Error").ToObject(vm)

	console := vm.NewObject()
	for _, name := range []string{"log", "info", "warn", "error", "debug", "trace"} {
		if err := console.Set(name, s.consoleLog); err != nil {
			return err
		}
	}

	response := s.responseConstructor()
	globals := map[string]any{
		"console":      console,
		"setTimeout":   s.loop.setTimeout,
		"clearTimeout": s.loop.clearTimeout,
		"Runtime":      s.runtimeObject(response),
		"Response":     response,
	}
	for _, name := range slices.Sorted(maps.Keys(globals)) {
		if err := vm.Set(name, globals[name]); err != nil {
			return fmt.Errorf("define %s: %w", name, err)
		}
	}
	return nil
}

// settle is the host side of the handler callback.
func (s *session) settle(call goja.FunctionCall) goja.Value {
	errArg, value, markup := call.Argument(0), call.Argument(1), call.Argument(2)

	var outcome reply.Outcome
	switch {
	case !nullish(errArg):
		outcome = reply.Failed(s.errorFromValue(errArg))
	case !goja.IsUndefined(markup):
		outcome = reply.Succeeded(reply.MarkupResult(markup.String()))
	default:
		outcome = reply.Succeeded(reply.Classify(export(value)))
	}
	s.settlement.Resolve(outcome)
	return goja.Undefined()
}

// fail records a throw from the handler. Once the callback has settled the
// invocation, throws are only logged.
func (s *session) fail(call goja.FunctionCall) goja.Value {
	herr := s.errorFromValue(call.Argument(0))
	if s.settlement.Settled() {
		s.runner.log.Debug("handler threw after callback", "error", herr.Error())
		return goja.Undefined()
	}
	s.settlement.Resolve(reply.Failed(herr))
	return goja.Undefined()
}

// throw handles an exception escaping a timer callback. It returns an error
// only when the VM was interrupted.
func (s *session) throw(err error) error {
	if ctxErr := interrupted(s.ctx, err); ctxErr != nil {
		return ctxErr
	}
	if ex, ok := err.(*goja.Exception); ok {
		s.fail(goja.FunctionCall{Arguments: []goja.Value{ex.Value()}})
		return nil
	}
	s.fail(goja.FunctionCall{Arguments: []goja.Value{s.vm.ToValue(err.Error())}})
	return nil
}

// errorFromValue converts a thrown or callback error value. Error objects
// become structured errors; anything else is carried as a plain value.
func (s *session) errorFromValue(v goja.Value) *reply.HandlerError {
	if obj, ok := v.(*goja.Object); ok && s.vm.InstanceOf(obj, s.errorCtor) {
		herr := &reply.HandlerError{
			Name:       stringProp(obj, "name"),
			Message:    stringProp(obj, "message"),
			Stack:      stringProp(obj, "stack"),
			Structured: true,
		}
		if herr.Name == "" {
			herr.Name = "Error"
		}
		return herr
	}
	return reply.ValueError(export(v))
}

// newError builds a JS Error with the given name, ready to be thrown from a
// native function with panic.
func (s *session) newError(name, message string) *goja.Object {
	obj, err := s.vm.New(s.errorCtor, s.vm.ToValue(message))
	if err != nil {
		return s.vm.NewGoError(fmt.Errorf("%s: %s", name, message))
	}
	obj.Set("name", name)
	return obj
}

func (s *session) consoleLog(call goja.FunctionCall) goja.Value {
	if s.inv.Debug == nil || len(call.Arguments) == 0 {
		return goja.Undefined()
	}
	msg := call.Arguments[0].String()
	var args []any
	for _, a := range call.Arguments[1:] {
		if obj, ok := a.(*goja.Object); ok && s.vm.InstanceOf(obj, s.errorCtor) {
			args = append(args, a.String())
			continue
		}
		args = append(args, export(a))
	}
	s.inv.Debug(msg, args...)
	return goja.Undefined()
}

// contextObject builds the handler's context: one property per environment
// variable plus getClient().
func (s *session) contextObject() *goja.Object {
	obj := s.vm.NewObject()
	env := s.inv.Context.Env()
	for _, k := range slices.Sorted(maps.Keys(env)) {
		obj.Set(k, env[k])
	}
	obj.Set("getClient", func(call goja.FunctionCall) goja.Value {
		client, err := s.inv.Context.Client()
		if err != nil {
			name := "Error"
			if named, ok := err.(interface{ ErrorName() string }); ok {
				name = named.ErrorName()
			}
			panic(s.newError(name, err.Error()))
		}
		return s.clientObject(client)
	})
	return obj
}

func (s *session) clientObject(client *scope.Client) *goja.Object {
	obj := s.vm.NewObject()
	obj.Set("accountSid", client.AccountSID())
	obj.Set("request", func(call goja.FunctionCall) goja.Value {
		var req scope.ClientRequest
		if err := decode(export(call.Argument(0)), &req); err != nil {
			panic(s.vm.NewTypeError("client.request: %v", err))
		}
		resp, err := client.Request(s.ctx, req)
		if err != nil {
			panic(s.newError("Error", err.Error()))
		}
		v, err := s.jsonValue(resp)
		if err != nil {
			panic(s.newError("Error", err.Error()))
		}
		return v
	})
	return obj
}

// runtimeObject builds the Runtime global.
func (s *session) runtimeObject(response *goja.Object) *goja.Object {
	vm := s.vm
	rt := vm.NewObject()

	rt.Set("getFunctions", func(call goja.FunctionCall) goja.Value {
		out := vm.NewObject()
		fns := s.inv.Globals.Functions()
		for _, name := range slices.Sorted(maps.Keys(fns)) {
			entry := vm.NewObject()
			entry.Set("path", fns[name])
			out.Set(name, entry)
		}
		return out
	})

	rt.Set("getAssets", func(call goja.FunctionCall) goja.Value {
		out := vm.NewObject()
		assets := s.inv.Globals.Assets()
		for _, route := range slices.Sorted(maps.Keys(assets)) {
			asset := assets[route]
			entry := vm.NewObject()
			entry.Set("path", asset.Path)
			entry.Set("open", func(call goja.FunctionCall) goja.Value {
				content, err := asset.Open()
				if err != nil {
					panic(s.newError("Error", err.Error()))
				}
				return vm.ToValue(content)
			})
			out.Set(route, entry)
		}
		return out
	})

	markup := vm.NewObject()
	markup.Set("VoiceResponse", s.markupConstructor(reply.VoiceResponse))
	markup.Set("MessagingResponse", s.markupConstructor(reply.MessagingResponse))
	markup.Set("FaxResponse", s.markupConstructor(reply.FaxResponse))
	rt.Set("markup", markup)

	rt.Set("Response", response)

	if client := s.inv.Globals.Client(); client != nil {
		rt.Set("client", s.clientObject(client))
	} else {
		rt.Set("client", goja.Null())
	}
	return rt
}

func (s *session) markupConstructor(newRoot func() *reply.Element) *goja.Object {
	return s.vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		return s.vm.ToValue(newRoot()).ToObject(s.vm)
	}).ToObject(s.vm)
}

// responseConstructor builds Response: new Response({statusCode, headers, body}).
func (s *session) responseConstructor() *goja.Object {
	return s.vm.ToValue(func(call goja.ConstructorCall) *goja.Object {
		var opts reply.ResponseOptions
		if arg := call.Argument(0); !nullish(arg) {
			if err := decode(export(arg), &opts); err != nil {
				panic(s.vm.NewTypeError("Response: %v", err))
			}
		}
		return s.vm.ToValue(reply.NewResponseValue(opts)).ToObject(s.vm)
	}).ToObject(s.vm)
}

// jsonValue converts a Go value into plain JS objects.
func (s *session) jsonValue(v any) (goja.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	parse, ok := goja.AssertFunction(s.vm.Get("JSON").ToObject(s.vm).Get("parse"))
	if !ok {
		return nil, fmt.Errorf("JSON.parse unavailable")
	}
	return parse(goja.Undefined(), s.vm.ToValue(string(data)))
}

func nullish(v goja.Value) bool {
	return v == nil || goja.IsUndefined(v) || goja.IsNull(v)
}

func export(v goja.Value) any {
	if nullish(v) {
		return nil
	}
	return v.Export()
}

func stringProp(obj *goja.Object, name string) string {
	v := obj.Get(name)
	if nullish(v) {
		return ""
	}
	return v.String()
}

func decode(v any, out any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
