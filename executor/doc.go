// Package executor runs matched functions to a single outcome.
//
// A [Strategy] takes a [Request] (function file, event, resolved config and
// request path) and returns exactly one [reply.Outcome]. Two strategies
// exist:
//
//   - [InProcess] runs the handler in the host process, sharing one
//     [scope.Globals] across invocations.
//   - [Isolated] spawns a fresh worker process per request, sends it the
//     request as one JSON line and reads debug lines followed by exactly
//     one terminal line. The worker is killed once the terminal line arrives.
//
// Both walk the same lifecycle:
//
//	Idle -> Dispatched -> AwaitingReply -> Completed | Failed
//
// Handler code itself is executed by a [Runner], chosen per file extension
// from a [RunnerSet]:
//
//	runners := executor.NewRunnerSet(javascript.New())
//	strategy := executor.NewInProcess(runners, scope.NewGlobals(cfg))
//	outcome, err := strategy.Invoke(ctx, executor.Request{
//	    FunctionPath: "/app/functions/hello.js",
//	    Event:        map[string]any{"name": "Ada"},
//	    Path:         "/hello",
//	})
//
// [NewIsolated] re-executes the host binary with [WorkerCommand]; the worker
// answers its single request with [ServeWorker] using its own runners.
//
// A transport failure (spawn, pipe or protocol error) is returned as a
// [*TransportError]. Handler failures are not errors: they come back as an
// outcome carrying a [reply.HandlerError].
package executor
