// Package fnhost is a local development host for serverless functions and
// static assets.
//
// # Overview
//
// fnhost discovers function files (.js, .wasm) and asset files under a
// project directory, maps them to HTTP routes and runs matched functions
// with the same contract the cloud runtime provides: an injected
// environment, a lazily validated API client and a single-callback reply.
// Files added or removed while the host runs are picked up without a
// restart.
//
// # Basic Usage
//
//	resources, _ := resource.Discover(resource.Options{BaseDir: "."})
//	store := route.NewStore()
//	store.Rebuild(resources)
//
//	runners := executor.NewRunnerSet(javascript.New())
//	strategy := executor.NewInProcess(runners, scope.NewGlobals(scope.Config{}))
//
//	scopeFn := func(t *route.Table) scope.Config {
//	    return scope.Config{BaseURL: "http://localhost:3000", Registry: scope.RegistryFromTable(t, "")}
//	}
//	http.ListenAndServe(":3000", dispatch.New(store, strategy, scopeFn))
//
// # Isolation
//
// With [executor.Isolated] every request runs in a fresh worker process
// started from the fnhost binary itself:
//
//	strategy := executor.NewIsolated(executor.WithTimeout(10 * time.Second))
//
// See the [resource], [route], [scope], [executor], [reply], [dispatch],
// [watch] and [errpage] packages for details, and cmd/fnhost for the CLI.
package fnhost
