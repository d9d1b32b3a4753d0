// Package dispatch is the HTTP front end of the host. It matches requests
// against the current route table, serves assets and hands function
// requests to an execution strategy.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/caffeineduck/fnhost/errpage"
	"github.com/caffeineduck/fnhost/executor"
	"github.com/caffeineduck/fnhost/resource"
	"github.com/caffeineduck/fnhost/route"
	"github.com/caffeineduck/fnhost/scope"
	"github.com/go-chi/chi/v5"
)

// IndexPath is served for "/" when no resource claims the root.
// LegacyIndexPath replaces it when asset routes carry the /assets prefix.
const (
	IndexPath       = "/index.html"
	LegacyIndexPath = "/assets/index.html"
)

// CORS preflight reply for assets.
var preflightHeaders = map[string]string{
	"Access-Control-Allow-Origin":      "*",
	"Access-Control-Allow-Headers":     "Accept, Authorization, Content-Type, If-Match, If-Modified-Since, If-None-Match, If-Unmodified-Since, User-Agent",
	"Access-Control-Allow-Methods":     "GET, POST, OPTIONS",
	"Access-Control-Expose-Headers":    "ETag",
	"Access-Control-Max-Age":           "86400",
	"Access-Control-Allow-Credentials": "true",
}

// ScopeFunc returns the invocation configuration for a route table
// generation.
type ScopeFunc func(t *route.Table) scope.Config

// Dispatcher routes requests. It is safe for concurrent use; the route
// table is read once per request.
type Dispatcher struct {
	routes   *route.Store
	strategy executor.Strategy
	scope    ScopeFunc
	log      *slog.Logger
	index    string
	router   chi.Router
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger used for access and error logs.
func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log
		}
	}
}

// WithIndexPath sets the route served for "/" when nothing else matches.
func WithIndexPath(path string) Option {
	return func(d *Dispatcher) {
		if path != "" {
			d.index = path
		}
	}
}

// New returns a dispatcher serving the tables published to routes.
func New(routes *route.Store, strategy executor.Strategy, scopeFn ScopeFunc, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		routes:   routes,
		strategy: strategy,
		scope:    scopeFn,
		log:      slog.Default(),
		index:    IndexPath,
	}
	for _, opt := range opts {
		opt(d)
	}

	r := chi.NewRouter()
	r.Use(requestID, d.recoverer, d.accessLog)
	r.HandleFunc("/", d.serve)
	r.HandleFunc("/*", d.serve)
	d.router = r
	return d
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.router.ServeHTTP(w, r)
}

func (d *Dispatcher) serve(w http.ResponseWriter, r *http.Request) {
	table := d.routes.Load()

	res, ok := table.Lookup(r.URL.Path)
	if !ok && r.URL.Path == "/" {
		res, ok = table.Lookup(d.index)
	}
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch res.Kind {
	case resource.Asset:
		d.serveAsset(w, r, res)
	case resource.Function:
		d.serveFunction(w, r, res, table)
	default:
		http.NotFound(w, r)
	}
}

func (d *Dispatcher) serveAsset(w http.ResponseWriter, r *http.Request, res resource.Resource) {
	if r.Method == http.MethodOptions {
		for k, v := range preflightHeaders {
			w.Header().Set(k, v)
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if res.Access == resource.Private {
		forbidden(w)
		return
	}
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		methodNotAllowed(w, http.MethodGet, http.MethodHead, http.MethodOptions)
		return
	}

	f, err := os.Open(res.FilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		d.log.ErrorContext(r.Context(), "open asset", "path", res.FilePath, "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}
	http.ServeContent(w, r, res.FilePath, info.ModTime(), f)
}

func (d *Dispatcher) serveFunction(w http.ResponseWriter, r *http.Request, res resource.Resource, table *route.Table) {
	if res.Access == resource.Private {
		forbidden(w)
		return
	}
	switch r.Method {
	case http.MethodGet, http.MethodPost, http.MethodOptions:
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost, http.MethodOptions)
		return
	}

	event, err := Event(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	outcome, err := d.strategy.Invoke(ctx, executor.Request{
		FunctionPath: res.FilePath,
		Event:        event,
		Config:       d.scope(table),
		Path:         res.RoutePath,
	})
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			d.log.DebugContext(ctx, "client went away", "route", res.RoutePath)
			return
		}
		d.log.ErrorContext(ctx, "invoke function", "route", res.RoutePath, "error", err)
		if werr := errpage.WriteError(w, r, err); werr != nil {
			d.log.ErrorContext(ctx, "write error page", "error", werr)
		}
		return
	}

	if outcome.Err != nil {
		d.log.WarnContext(ctx, "function failed", "route", res.RoutePath, "error", outcome.Err.Error())
		if werr := errpage.Write(w, r, outcome.Err); werr != nil {
			d.log.ErrorContext(ctx, "write error page", "error", werr)
		}
		return
	}
	if outcome.Reply == nil {
		d.log.ErrorContext(ctx, "invocation produced no reply", "route", res.RoutePath)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	if err := outcome.Reply.Write(w); err != nil {
		d.log.ErrorContext(ctx, "write reply", "route", res.RoutePath, "error", err)
	}
}

func forbidden(w http.ResponseWriter) {
	http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
}

func methodNotAllowed(w http.ResponseWriter, allow ...string) {
	for _, m := range allow {
		w.Header().Add("Allow", m)
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
