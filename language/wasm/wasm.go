// Package wasm runs WebAssembly handlers on wazero.
//
// A handler is a WASI command module. It reads one JSON line from stdin,
//
//	{"event": {...}, "context": {"env": {...}, "path": "/hello"}, "path": "/hello"}
//
// and prints its result to stdout as {"result": <result>} or
// {"error": {"name": "...", "message": "..."}}. The result uses the reply
// package's JSON shape ({"type": "text", "body": "hi"}).
//
// Host capabilities are reached with stderr frames \x00FNHOST:{json}\x00,
// each answered by one JSON line on stdin:
//
//	env_get        {"key"}                       -> string
//	asset_read     {"path"}                      -> string (route or /assets/... path)
//	asset_exists   {"path"}                      -> bool
//	asset_list     {"path"}                      -> [{"name","is_dir","size"}]
//	asset_stat     {"path"}                      -> {"name","size","is_dir","mod_time"}
//	functions_list {}                            -> {name: file}
//	client_request {"method","uri","data",...}   -> {"status","headers","body"}
//	debug_log      {"message","args"}            -> null
package wasm

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caffeineduck/fnhost/executor"
	"github.com/caffeineduck/fnhost/hostfunc"
	"github.com/caffeineduck/fnhost/reply"
	"github.com/caffeineduck/fnhost/scope"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// compiledModule is a cache entry. A replaced entry is closed once the last
// invocation using it releases it.
type compiledModule struct {
	module  wazero.CompiledModule
	modTime time.Time
	size    int64

	refs      atomic.Int32
	stale     atomic.Bool
	closeOnce sync.Once
}

// release drops one reference taken by getCompiled.
func (c *compiledModule) release(ctx context.Context) {
	if c.refs.Add(-1) == 0 && c.stale.Load() {
		c.close(ctx)
	}
}

// retire marks a replaced entry and closes it when nothing holds it.
func (c *compiledModule) retire(ctx context.Context) {
	c.stale.Store(true)
	if c.refs.Load() == 0 {
		c.close(ctx)
	}
}

func (c *compiledModule) close(ctx context.Context) {
	c.closeOnce.Do(func() { c.module.Close(ctx) })
}

// Runner executes .wasm handlers. Compiled modules are cached by file path
// and recompiled when the file's modification time or size changes.
type Runner struct {
	runtime  wazero.Runtime
	cache    wazero.CompilationCache
	compiled map[string]*compiledModule
	cfg      config
	mu       sync.RWMutex
	closed   bool
}

var _ executor.Runner = (*Runner)(nil)

// New creates a Runner with its own wazero runtime.
func New(opts ...Option) (*Runner, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	ctx := context.Background()

	var cache wazero.CompilationCache
	if cfg.diskCache {
		dir := cfg.cacheDir
		if dir == "" {
			dir = defaultCacheDir()
		}
		var err error
		cache, err = wazero.NewCompilationCacheWithDir(dir)
		if err != nil {
			return nil, fmt.Errorf("create disk cache: %w", err)
		}
	}

	rtConfig := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if cache != nil {
		rtConfig = rtConfig.WithCompilationCache(cache)
	}
	if cfg.memoryLimitPages > 0 {
		rtConfig = rtConfig.WithMemoryLimitPages(cfg.memoryLimitPages)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		if cache != nil {
			cache.Close(ctx)
		}
		rt.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	r := &Runner{
		runtime:  rt,
		cache:    cache,
		compiled: make(map[string]*compiledModule),
		cfg:      cfg,
	}

	for _, path := range cfg.precompile {
		c, err := r.getCompiled(ctx, path)
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("precompile %s: %w", path, err)
		}
		c.release(ctx)
	}

	return r, nil
}

func (r *Runner) Name() string { return "wasm" }

func (r *Runner) Extensions() []string { return []string{".wasm"} }

type moduleInput struct {
	Event   map[string]any `json:"event"`
	Context moduleContext  `json:"context"`
	Path    string         `json:"path"`
}

type moduleContext struct {
	Env  map[string]string `json:"env"`
	Path string            `json:"path"`
}

type moduleOutput struct {
	Result *reply.Result       `json:"result"`
	Error  *reply.HandlerError `json:"error"`
}

// Run instantiates the handler module for one invocation.
func (r *Runner) Run(ctx context.Context, inv *executor.Invocation) (reply.Outcome, error) {
	compiled, err := r.getCompiled(ctx, inv.FunctionPath)
	if err != nil {
		return reply.Outcome{}, err
	}
	defer compiled.release(context.WithoutCancel(ctx))

	input, err := json.Marshal(moduleInput{
		Event:   inv.Event,
		Context: moduleContext{Env: inv.Context.Env(), Path: inv.Context.Path()},
		Path:    inv.Context.Path(),
	})
	if err != nil {
		return reply.Outcome{}, fmt.Errorf("encode module input: %w", err)
	}

	var stdout bytes.Buffer
	stdinReader, stdinWriter := io.Pipe()
	protocol := newProtocolHandler(ctx, hostFunctions(inv), stdinWriter)

	moduleConfig := wazero.NewModuleConfig().
		WithStdout(&stdout).
		WithStderr(protocol).
		WithStdin(stdinReader).
		WithArgs(inv.FunctionPath).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(rand.Reader).
		WithName("")

	env := inv.Context.Env()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		moduleConfig = moduleConfig.WithEnv(k, env[k])
	}

	go stdinWriter.Write(append(input, '\n'))

	mod, err := r.runtime.InstantiateModule(ctx, compiled.module, moduleConfig)
	stdinWriter.Close()
	if mod != nil {
		mod.Close(ctx)
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return reply.Outcome{}, ctxErr
		}
		var exitErr *sys.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 0 {
			return reply.Failed(&reply.HandlerError{
				Name:       "WasmError",
				Message:    err.Error(),
				Stack:      protocol.Stderr(),
				Structured: true,
			}), nil
		}
	}

	return parseOutput(stdout.Bytes()), nil
}

// parseOutput reads the last non-empty stdout line as the module's result.
func parseOutput(stdout []byte) reply.Outcome {
	lines := strings.Split(strings.TrimSpace(string(stdout)), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if last == "" {
		return reply.Failed(executor.NoCallbackError())
	}

	var out moduleOutput
	if err := json.Unmarshal([]byte(last), &out); err != nil {
		return reply.Failed(&reply.HandlerError{
			Name:       "WasmError",
			Message:    "invalid module output: " + err.Error(),
			Structured: true,
		})
	}

	switch {
	case out.Error != nil:
		if out.Error.Value == nil {
			out.Error.Structured = true
		}
		if out.Error.Name == "" {
			out.Error.Name = "Error"
		}
		return reply.Failed(out.Error)
	case out.Result != nil:
		return reply.Succeeded(*out.Result)
	}
	return reply.Failed(executor.NoCallbackError())
}

// hostFunctions builds the capabilities one invocation may call.
func hostFunctions(inv *executor.Invocation) *hostfunc.Registry {
	registry := hostfunc.NewRegistry()

	registry.Register("env_get", func(ctx context.Context, args map[string]any) (any, error) {
		key, _ := args["key"].(string)
		return inv.Context.Get(key), nil
	})

	registry.Register("functions_list", func(ctx context.Context, args map[string]any) (any, error) {
		return inv.Globals.Functions(), nil
	})

	assets := inv.Globals.AssetFS()
	registry.Register("asset_read", func(ctx context.Context, args map[string]any) (any, error) {
		path, _ := args["path"].(string)
		if asset, ok := inv.Globals.Assets()[path]; ok {
			return asset.Open()
		}
		return assets.Read(ctx, args)
	})
	registry.Register("asset_exists", assets.Exists)
	registry.Register("asset_list", assets.List)
	registry.Register("asset_stat", assets.Stat)

	registry.Register("client_request", func(ctx context.Context, args map[string]any) (any, error) {
		client, err := inv.Context.Client()
		if err != nil {
			return nil, err
		}
		var req scope.ClientRequest
		if err := decodeArgs(args, &req); err != nil {
			return nil, err
		}
		return client.Request(ctx, req)
	})

	registry.Register("debug_log", func(ctx context.Context, args map[string]any) (any, error) {
		msg, _ := args["message"].(string)
		extra, _ := args["args"].([]any)
		if inv.Debug != nil {
			inv.Debug(msg, extra...)
		}
		return nil, nil
	})

	return registry
}

func decodeArgs(args map[string]any, v any) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// getCompiled returns a cached compiled module, compiling if the file is new
// or has changed. The caller holds a reference until it calls release.
func (r *Runner) getCompiled(ctx context.Context, path string) (*compiledModule, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat module: %w", err)
	}

	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, errors.New("runner closed")
	}
	if c, ok := r.compiled[path]; ok && c.fresh(info) {
		c.refs.Add(1)
		r.mu.RUnlock()
		return c, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.compiled[path]; ok && c.fresh(info) {
		c.refs.Add(1)
		return c, nil
	}

	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module: %w", err)
	}
	module, err := r.runtime.CompileModule(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("compile %s: %w", path, err)
	}

	if old, ok := r.compiled[path]; ok {
		old.retire(ctx)
	}
	c := &compiledModule{module: module, modTime: info.ModTime(), size: info.Size()}
	c.refs.Add(1)
	r.compiled[path] = c
	r.cfg.log.Debug("compiled wasm module", "path", path, "size", info.Size())
	return c, nil
}

func (c *compiledModule) fresh(info os.FileInfo) bool {
	return c.modTime.Equal(info.ModTime()) && c.size == info.Size()
}

// Close releases the runtime and every compiled module.
func (r *Runner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	ctx := context.Background()

	var errs []error
	if err := r.runtime.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.cache != nil {
		if err := r.cache.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
