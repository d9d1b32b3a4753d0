package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/caffeineduck/fnhost/config"
	"github.com/caffeineduck/fnhost/executor"
	"github.com/caffeineduck/fnhost/internal/logger"
	"github.com/caffeineduck/fnhost/language/javascript"
	"github.com/caffeineduck/fnhost/language/wasm"
	"github.com/caffeineduck/fnhost/resource"
	"github.com/caffeineduck/fnhost/route"
	"github.com/caffeineduck/fnhost/scope"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var rootCmd = &cobra.Command{
	Use:   "fnhost",
	Short: "Local host for serverless functions and assets",
	Long: `fnhost - Run a functions project on your machine.

Files under functions/ (or src/) become function routes, files under
assets/ (or static/) are served as static files. A ".protected" or
".private" segment before the extension sets the access level:

  functions/hello.js              -> /hello     (public)
  functions/admin.protected.js    -> /admin     (protected)
  assets/logo.private.png         -> /logo.png  (handlers only)

JavaScript handlers (.js) and WASI command modules (.wasm) are supported.`,
	SilenceUsage: true,
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	addProjectFlags(rootCmd.PersistentFlags())
}

// addProjectFlags defines the flags every project command shares.
func addProjectFlags(fs *pflag.FlagSet) {
	fs.StringP("dir", "d", ".", "Project directory")
	fs.String("env", "", "Dotenv file (default: <dir>/.env)")
	fs.String("functions-folder", "", "Functions directory name (default: functions, then src)")
	fs.String("assets-folder", "", "Assets directory name (default: assets, then static)")
	fs.Bool("legacy-mode", false, "Serve assets under /assets")
	fs.String("log-level", "", "Log level: debug, info, warn, error")
	fs.String("log-format", "", "Log format: text, json")
	fs.Bool("no-cache", false, "Disable the on-disk wasm compilation cache")
}

// loadConfig reads the project config and applies the flags the user set.
func loadConfig(cmd *cobra.Command) (config.HostConfig, error) {
	flags := cmd.Flags()
	dir, _ := flags.GetString("dir")
	envFile, _ := flags.GetString("env")

	cfg, err := config.Load(dir, envFile)
	if err != nil {
		return config.HostConfig{}, err
	}

	if flags.Changed("functions-folder") {
		cfg.FunctionsFolder, _ = flags.GetString("functions-folder")
	}
	if flags.Changed("assets-folder") {
		cfg.AssetsFolder, _ = flags.GetString("assets-folder")
	}
	if flags.Changed("legacy-mode") {
		cfg.LegacyMode, _ = flags.GetBool("legacy-mode")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if f := flags.Lookup("port"); f != nil && f.Changed {
		cfg.Port, _ = flags.GetInt("port")
	}
	if f := flags.Lookup("base-url"); f != nil && f.Changed {
		cfg.BaseURL, _ = flags.GetString("base-url")
	}
	if f := flags.Lookup("isolated"); f != nil && f.Changed {
		cfg.Isolated, _ = flags.GetBool("isolated")
	}
	if f := flags.Lookup("live"); f != nil && f.Changed {
		cfg.Live, _ = flags.GetBool("live")
	}
	if f := flags.Lookup("timeout"); f != nil && f.Changed {
		cfg.Timeout, _ = flags.GetDuration("timeout")
	}

	return cfg, cfg.Validate()
}

func newLogger(cfg config.HostConfig, w io.Writer) (*slog.Logger, error) {
	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	format, err := logger.ParseFormat(cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	return logger.New(w, level, format), nil
}

// newRunners returns the JavaScript and wasm runners.
func newRunners(cmd *cobra.Command, log *slog.Logger) (*executor.RunnerSet, error) {
	noCache, _ := cmd.Flags().GetBool("no-cache")

	wasmOpts := []wasm.Option{wasm.WithLogger(log)}
	if !noCache {
		wasmOpts = append(wasmOpts, wasm.WithDiskCache())
	}
	wasmRunner, err := wasm.New(wasmOpts...)
	if err != nil {
		return nil, fmt.Errorf("start wasm runtime: %w", err)
	}
	return executor.NewRunnerSet(javascript.New(javascript.WithLogger(log)), wasmRunner), nil
}

// project is everything a command needs to route and run functions.
type project struct {
	cfg     config.HostConfig
	log     *slog.Logger
	opts    resource.Options
	store   *route.Store
	runners *executor.RunnerSet

	mu    sync.RWMutex
	roots resource.Roots
}

// openProject discovers the project's resources and publishes them as the
// first route table. Missing resource directories are only fatal when
// allowMissing is false.
func openProject(cmd *cobra.Command, allowMissing bool) (*project, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	log, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	opts := cfg.ResourceOptions(log)
	opts.AllowMissing = allowMissing
	resources, err := resource.Discover(opts)
	if err != nil {
		return nil, err
	}
	roots, err := resource.FindRoots(opts)
	if err != nil {
		return nil, err
	}

	store := route.NewStore()
	if _, err := store.Rebuild(resources); err != nil {
		return nil, err
	}

	runners, err := newRunners(cmd, log)
	if err != nil {
		return nil, err
	}
	return &project{cfg: cfg, log: log, opts: opts, store: store, roots: roots, runners: runners}, nil
}

func (p *project) Close() error {
	return p.runners.Close()
}

// scope returns the invocation configuration for a route table.
func (p *project) scope(t *route.Table) scope.Config {
	return p.cfg.Scope(scope.RegistryFromTable(t, p.assetsRoot()))
}

func (p *project) assetsRoot() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.roots.Assets
}

// refreshRoots picks up resource directories created after startup.
func (p *project) refreshRoots() {
	roots, err := resource.FindRoots(p.opts)
	if err != nil {
		p.log.Warn("resolve resource roots", "error", err)
		return
	}
	p.mu.Lock()
	p.roots = roots
	p.mu.Unlock()
}

// strategy builds the configured execution strategy. The returned globals
// are nil in isolated mode, where each worker builds its own.
func (p *project) strategy() (executor.Strategy, *scope.Globals) {
	opts := []executor.Option{executor.WithLogger(p.log), executor.WithTimeout(p.cfg.Timeout)}
	if p.cfg.Isolated {
		return executor.NewIsolated(opts...), nil
	}
	globals := scope.NewGlobals(p.scope(p.store.Load()))
	return executor.NewInProcess(p.runners, globals, opts...), globals
}
