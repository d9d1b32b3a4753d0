package wasm

import (
	"log/slog"
	"os"
	"path/filepath"
)

// Option configures a Runner at creation time.
type Option func(*config)

type config struct {
	diskCache        bool
	cacheDir         string
	precompile       []string
	memoryLimitPages uint32 // 0 = wazero default (65536 pages = 4GB)
	log              *slog.Logger
}

func defaultConfig() config {
	return config{log: slog.Default()}
}

// WithDiskCache enables the persistent compilation cache. Without a
// directory it uses XDG_CACHE_HOME/fnhost or ~/.cache/fnhost.
//
//	wasm.New(wasm.WithDiskCache())             // default dir
//	wasm.New(wasm.WithDiskCache("/tmp/cache")) // custom dir
func WithDiskCache(dir ...string) Option {
	return func(c *config) {
		c.diskCache = true
		if len(dir) > 0 && dir[0] != "" {
			c.cacheDir = dir[0]
		}
	}
}

// WithPrecompile compiles the given module files when the Runner is created,
// moving the compilation cost to startup.
func WithPrecompile(paths ...string) Option {
	return func(c *config) {
		c.precompile = append(c.precompile, paths...)
	}
}

// WithMemoryLimit caps the memory of each module in 64KB pages.
//   - WithMemoryLimit(256) = 16MB max
//   - WithMemoryLimit(1024) = 64MB max
func WithMemoryLimit(pages uint32) Option {
	return func(c *config) {
		c.memoryLimitPages = pages
	}
}

// WithLogger sets the logger for compilation events.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// Memory limit constants for convenience.
const (
	MemoryLimit16MB  uint32 = 256
	MemoryLimit64MB  uint32 = 1024
	MemoryLimit256MB uint32 = 4096
)

func defaultCacheDir() string {
	if dir := os.Getenv("XDG_CACHE_HOME"); dir != "" {
		return filepath.Join(dir, "fnhost")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "fnhost")
	}
	return filepath.Join(os.TempDir(), "fnhost-cache")
}
