package scope

import (
	"log/slog"
	"maps"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caffeineduck/fnhost/hostfunc"
	"github.com/caffeineduck/fnhost/reply"
	"github.com/caffeineduck/fnhost/resource"
	"github.com/caffeineduck/fnhost/route"
)

const assetMount = "/assets"

// Registry lists what a handler may introspect: function routes and the
// private assets that are reachable only through Globals.
type Registry struct {
	// Functions maps a route path to the absolute function file.
	Functions map[string]string `json:"functions"`
	// Assets maps a private asset route path to the absolute file.
	Assets map[string]string `json:"assets"`
	// AssetsRoot is the directory private assets are read from.
	AssetsRoot string `json:"assetsRoot,omitempty"`
}

// RegistryFromTable collects the registry for one route table generation.
func RegistryFromTable(t *route.Table, assetsRoot string) Registry {
	reg := Registry{
		Functions:  map[string]string{},
		Assets:     map[string]string{},
		AssetsRoot: assetsRoot,
	}
	for _, r := range t.Functions() {
		reg.Functions[r.RoutePath] = r.FilePath
	}
	for _, r := range t.Assets() {
		if r.Access == resource.Private {
			reg.Assets[r.RoutePath] = r.FilePath
		}
	}
	return reg
}

// Asset is a private asset exposed to handlers.
type Asset struct {
	Path string `json:"path"`

	virtual string
	fs      *hostfunc.FS
}

// Open returns the asset contents.
func (a Asset) Open() (string, error) {
	data, err := a.fs.ReadFile(a.virtual)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Globals is the per-process scope shared by every invocation the process
// runs.
type Globals struct {
	mu       sync.RWMutex
	registry Registry
	assets   *hostfunc.FS
	client   *Client
}

// NewGlobals builds the process scope. The API client is pre-built only when
// the configured credentials are valid.
func NewGlobals(cfg Config) *Globals {
	g := &Globals{}
	g.SetRegistry(cfg.Registry)

	if err := ValidateCredentials(cfg.Env, "Runtime"); err == nil {
		g.client = NewClient(cfg.Env[EnvAccountSID], cfg.Env[EnvAuthToken], cfg.apiBaseURL())
	} else {
		slog.Debug("no api client in global scope", "reason", err)
	}
	return g
}

// SetRegistry replaces the registry, e.g. after a live reload.
func (g *Globals) SetRegistry(r Registry) {
	var mounts []hostfunc.Mount
	if r.AssetsRoot != "" {
		mounts = append(mounts, hostfunc.Mount{VirtualPath: assetMount, HostPath: r.AssetsRoot})
	}
	fs := hostfunc.NewFS(mounts)

	g.mu.Lock()
	g.registry = Registry{
		Functions:  maps.Clone(r.Functions),
		Assets:     maps.Clone(r.Assets),
		AssetsRoot: r.AssetsRoot,
	}
	g.assets = fs
	g.mu.Unlock()
}

// Registry returns a copy of the current registry.
func (g *Globals) Registry() Registry {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Registry{
		Functions:  maps.Clone(g.registry.Functions),
		Assets:     maps.Clone(g.registry.Assets),
		AssetsRoot: g.registry.AssetsRoot,
	}
}

// Functions maps a function name (its route without the leading slash) to
// its absolute path.
func (g *Globals) Functions() map[string]string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]string, len(g.registry.Functions))
	for route, file := range g.registry.Functions {
		out[strings.TrimPrefix(route, "/")] = file
	}
	return out
}

// Assets maps each private asset route to a lazy opener.
func (g *Globals) Assets() map[string]Asset {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[string]Asset, len(g.registry.Assets))
	for route, file := range g.registry.Assets {
		virtual := file
		if rel, err := filepath.Rel(g.registry.AssetsRoot, file); err == nil {
			virtual = assetMount + "/" + filepath.ToSlash(rel)
		}
		out[route] = Asset{Path: file, virtual: virtual, fs: g.assets}
	}
	return out
}

// AssetFS exposes private assets by virtual path, for runtimes that read
// them through host functions.
func (g *Globals) AssetFS() *hostfunc.FS {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.assets
}

// Client returns the pre-built API client, or nil without valid credentials.
func (g *Globals) Client() *Client {
	return g.client
}

// NewResponse is the response-value constructor handlers use.
func (g *Globals) NewResponse(opts reply.ResponseOptions) *reply.ResponseValue {
	return reply.NewResponseValue(opts)
}
