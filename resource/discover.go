package resource

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
)

var (
	defaultFunctionDirs = []string{"functions", "src"}
	defaultAssetDirs    = []string{"assets", "static"}
	defaultExtensions   = []string{".js", ".wasm"}
)

// Options controls a discovery run.
type Options struct {
	BaseDir string

	// FunctionsFolder and AssetsFolder replace the default candidate
	// directory names for their category when set.
	FunctionsFolder string
	AssetsFolder    string

	// FunctionExtensions lists the file extensions treated as functions.
	// Defaults to .js and .wasm.
	FunctionExtensions []string

	// LegacyMode prefixes every asset route with /assets.
	LegacyMode bool

	// AllowMissing turns ErrNoResourceDirectory into a warning and an empty result.
	AllowMissing bool

	Logger *slog.Logger
}

// Roots holds the directories a discovery run scans. Either may be empty.
type Roots struct {
	Functions string
	Assets    string
}

// FindRoots resolves the functions and assets roots for opts. The first
// existing candidate wins per category.
func FindRoots(opts Options) (Roots, error) {
	base, err := filepath.Abs(opts.BaseDir)
	if err != nil {
		return Roots{}, fmt.Errorf("resolve base dir: %w", err)
	}

	fnCandidates := defaultFunctionDirs
	if opts.FunctionsFolder != "" {
		fnCandidates = []string{opts.FunctionsFolder}
	}
	assetCandidates := defaultAssetDirs
	if opts.AssetsFolder != "" {
		assetCandidates = []string{opts.AssetsFolder}
	}

	return Roots{
		Functions: firstDir(base, fnCandidates),
		Assets:    firstDir(base, assetCandidates),
	}, nil
}

func firstDir(base string, candidates []string) string {
	for _, name := range candidates {
		dir := name
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(base, name)
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			return dir
		}
	}
	return ""
}

// Discover scans the project and returns every function and asset resource,
// sorted by route path. Duplicate route paths fail the whole run.
func Discover(opts Options) ([]Resource, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	roots, err := FindRoots(opts)
	if err != nil {
		return nil, err
	}
	if roots.Functions == "" && roots.Assets == "" {
		if opts.AllowMissing {
			log.Warn("no functions or assets directory found, serving nothing", "dir", opts.BaseDir)
			return []Resource{}, nil
		}
		return nil, fmt.Errorf("%w in %s", ErrNoResourceDirectory, opts.BaseDir)
	}

	exts := opts.FunctionExtensions
	if len(exts) == 0 {
		exts = defaultExtensions
	}

	var resources []Resource
	if roots.Functions != "" {
		fns, err := scan(roots.Functions, func(rel string) (Resource, bool) {
			ext := path.Ext(rel)
			if !slices.Contains(exts, ext) {
				return Resource{}, false
			}
			route, access := splitAccess(strings.TrimSuffix(rel, ext))
			return Resource{RoutePath: "/" + route, Kind: Function, Access: access}, true
		})
		if err != nil {
			return nil, fmt.Errorf("scan functions: %w", err)
		}
		resources = append(resources, fns...)
	}

	if roots.Assets != "" {
		prefix := "/"
		if opts.LegacyMode {
			prefix = "/assets/"
		}
		assets, err := scan(roots.Assets, func(rel string) (Resource, bool) {
			ext := path.Ext(rel)
			route, access := splitAccess(strings.TrimSuffix(rel, ext))
			return Resource{RoutePath: prefix + route + ext, Kind: Asset, Access: access}, true
		})
		if err != nil {
			return nil, fmt.Errorf("scan assets: %w", err)
		}
		resources = append(resources, assets...)
	}

	if err := CheckDuplicates(resources); err != nil {
		return nil, err
	}

	slices.SortFunc(resources, func(a, b Resource) int {
		return strings.Compare(a.RoutePath, b.RoutePath)
	})
	log.Debug("discovered resources", "count", len(resources), "functions", roots.Functions, "assets", roots.Assets)
	return resources, nil
}

// scan walks root and converts each regular file through classify, which
// receives the slash-separated path relative to root.
func scan(root string, classify func(rel string) (Resource, bool)) ([]Resource, error) {
	var out []Resource
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p != root && SkipName(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		r, ok := classify(filepath.ToSlash(rel))
		if !ok {
			return nil
		}
		r.FilePath = p
		out = append(out, r)
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return out, err
}

// SkipName reports whether a file or directory name is ignored by discovery.
func SkipName(name string) bool {
	return strings.HasPrefix(name, ".") || name == "node_modules"
}
