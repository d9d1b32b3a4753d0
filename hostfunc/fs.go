package hostfunc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const (
	DefaultMaxFileSize   = 10 << 20 // 10MB
	DefaultMaxPathLength = 4096
)

var (
	ErrPermission = errors.New("permission denied")
	ErrNotFound   = errors.New("file not found")
	ErrTooLarge   = errors.New("file exceeds max size")
)

// Mount exposes a host directory under a virtual path. Mounts are read-only:
// handlers read private assets through them but never write.
type Mount struct {
	VirtualPath string // Path as seen by handler code (e.g., "/assets")
	HostPath    string // Actual path on host filesystem
}

// FS resolves virtual paths against its mounts.
type FS struct {
	mounts        []Mount
	maxFileSize   int64
	maxPathLength int
}

// FSOption configures an FS.
type FSOption func(*FS)

// WithMaxFileSize caps the size of a single read.
func WithMaxFileSize(size int64) FSOption {
	return func(f *FS) { f.maxFileSize = size }
}

// WithMaxPathLength caps the length of a requested virtual path.
func WithMaxPathLength(n int) FSOption {
	return func(f *FS) { f.maxPathLength = n }
}

// NewFS creates a read-only filesystem over mounts.
func NewFS(mounts []Mount, opts ...FSOption) *FS {
	f := &FS{maxFileSize: DefaultMaxFileSize, maxPathLength: DefaultMaxPathLength}
	for _, opt := range opts {
		opt(f)
	}
	for _, m := range mounts {
		hp, err := filepath.Abs(m.HostPath)
		if err != nil {
			continue
		}
		f.mounts = append(f.mounts, Mount{
			VirtualPath: "/" + strings.Trim(m.VirtualPath, "/"),
			HostPath:    hp,
		})
	}
	return f
}

// resolve maps a virtual path to a host path inside one of the mounts.
func (f *FS) resolve(virtualPath string) (string, error) {
	if len(virtualPath) > f.maxPathLength {
		return "", fmt.Errorf("%w: path too long", ErrPermission)
	}
	vp := path.Clean("/" + strings.TrimPrefix(virtualPath, "/"))

	for _, m := range f.mounts {
		if vp != m.VirtualPath && m.VirtualPath != "/" && !strings.HasPrefix(vp, m.VirtualPath+"/") {
			continue
		}
		rel := strings.TrimPrefix(vp, m.VirtualPath)
		hostPath := filepath.Join(m.HostPath, filepath.FromSlash(rel))
		if hostPath != m.HostPath && !strings.HasPrefix(hostPath, m.HostPath+string(filepath.Separator)) {
			return "", fmt.Errorf("%w: path escape attempt", ErrPermission)
		}
		return hostPath, nil
	}
	return "", fmt.Errorf("%w: path not in any mount", ErrPermission)
}

// Open opens a mounted file for reading.
func (f *FS) Open(virtualPath string) (*os.File, error) {
	hostPath, err := f.resolve(virtualPath)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(hostPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, virtualPath)
		}
		return nil, fmt.Errorf("open %s: %w", virtualPath, err)
	}
	return file, nil
}

// ReadFile reads a mounted file, enforcing the size limit.
func (f *FS) ReadFile(virtualPath string) ([]byte, error) {
	file, err := f.Open(virtualPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, f.maxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", virtualPath, err)
	}
	if int64(len(data)) > f.maxFileSize {
		return nil, fmt.Errorf("%w: %s", ErrTooLarge, virtualPath)
	}
	return data, nil
}

// Read is the host function form of ReadFile: args {"path"} -> string.
func (f *FS) Read(ctx context.Context, args map[string]any) (any, error) {
	p, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}
	data, err := f.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Exists reports whether a path exists. Paths outside every mount do not.
func (f *FS) Exists(ctx context.Context, args map[string]any) (any, error) {
	p, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}
	hostPath, err := f.resolve(p)
	if err != nil {
		return false, nil
	}
	_, err = os.Stat(hostPath)
	return err == nil, nil
}

// List returns the entries of a mounted directory.
func (f *FS) List(ctx context.Context, args map[string]any) (any, error) {
	p, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}
	hostPath, err := f.resolve(p)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(hostPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("list %s: %w", p, err)
	}

	out := make([]FSEntry, 0, len(entries))
	for _, entry := range entries {
		e := FSEntry{Name: entry.Name(), IsDir: entry.IsDir()}
		if info, err := entry.Info(); err == nil {
			e.Size = info.Size()
		}
		out = append(out, e)
	}
	return out, nil
}

// Stat describes a mounted file or directory.
func (f *FS) Stat(ctx context.Context, args map[string]any) (any, error) {
	p, ok := args["path"].(string)
	if !ok {
		return nil, errors.New("path required")
	}
	hostPath, err := f.resolve(p)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(hostPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("stat %s: %w", p, err)
	}
	return FSStatResponse{
		Name:    info.Name(),
		Size:    info.Size(),
		IsDir:   info.IsDir(),
		ModTime: info.ModTime().Unix(),
	}, nil
}
