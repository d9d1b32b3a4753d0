// Package resource discovers function and asset files under a project
// directory and maps them to route paths.
//
// Access level is encoded in the file name: a ".protected" or ".private"
// segment right before the final extension marks the resource Protected or
// Private, its absence marks it Public.
//
//	functions/hello.js               -> /hello        (Function, Public)
//	functions/secret.protected.js    -> /secret       (Function, Protected)
//	assets/img.private.png           -> /img.png      (Asset, Private)
package resource

import (
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes executable handlers from static files.
type Kind int

const (
	Function Kind = iota
	Asset
)

func (k Kind) String() string {
	switch k {
	case Function:
		return "function"
	case Asset:
		return "asset"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "function":
		*k = Function
	case "asset":
		*k = Asset
	default:
		return fmt.Errorf("unknown resource kind %q", b)
	}
	return nil
}

// Access is the visibility of a resource over HTTP.
type Access int

const (
	// Public resources are reachable by anyone.
	Public Access = iota
	// Protected resources are reachable but expected to be guarded by the caller.
	Protected
	// Private resources are never served over HTTP.
	Private
)

func (a Access) String() string {
	switch a {
	case Public:
		return "public"
	case Protected:
		return "protected"
	case Private:
		return "private"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

func (a Access) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *Access) UnmarshalText(b []byte) error {
	switch string(b) {
	case "public":
		*a = Public
	case "protected":
		*a = Protected
	case "private":
		*a = Private
	default:
		return fmt.Errorf("unknown access level %q", b)
	}
	return nil
}

// Resource is one routable file. It is never mutated after discovery.
type Resource struct {
	RoutePath string `json:"path"`
	FilePath  string `json:"filePath"`
	Kind      Kind   `json:"kind"`
	Access    Access `json:"access"`
}

// ErrNoResourceDirectory is returned when neither a functions nor an assets
// root exists under the base directory.
var ErrNoResourceDirectory = errors.New("no functions or assets directory found")

// DuplicateRouteError reports two files that map to the same route path.
type DuplicateRouteError struct {
	RoutePath string
	Files     []string
}

func (e *DuplicateRouteError) Error() string {
	return fmt.Sprintf("duplicate route %s: %s", e.RoutePath, strings.Join(e.Files, ", "))
}

// CheckDuplicates returns a *DuplicateRouteError for the first route path
// that appears more than once.
func CheckDuplicates(resources []Resource) error {
	seen := make(map[string]string, len(resources))
	for _, r := range resources {
		if prev, ok := seen[r.RoutePath]; ok {
			return &DuplicateRouteError{RoutePath: r.RoutePath, Files: []string{prev, r.FilePath}}
		}
		seen[r.RoutePath] = r.FilePath
	}
	return nil
}

// splitAccess strips an access marker from a file name that has already had
// its extension removed.
func splitAccess(name string) (string, Access) {
	switch {
	case strings.HasSuffix(name, ".protected"):
		return strings.TrimSuffix(name, ".protected"), Protected
	case strings.HasSuffix(name, ".private"):
		return strings.TrimSuffix(name, ".private"), Private
	default:
		return name, Public
	}
}
