package javascript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dop251/goja"
)

var errModuleNotFound = errors.New("cannot find module")

// load evaluates a module file once per VM and returns its exports.
func (s *session) load(path string) (goja.Value, error) {
	if module, ok := s.modules[path]; ok {
		return module.Get("exports"), nil
	}

	vm := s.vm
	module := vm.NewObject()
	module.Set("id", path)
	module.Set("filename", path)

	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		exports, err := s.jsonValue(v)
		if err != nil {
			return nil, err
		}
		module.Set("exports", exports)
		s.modules[path] = module
		return exports, nil
	}

	program, err := s.runner.program(path)
	if err != nil {
		return nil, err
	}
	wrapper, err := vm.RunProgram(program)
	if err != nil {
		return nil, err
	}
	fn, ok := goja.AssertFunction(wrapper)
	if !ok {
		return nil, fmt.Errorf("module %s did not compile to a function", path)
	}

	exports := vm.NewObject()
	module.Set("exports", exports)
	s.modules[path] = module

	dir := filepath.Dir(path)
	_, err = fn(goja.Undefined(), exports, vm.ToValue(s.require(dir)), module, vm.ToValue(path), vm.ToValue(dir))
	if err != nil {
		delete(s.modules, path)
		return nil, err
	}
	return module.Get("exports"), nil
}

// require returns the require function for modules in dir.
func (s *session) require(dir string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		id := call.Argument(0).String()
		path, err := resolveModule(id, dir)
		if err != nil {
			e := s.newError("Error", err.Error())
			e.Set("code", "MODULE_NOT_FOUND")
			panic(e)
		}
		exports, err := s.load(path)
		if err != nil {
			var ex *goja.Exception
			if errors.As(err, &ex) {
				panic(ex.Value())
			}
			panic(s.newError("Error", err.Error()))
		}
		return exports
	}
}

// resolveModule finds the file for a require id: relative and absolute paths
// from dir, bare names from the nearest node_modules.
func resolveModule(id, dir string) (string, error) {
	if id == "." || id == ".." || strings.HasPrefix(id, "./") || strings.HasPrefix(id, "../") || filepath.IsAbs(id) {
		p := id
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, id)
		}
		if f, ok := resolvePath(p); ok {
			return f, nil
		}
		return "", fmt.Errorf("%w '%s'", errModuleNotFound, id)
	}

	for d := dir; ; {
		if f, ok := resolvePath(filepath.Join(d, "node_modules", id)); ok {
			return f, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			break
		}
		d = parent
	}
	return "", fmt.Errorf("%w '%s'", errModuleNotFound, id)
}

// resolvePath tries p as a file, with a .js or .json extension, then as a
// package directory.
func resolvePath(p string) (string, bool) {
	if f, ok := resolveFile(p); ok {
		return f, true
	}
	if info, err := os.Stat(p); err != nil || !info.IsDir() {
		return "", false
	}

	if data, err := os.ReadFile(filepath.Join(p, "package.json")); err == nil {
		var pkg struct {
			Main string `json:"main"`
		}
		if json.Unmarshal(data, &pkg) == nil && pkg.Main != "" {
			main := filepath.Join(p, pkg.Main)
			if f, ok := resolveFile(main); ok {
				return f, true
			}
			if f, ok := resolveFile(filepath.Join(main, "index")); ok {
				return f, true
			}
		}
	}
	return resolveFile(filepath.Join(p, "index"))
}

func resolveFile(p string) (string, bool) {
	for _, candidate := range []string{p, p + ".js", p + ".json"} {
		if info, err := os.Stat(candidate); err == nil && info.Mode().IsRegular() {
			return candidate, true
		}
	}
	return "", false
}
