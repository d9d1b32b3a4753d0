// Package bench measures the request path of the host: discovery, route
// lookup, result translation and handler invocation.
//
// Run with: go test -v -run=Test ./bench/
// Benchmarks: go test -bench=. -benchtime=3x ./bench/
package bench

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/caffeineduck/fnhost/dispatch"
	"github.com/caffeineduck/fnhost/executor"
	"github.com/caffeineduck/fnhost/internal/logger"
	"github.com/caffeineduck/fnhost/language/javascript"
	"github.com/caffeineduck/fnhost/reply"
	"github.com/caffeineduck/fnhost/resource"
	"github.com/caffeineduck/fnhost/route"
	"github.com/caffeineduck/fnhost/scope"
)

const handlerSource = `exports.handler = function (context, event, callback) {
  callback(null, { hello: event.name || "world" });
};`

func project(tb testing.TB, functions int) string {
	tb.Helper()
	dir := tb.TempDir()
	fnDir := filepath.Join(dir, "functions")
	if err := os.MkdirAll(fnDir, 0o755); err != nil {
		tb.Fatal(err)
	}
	for i := 0; i < functions; i++ {
		name := filepath.Join(fnDir, fmt.Sprintf("fn%03d.js", i))
		if err := os.WriteFile(name, []byte(handlerSource), 0o644); err != nil {
			tb.Fatal(err)
		}
	}
	return dir
}

func table(tb testing.TB, dir string) *route.Store {
	tb.Helper()
	resources, err := resource.Discover(resource.Options{BaseDir: dir, Logger: logger.Discard()})
	if err != nil {
		tb.Fatal(err)
	}
	store := route.NewStore()
	if _, err := store.Rebuild(resources); err != nil {
		tb.Fatal(err)
	}
	return store
}

func inProcess() *executor.InProcess {
	log := logger.Discard()
	runners := executor.NewRunnerSet(javascript.New(javascript.WithLogger(log)))
	return executor.NewInProcess(runners, scope.NewGlobals(scope.Config{}), executor.WithLogger(log))
}

func scopeFor(t *route.Table) scope.Config {
	return scope.Config{BaseURL: "http://localhost:3000", Registry: scope.RegistryFromTable(t, "")}
}

// --- Discovery and routing ---

func BenchmarkDiscover_100(b *testing.B) {
	dir := project(b, 100)
	opts := resource.Options{BaseDir: dir, Logger: logger.Discard()}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := resource.Discover(opts); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRouteLookup(b *testing.B) {
	store := table(b, project(b, 100))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := store.Load().Lookup("/fn050"); !ok {
			b.Fatal("route missing")
		}
	}
}

func BenchmarkTranslate(b *testing.B) {
	results := []reply.Result{
		reply.TextResult("ok"),
		reply.JSONResult(map[string]any{"a": 1}),
		reply.ResponseResult(201, reply.Headers{"X-Test": {"1"}}, "created"),
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = reply.Translate(results[i%len(results)])
	}
}

// --- Invocation ---

func BenchmarkInProcess_JavaScript(b *testing.B) {
	dir := project(b, 1)
	strategy := inProcess()
	req := executor.Request{
		FunctionPath: filepath.Join(dir, "functions", "fn000.js"),
		Event:        map[string]any{"name": "bench"},
		Config:       scope.Config{BaseURL: "http://localhost:3000"},
		Path:         "/fn000",
	}

	// First run compiles the module.
	if _, err := strategy.Invoke(context.Background(), req); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := strategy.Invoke(context.Background(), req); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDispatch_Function(b *testing.B) {
	dir := project(b, 10)
	d := dispatch.New(table(b, dir), inProcess(), scopeFor, dispatch.WithLogger(logger.Discard()))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		rec := httptest.NewRecorder()
		d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/fn001?name=bench", nil))
		if rec.Code != http.StatusOK {
			b.Fatalf("status %d", rec.Code)
		}
	}
}

// --- Summary ---

func TestRequestPathSummary(t *testing.T) {
	if testing.Short() {
		t.Skip("summary skipped in short mode")
	}

	measure := func(runs int, fn func()) time.Duration {
		var total time.Duration
		for i := 0; i < runs; i++ {
			start := time.Now()
			fn()
			total += time.Since(start)
		}
		return total / time.Duration(runs)
	}

	dir := project(t, 50)
	store := table(t, dir)
	d := dispatch.New(store, inProcess(), scopeFor, dispatch.WithLogger(logger.Discard()))
	get := func(path string) func() {
		return func() {
			rec := httptest.NewRecorder()
			d.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("GET %s: status %d", path, rec.Code)
			}
		}
	}

	rows := []struct {
		name string
		d    time.Duration
	}{
		{"discover (50 functions)", measure(3, func() {
			if _, err := resource.Discover(resource.Options{BaseDir: dir, Logger: logger.Discard()}); err != nil {
				t.Fatal(err)
			}
		})},
		{"first request (compile)", measure(1, get("/fn000"))},
		{"warm request", measure(10, get("/fn000"))},
	}

	fmt.Println()
	fmt.Printf("Platform: %s/%s, CPUs: %d\n", runtime.GOOS, runtime.GOARCH, runtime.NumCPU())
	fmt.Println("┌──────────────────────────┬────────────┐")
	fmt.Println("│ Step                     │ Time       │")
	fmt.Println("├──────────────────────────┼────────────┤")
	for _, r := range rows {
		fmt.Printf("│ %-24s │ %10s │\n", r.name, formatDuration(r.d))
	}
	fmt.Println("└──────────────────────────┴────────────┘")
	fmt.Println()
}

func formatDuration(d time.Duration) string {
	if d >= time.Second {
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
	if d >= time.Millisecond {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%dµs", d.Microseconds())
}

func TestMemoryUsage(t *testing.T) {
	var m runtime.MemStats

	runtime.GC()
	runtime.ReadMemStats(&m)
	before := m.Alloc

	dir := project(t, 1)
	strategy := inProcess()
	req := executor.Request{FunctionPath: filepath.Join(dir, "functions", "fn000.js"), Event: map[string]any{}, Path: "/fn000"}
	for i := 0; i < 20; i++ {
		if _, err := strategy.Invoke(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}

	runtime.ReadMemStats(&m)
	after := m.Alloc

	runtime.GC()
	runtime.ReadMemStats(&m)
	afterGC := m.Alloc

	t.Logf("Memory before: %d KB", before/1024)
	t.Logf("Memory after 20 invocations: %d KB", after/1024)
	t.Logf("Memory after GC: %d KB", afterGC/1024)
}
