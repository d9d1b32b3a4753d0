package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/caffeineduck/fnhost/resource"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func executeCommand(root *cobra.Command, args ...string) (string, error) {
	resetFlags(root)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

// resetFlags restores every flag to its default so package-level commands
// can run more than once per test binary.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func writeProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"functions/hello.js":           `exports.handler = (context, event, callback) => callback(null, "hello " + (event.name || "world"));`,
		"functions/json.js":            `exports.handler = (context, event, callback) => callback(null, {greeting: context.GREETING, n: event.n});`,
		"functions/fail.js":            `exports.handler = (context, event, callback) => callback(new Error("boom"));`,
		"functions/admin.protected.js": `exports.handler = (context, event, callback) => callback(null, "admin");`,
		"assets/logo.private.png":      "png",
		"assets/index.html":            "<h1>home</h1>",
		".env":                         "GREETING=hi\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	}
	return dir
}

func TestCLIHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"fnhost", "serve", "routes", "invoke", "console", "--dir", "--env"} {
		assert.Contains(t, output, phrase)
	}
	assert.NotContains(t, output, "worker")
}

func TestCLIServeHelp(t *testing.T) {
	output, err := executeCommand(rootCmd, "serve", "--help")
	require.NoError(t, err)

	for _, phrase := range []string{"--port", "--isolated", "--live", "--timeout", "--base-url", "--functions-folder", "--legacy-mode", "--log-format"} {
		assert.Contains(t, output, phrase)
	}
}

func TestCLIRoutes(t *testing.T) {
	dir := writeProject(t)

	output, err := executeCommand(rootCmd, "routes", "--dir", dir, "--no-cache", "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, output, "Functions")
	assert.Contains(t, output, "/hello")
	assert.Contains(t, output, "/admin")
	assert.Contains(t, output, "[protected]")
	assert.Contains(t, output, "/logo.png [private]")
	assert.Contains(t, output, "/index.html")
}

func TestCLIRoutesLegacyMode(t *testing.T) {
	dir := writeProject(t)

	output, err := executeCommand(rootCmd, "routes", "--dir", dir, "--no-cache", "--legacy-mode", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, output, "/assets/index.html")
}

func TestCLIRoutesMissingDirectories(t *testing.T) {
	_, err := executeCommand(rootCmd, "routes", "--dir", t.TempDir(), "--no-cache", "--log-level", "error")
	assert.ErrorIs(t, err, resource.ErrNoResourceDirectory)
}

func TestCLIInvoke(t *testing.T) {
	dir := writeProject(t)

	t.Run("text", func(t *testing.T) {
		output, err := executeCommand(rootCmd, "invoke", "/hello", "--dir", dir, "--no-cache", "--log-level", "error", "--data", "name=Ada")
		require.NoError(t, err)
		assert.Contains(t, output, "200\n")
		assert.Contains(t, output, "Content-Type: text/plain")
		assert.Contains(t, output, "hello Ada")
	})

	t.Run("json with env", func(t *testing.T) {
		output, err := executeCommand(rootCmd, "invoke", "json", "--dir", dir, "--no-cache", "--log-level", "error", "--event", `{"n":1}`)
		require.NoError(t, err)
		assert.Contains(t, output, `"greeting": "hi"`)
		assert.Contains(t, output, `"n": 1`)
	})

	t.Run("failure", func(t *testing.T) {
		output, err := executeCommand(rootCmd, "invoke", "/fail", "--dir", dir, "--no-cache", "--log-level", "error")
		assert.ErrorIs(t, err, ErrFunctionFailed)
		assert.Contains(t, output, "Error: boom")
	})

	t.Run("unknown route", func(t *testing.T) {
		_, err := executeCommand(rootCmd, "invoke", "/nope", "--dir", dir, "--no-cache", "--log-level", "error")
		assert.ErrorContains(t, err, "no route /nope")
	})

	t.Run("asset", func(t *testing.T) {
		_, err := executeCommand(rootCmd, "invoke", "/index.html", "--dir", dir, "--no-cache", "--log-level", "error")
		assert.ErrorContains(t, err, "not a function")
	})

	t.Run("bad data", func(t *testing.T) {
		_, err := executeCommand(rootCmd, "invoke", "/hello", "--dir", dir, "--data", "novalue")
		assert.ErrorContains(t, err, "want key=value")
	})
}

func TestCLIInvalidLogLevel(t *testing.T) {
	dir := writeProject(t)
	_, err := executeCommand(rootCmd, "routes", "--dir", dir, "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")
}

// consoleFor opens dir the way the console command does, without a
// terminal.
func consoleFor(t *testing.T, dir string) (*console, *cobra.Command, *bytes.Buffer) {
	t.Helper()
	cmd := &cobra.Command{}
	addProjectFlags(cmd.Flags())
	require.NoError(t, cmd.Flags().Set("dir", dir))
	require.NoError(t, cmd.Flags().Set("no-cache", "true"))
	require.NoError(t, cmd.Flags().Set("log-level", "error"))
	cmd.SetContext(context.Background())
	cmd.SetErr(new(bytes.Buffer))

	p, err := openProject(cmd, true)
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	out := new(bytes.Buffer)
	strategy, globals := p.strategy()
	return &console{project: p, strategy: strategy, globals: globals, out: out}, cmd, out
}

func TestConsole(t *testing.T) {
	dir := writeProject(t)
	c, cmd, out := consoleFor(t, dir)

	assert.False(t, c.exec(cmd, `/hello {"name":"Grace"}`))
	assert.Contains(t, out.String(), "hello Grace")

	out.Reset()
	assert.False(t, c.exec(cmd, "/hello {not json"))
	assert.Contains(t, out.String(), "invalid event")

	out.Reset()
	assert.False(t, c.exec(cmd, "routes"))
	assert.Contains(t, out.String(), "http://localhost:3000/hello")

	out.Reset()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "functions", "late.js"),
		[]byte(`exports.handler = (c, e, cb) => cb(null, "late");`), 0o644))
	assert.False(t, c.exec(cmd, "reload"))
	assert.Contains(t, out.String(), "generation 2")

	out.Reset()
	assert.False(t, c.exec(cmd, "/late"))
	assert.Contains(t, out.String(), "late")
	assert.Contains(t, c.globals.Functions(), "late")

	assert.False(t, c.exec(cmd, "   "))
	assert.True(t, c.exec(cmd, "exit"))
	assert.True(t, c.exec(cmd, "quit"))
}
