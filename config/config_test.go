package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/caffeineduck/fnhost/scope"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Dir)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.True(t, cfg.Live)
	assert.False(t, cfg.Isolated)
	assert.Equal(t, ".env", cfg.EnvFile)
	assert.Empty(t, cfg.Env)
	assert.Equal(t, "http://localhost:3000", cfg.PublicURL())
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, FileName, `
port: 8080
functions_folder: src
assets_folder: static
legacy_mode: true
isolated: true
timeout: 5s
log_level: debug
env:
  GREETING: from-yaml
`)
	writeFile(t, dir, ".env", "GREETING=from-dotenv\nACCOUNT_SID=ACxxx\n")

	cfg, err := Load(dir, "")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "src", cfg.FunctionsFolder)
	assert.Equal(t, "static", cfg.AssetsFolder)
	assert.True(t, cfg.LegacyMode)
	assert.True(t, cfg.Isolated)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, map[string]string{"GREETING": "from-yaml", "ACCOUNT_SID": "ACxxx"}, cfg.Env)
}

func TestLoadExplicitEnvFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".env", "A=default\n")
	writeFile(t, dir, ".env.local", "A=local\n")

	cfg, err := Load(dir, ".env.local")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.Env["A"])
}

func TestLoadErrors(t *testing.T) {
	t.Run("bad yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, FileName, "port: [not a number\n")
		_, err := Load(dir, "")
		assert.ErrorContains(t, err, FileName)
	})

	t.Run("env file is a directory", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.Mkdir(filepath.Join(dir, ".env"), 0o755))
		_, err := Load(dir, "")
		assert.ErrorContains(t, err, "env file")
	})
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Timeout = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestScopeAndResourceOptions(t *testing.T) {
	cfg := Default()
	cfg.Dir = "/project"
	cfg.Port = 4000
	cfg.FunctionsFolder = "fns"
	cfg.LegacyMode = true
	cfg.Env = map[string]string{"K": "v"}

	opts := cfg.ResourceOptions(nil)
	assert.Equal(t, "/project", opts.BaseDir)
	assert.Equal(t, "fns", opts.FunctionsFolder)
	assert.True(t, opts.LegacyMode)

	reg := scope.Registry{Functions: map[string]string{"/a": "/project/functions/a.js"}}
	sc := cfg.Scope(reg)
	assert.Equal(t, "http://localhost:4000", sc.BaseURL)
	assert.Equal(t, reg, sc.Registry)

	sc.Env["K"] = "changed"
	assert.Equal(t, "v", cfg.Env["K"], "scope env must be a copy")

	cfg.BaseURL = "https://example.ngrok.io"
	assert.Equal(t, "https://example.ngrok.io", cfg.Scope(reg).BaseURL)
}
