// Package config loads the host configuration: an optional .fnhost.yaml in
// the project directory plus the project's .env file. Command-line flags are
// applied on top by the caller.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/caffeineduck/fnhost/resource"
	"github.com/caffeineduck/fnhost/scope"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the optional project config file.
const FileName = ".fnhost.yaml"

// DefaultPort is the port the dev host listens on.
const DefaultPort = 3000

// HostConfig is everything the host needs to serve a project.
type HostConfig struct {
	// Dir is the project directory. Resource roots are resolved against it.
	Dir string `yaml:"-"`

	Port int `yaml:"port"`
	// BaseURL is the public URL of the host; DOMAIN_NAME is derived from it.
	// Defaults to http://localhost:<port>.
	BaseURL    string `yaml:"base_url"`
	APIBaseURL string `yaml:"api_base_url"`

	FunctionsFolder string `yaml:"functions_folder"`
	AssetsFolder    string `yaml:"assets_folder"`
	LegacyMode      bool   `yaml:"legacy_mode"`

	// Isolated runs each invocation in a fresh worker process.
	Isolated bool          `yaml:"isolated"`
	Live     bool          `yaml:"live"`
	Timeout  time.Duration `yaml:"timeout"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// EnvFile is the dotenv file, relative to Dir unless absolute.
	EnvFile string            `yaml:"env_file"`
	Env     map[string]string `yaml:"env"`
}

// Default returns the configuration used when nothing is configured.
func Default() HostConfig {
	return HostConfig{
		Dir:       ".",
		Port:      DefaultPort,
		Live:      true,
		LogLevel:  "info",
		LogFormat: "text",
		EnvFile:   ".env",
		Env:       map[string]string{},
	}
}

// Load reads dir/.fnhost.yaml when present and merges the variables of
// envFile (".env" when empty) into Env. Variables set in the YAML env map
// win over the dotenv file. A missing dotenv file is not an error.
func Load(dir, envFile string) (HostConfig, error) {
	cfg := Default()
	cfg.Dir = dir

	data, err := os.ReadFile(filepath.Join(dir, FileName))
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return HostConfig{}, fmt.Errorf("parse %s: %w", FileName, err)
		}
	case !errors.Is(err, fs.ErrNotExist):
		return HostConfig{}, fmt.Errorf("read %s: %w", FileName, err)
	}
	cfg.Dir = dir

	if envFile != "" {
		cfg.EnvFile = envFile
	}
	fileEnv, err := cfg.readEnvFile()
	if err != nil {
		return HostConfig{}, err
	}
	env := make(map[string]string, len(fileEnv)+len(cfg.Env))
	for k, v := range fileEnv {
		env[k] = v
	}
	for k, v := range cfg.Env {
		env[k] = v
	}
	cfg.Env = env
	return cfg, nil
}

func (c HostConfig) readEnvFile() (map[string]string, error) {
	if c.EnvFile == "" {
		return nil, nil
	}
	path := c.EnvFile
	if !filepath.IsAbs(path) {
		path = filepath.Join(c.Dir, path)
	}
	env, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("no env file", "path", path)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read env file %s: %w", path, err)
	}
	return env, nil
}

// Validate checks the values flags and files can get wrong.
func (c HostConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("invalid timeout %s", c.Timeout)
	}
	return nil
}

// Addr is the listen address.
func (c HostConfig) Addr() string {
	return net.JoinHostPort("", strconv.Itoa(c.Port))
}

// PublicURL is BaseURL, or the local URL of the listen port.
func (c HostConfig) PublicURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return "http://localhost:" + strconv.Itoa(c.Port)
}

// ResourceOptions returns the discovery options for the project.
func (c HostConfig) ResourceOptions(log *slog.Logger) resource.Options {
	return resource.Options{
		BaseDir:         c.Dir,
		FunctionsFolder: c.FunctionsFolder,
		AssetsFolder:    c.AssetsFolder,
		LegacyMode:      c.LegacyMode,
		Logger:          log,
	}
}

// Scope returns the per-invocation configuration handed to handlers.
func (c HostConfig) Scope(registry scope.Registry) scope.Config {
	env := make(map[string]string, len(c.Env))
	for k, v := range c.Env {
		env[k] = v
	}
	return scope.Config{
		BaseURL:    c.PublicURL(),
		Env:        env,
		APIBaseURL: c.APIBaseURL,
		Registry:   registry,
	}
}
