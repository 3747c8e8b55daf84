// Package config loads host configuration for the plugin runtime.
//
// Precedence, highest to lowest: environment variables (FABLE_*),
// project config (.fable/fable.toml), global config
// (~/.config/fable/fable.toml), built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tomlparser "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	globalConfigDir  = "fable"
	projectConfigDir = ".fable"
	configFile       = "fable.toml"

	envPrefix = "FABLE_"

	defaultSandboxBudget = 100 * time.Millisecond
	defaultLogLevel      = "info"
)

// Config is the host configuration.
type Config struct {
	// PluginDirs are scanned for plugin directories, in order. Later
	// directories win on name collisions.
	PluginDirs []string `koanf:"plugin_dirs"`

	// TrustedPlugins run without the sandbox or the execution budget.
	TrustedPlugins []string `koanf:"trusted_plugins"`

	// SandboxBudget bounds a single sandboxed plugin call.
	SandboxBudget time.Duration `koanf:"sandbox_budget"`

	// DataDir holds the plugin persistence document.
	DataDir string `koanf:"data_dir"`

	LogLevel string `koanf:"log_level"`
}

// StorePath returns the path of the plugin persistence document.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "plugins.json")
}

// Trusted reports whether a plugin name appears in the trusted list.
func (c *Config) Trusted(name string) bool {
	for _, t := range c.TrustedPlugins {
		if t == name {
			return true
		}
	}
	return false
}

// Loader reads configuration from all sources.
type Loader struct {
	homeDir string
	workDir string
}

// NewLoader builds a loader rooted at the user's home and current
// working directories.
func NewLoader() (*Loader, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	workDir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve working directory: %w", err)
	}
	return NewLoaderWithDirs(homeDir, workDir), nil
}

// NewLoaderWithDirs builds a loader with explicit directories, mainly
// for tests.
func NewLoaderWithDirs(homeDir, workDir string) *Loader {
	return &Loader{homeDir: homeDir, workDir: workDir}
}

// Load merges every configuration source and returns the result.
func (l *Loader) Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(l.defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	for _, path := range []string{l.GlobalConfigPath(), l.ProjectConfigPath()} {
		if !fileExists(path) {
			continue
		}
		if err := k.Load(file.Provider(path), tomlparser.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	envOpt := env.Opt{
		Prefix:        envPrefix,
		TransformFunc: envTransform,
	}
	if err := k.Load(env.Provider(".", envOpt), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if cfg.SandboxBudget <= 0 {
		cfg.SandboxBudget = defaultSandboxBudget
	}
	return &cfg, nil
}

// GlobalConfigPath returns ~/.config/fable/fable.toml.
func (l *Loader) GlobalConfigPath() string {
	return filepath.Join(l.homeDir, ".config", globalConfigDir, configFile)
}

// ProjectConfigPath returns <workdir>/.fable/fable.toml.
func (l *Loader) ProjectConfigPath() string {
	return filepath.Join(l.workDir, projectConfigDir, configFile)
}

func (l *Loader) defaults() map[string]any {
	return map[string]any{
		"plugin_dirs": []string{
			filepath.Join(l.homeDir, ".config", globalConfigDir, "plugins"),
			filepath.Join(l.workDir, projectConfigDir, "plugins"),
		},
		"trusted_plugins": []string{},
		"sandbox_budget":  defaultSandboxBudget.String(),
		"data_dir":        filepath.Join(l.workDir, projectConfigDir, "data"),
		"log_level":       defaultLogLevel,
	}
}

// envTransform maps FABLE_SANDBOX_BUDGET to sandbox_budget and so on.
// List-valued settings split on commas.
func envTransform(key, value string) (string, any) {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	switch key {
	case "plugin_dirs", "trusted_plugins":
		return key, strings.Split(value, ",")
	}
	return key, value
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
