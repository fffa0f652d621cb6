package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"

	"github.com/qrutyy/ls-bdd/pkg/lsmap"
)

// Config holds all configuration options.
type Config struct {
	Backend  string `json:"backend"`             //nolint:tagliatelle // snake_case for config file
	LogLevel string `json:"log_level,omitempty"` //nolint:tagliatelle // snake_case for config file
}

// ConfigSources tracks which config files were loaded.
type ConfigSources struct {
	Global  string // Path to global config if loaded, empty otherwise
	Project string // Path to project config if loaded, empty otherwise
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Backend:  string(lsmap.BackendSkipList),
		LogLevel: "warn",
	}
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".lsbdd.json"

// getGlobalConfigPath returns the path to the global config file.
// Uses $XDG_CONFIG_HOME/lsbdd/config.json if set, otherwise
// ~/.config/lsbdd/config.json. Returns empty string if the home directory
// cannot be determined.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "lsbdd", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "lsbdd", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "lsbdd", "config.json")
	}

	return ""
}

// LoadConfig loads configuration with the following precedence (highest wins):
// 1. Defaults
// 2. Global user config
// 3. Project config file (.lsbdd.json in workDir, if present)
// 4. Explicit config file via configPath (if non-empty)
// 5. CLI overrides.
func LoadConfig(workDir, configPath string, cliOverrides Config, env []string) (Config, ConfigSources, error) {
	cfg := DefaultConfig()

	var sources ConfigSources

	if globalPath := getGlobalConfigPath(env); globalPath != "" {
		globalCfg, err := readConfigFile(globalPath)

		switch {
		case err == nil:
			sources.Global = globalPath
			cfg = mergeConfig(cfg, globalCfg)
		case errors.Is(err, errConfigFileNotFound):
			// No global config is fine.
		default:
			return Config{}, ConfigSources{}, err
		}
	}

	projectPath := filepath.Join(workDir, ConfigFileName)

	projectCfg, err := readConfigFile(projectPath)

	switch {
	case err == nil:
		sources.Project = projectPath
		cfg = mergeConfig(cfg, projectCfg)
	case errors.Is(err, errConfigFileNotFound):
		// No project config is fine.
	default:
		return Config{}, ConfigSources{}, err
	}

	if configPath != "" {
		explicitCfg, err := readConfigFile(configPath)
		if err != nil {
			return Config{}, ConfigSources{}, err
		}

		sources.Project = configPath
		cfg = mergeConfig(cfg, explicitCfg)
	}

	cfg = mergeConfig(cfg, cliOverrides)

	if !lsmap.Backend(cfg.Backend).Valid() {
		return Config{}, ConfigSources{}, fmt.Errorf("%w: %q", errUnknownBackend, cfg.Backend)
	}

	return cfg, sources, nil
}

// readConfigFile reads a HuJSON config file.
func readConfigFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
		}

		return Config{}, fmt.Errorf("%w: %s: %v", errConfigFileRead, path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", errConfigInvalid, path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", errConfigInvalid, path, err)
	}

	return cfg, nil
}

// mergeConfig overlays non-empty fields of overlay onto base.
func mergeConfig(base, overlay Config) Config {
	if overlay.Backend != "" {
		base.Backend = overlay.Backend
	}

	if overlay.LogLevel != "" {
		base.LogLevel = overlay.LogLevel
	}

	return base
}

// SaveConfig writes cfg to path atomically.
func SaveConfig(path string, cfg Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	data = append(data, '\n')

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}
