package nostrdb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/atomic"
	"github.com/tailscale/hujson"
)

// RelayConfig holds the store's configurable knobs, loaded from a
// JSON-with-comments file (grounded on the teacher's root `config.go`).
type RelayConfig struct {
	DataDir        string `json:"data_dir"`
	ContentCeiling int    `json:"content_ceiling,omitempty"`
	LogFileSize    int64  `json:"log_file_size,omitempty"`
	IndexFileSize  int64  `json:"index_file_size,omitempty"`
}

// ConfigFileName is the default project config file name.
const ConfigFileName = ".nostrdb.json"

// DefaultRelayConfig returns the built-in defaults, matching
// [Options.setDefaults].
func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		DataDir:        "./nostrdb-data",
		ContentCeiling: defaultContentCeiling,
		LogFileSize:    defaultLogFileSize,
		IndexFileSize:  defaultIndexFileSize,
	}
}

// getGlobalConfigPath returns $XDG_CONFIG_HOME/nostrdb/config.json, or
// ~/.config/nostrdb/config.json if XDG_CONFIG_HOME is unset. Returns an
// empty string if no home directory can be determined.
func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "nostrdb", "config.json")
		}
	}
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "nostrdb", "config.json")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "nostrdb", "config.json")
}

// LoadRelayConfig loads configuration with the following precedence
// (highest wins): defaults < global config < project config < flags.
func LoadRelayConfig(workDir, explicitPath string, flags RelayConfig, env []string) (RelayConfig, error) {
	cfg := DefaultRelayConfig()

	if globalPath := getGlobalConfigPath(env); globalPath != "" {
		globalCfg, loaded, err := loadConfigFile(globalPath, false)
		if err != nil {
			return RelayConfig{}, err
		}
		if loaded {
			cfg = mergeRelayConfig(cfg, globalCfg)
		}
	}

	projectPath := explicitPath
	mustExist := explicitPath != ""
	if projectPath == "" {
		projectPath = filepath.Join(workDir, ConfigFileName)
	}
	projectCfg, loaded, err := loadConfigFile(projectPath, mustExist)
	if err != nil {
		return RelayConfig{}, err
	}
	if loaded {
		cfg = mergeRelayConfig(cfg, projectCfg)
	}

	cfg = mergeRelayConfig(cfg, flags)

	if cfg.DataDir == "" {
		return RelayConfig{}, fmt.Errorf("data_dir must not be empty: %w", ErrInvalidInput)
	}

	return cfg, nil
}

func loadConfigFile(path string, mustExist bool) (RelayConfig, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return RelayConfig{}, false, nil
		}
		return RelayConfig{}, false, fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return RelayConfig{}, false, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}

	var cfg RelayConfig
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return RelayConfig{}, false, fmt.Errorf("invalid JSON in %s: %w", path, err)
	}

	return cfg, true, nil
}

func mergeRelayConfig(base, overlay RelayConfig) RelayConfig {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}
	if overlay.ContentCeiling != 0 {
		base.ContentCeiling = overlay.ContentCeiling
	}
	if overlay.LogFileSize != 0 {
		base.LogFileSize = overlay.LogFileSize
	}
	if overlay.IndexFileSize != 0 {
		base.IndexFileSize = overlay.IndexFileSize
	}
	return base
}

// BootstrapProjectConfig writes cfg to projectPath if no file exists
// there yet, so a first run leaves behind an editable config instead of
// relying purely on defaults. The write is atomic (temp file + rename,
// grounded on the teacher's lock.go use of the same package) so a crash
// mid-write can never leave a truncated config on disk.
func BootstrapProjectConfig(projectPath string, cfg RelayConfig) error {
	if _, err := os.Stat(projectPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %s: %w", projectPath, err)
	}

	buf, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}

	if err := atomic.WriteFile(projectPath, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("writing %s: %w", projectPath, err)
	}
	return nil
}

// ToOptions converts a loaded RelayConfig into [Options] for [Open].
func (c RelayConfig) ToOptions() Options {
	return Options{
		Dir:            c.DataDir,
		ContentCeiling: c.ContentCeiling,
		LogFileSize:    c.LogFileSize,
		IndexFileSize:  c.IndexFileSize,
	}
}
