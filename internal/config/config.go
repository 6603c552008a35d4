// Package config provides configuration management for the toolhost MCP
// server. Configuration is loaded from defaults, optionally overlaid by a
// YAML file, and finally overridden by environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	domainerrors "github.com/toolhost-mcp/toolhost/internal/errors"
)

// Config holds the complete server configuration in a flat structure.
type Config struct {
	// ToolsDir is the directory scanned for provider executables,
	// resolved relative to the server executable's directory when not
	// absolute.
	ToolsDir string `yaml:"tools_dir"`

	// LogPath is the fixed append-only log file path.
	LogPath string `yaml:"log_path"`

	// ListTimeout bounds each `list`/`instructions` invocation made
	// during registry build.
	ListTimeout time.Duration `yaml:"list_timeout"`

	// CallTimeout bounds each `tools/call` child invocation.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// DrainWindow is how long the runner waits for reader goroutines to
	// observe EOF after the direct child exits before force-closing.
	DrainWindow time.Duration `yaml:"drain_window"`

	// PollInterval is how often the runner polls for child exit and
	// reader drain during a capture.
	PollInterval time.Duration `yaml:"poll_interval"`

	// MetricsAddr, when non-empty, is the address the debug metrics and
	// health HTTP listener binds to (e.g. "127.0.0.1:9090"). Empty
	// disables the listener; the stdio transport never needs it.
	MetricsAddr string `yaml:"metrics_addr"`

	// ServerName is the identity reported in the initialize response.
	ServerName string `yaml:"server_name"`

	// ServerVersion is the version reported in the initialize response.
	ServerVersion string `yaml:"server_version"`
}

// defaults returns a Config populated with the built-in defaults, before
// any YAML overlay or environment override is applied.
func defaults() Config {
	return Config{
		ToolsDir:      "./tools",
		LogPath:       "/tmp/mcp_server.log",
		ListTimeout:   10 * time.Second,
		CallTimeout:   30 * time.Second,
		DrainWindow:   50 * time.Millisecond,
		PollInterval:  20 * time.Millisecond,
		MetricsAddr:   "",
		ServerName:    "toolhost",
		ServerVersion: "0.1.0",
	}
}

// Load builds a Config following defaults < YAML file < environment
// variables precedence, matching the server's "defaults, then override"
// layering. yamlPath may be empty, in which case the YAML layer is
// skipped entirely.
func Load(yamlPath string) (*Config, error) {
	cfg := defaults()

	if yamlPath != "" {
		if err := overlayYAML(&cfg, yamlPath); err != nil {
			return nil, domainerrors.New("config", "Load", domainerrors.ErrBadRequest, err).
				WithContext("yaml_path", yamlPath)
		}
	}

	if err := overlayEnv(&cfg); err != nil {
		return nil, domainerrors.New("config", "Load", domainerrors.ErrBadRequest, err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, domainerrors.New("config", "Load", domainerrors.ErrBadRequest, err)
	}

	return &cfg, nil
}

// ResolveToolsDir returns toolsDir resolved relative to the running
// executable's directory when it is not already absolute, so a toolhost
// binary deployed with a sibling tools/ directory finds it regardless of
// the working directory it happens to be launched from. Callers apply
// this after every override (config file, environment, `-tools-dir`
// flag) has already been layered onto ToolsDir. If the executable's own
// path cannot be determined, toolsDir is returned unchanged and resolves
// relative to the process's working directory instead.
func ResolveToolsDir(toolsDir string) string {
	if filepath.IsAbs(toolsDir) {
		return toolsDir
	}
	exe, err := os.Executable()
	if err != nil {
		return toolsDir
	}
	return filepath.Join(filepath.Dir(exe), toolsDir)
}

// overlayYAML decodes the YAML file at path over cfg. Only fields present
// in the file are changed; an absent field keeps whatever cfg already
// held (the defaults), since yaml.Unmarshal decodes in place.
func overlayYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// overlayEnv applies environment variable overrides on top of cfg, using
// the getEnvOr/parseDurationEnvOr helpers below.
func overlayEnv(cfg *Config) error {
	cfg.ToolsDir = getEnvOr("TOOLHOST_TOOLS_DIR", cfg.ToolsDir)
	cfg.LogPath = getEnvOr("TOOLHOST_LOG_PATH", cfg.LogPath)
	cfg.MetricsAddr = getEnvOr("TOOLHOST_METRICS_ADDR", cfg.MetricsAddr)
	cfg.ServerName = getEnvOr("TOOLHOST_SERVER_NAME", cfg.ServerName)
	cfg.ServerVersion = getEnvOr("TOOLHOST_SERVER_VERSION", cfg.ServerVersion)

	var err error
	if cfg.ListTimeout, err = parseDurationEnvOr("TOOLHOST_LIST_TIMEOUT", cfg.ListTimeout); err != nil {
		return err
	}
	if cfg.CallTimeout, err = parseDurationEnvOr("TOOLHOST_CALL_TIMEOUT", cfg.CallTimeout); err != nil {
		return err
	}
	if cfg.DrainWindow, err = parseDurationEnvOr("TOOLHOST_DRAIN_WINDOW", cfg.DrainWindow); err != nil {
		return err
	}
	if cfg.PollInterval, err = parseDurationEnvOr("TOOLHOST_POLL_INTERVAL", cfg.PollInterval); err != nil {
		return err
	}
	return nil
}

// getEnvOr returns the environment variable value, or fallback if unset
// or empty.
func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseDurationEnvOr parses key as a duration, returning fallback if the
// variable is unset, and an error if it is set but unparseable.
func parseDurationEnvOr(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// String returns a string representation of the configuration, suitable
// for a single startup log line.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{ToolsDir: %s, LogPath: %s, ListTimeout: %v, CallTimeout: %v, DrainWindow: %v, PollInterval: %v, MetricsAddr: %q, ServerName: %s, ServerVersion: %s}",
		c.ToolsDir, c.LogPath, c.ListTimeout, c.CallTimeout, c.DrainWindow, c.PollInterval, c.MetricsAddr, c.ServerName, c.ServerVersion,
	)
}
