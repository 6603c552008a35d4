package config

import (
	"fmt"
	"net"
)

// Validate checks that the configuration is valid and complete. It returns
// an error if required fields are missing or values are invalid.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config cannot be nil")
	}

	if cfg.ToolsDir == "" {
		return fmt.Errorf("tools_dir (TOOLHOST_TOOLS_DIR) is required")
	}
	if cfg.LogPath == "" {
		return fmt.Errorf("log_path (TOOLHOST_LOG_PATH) is required")
	}
	if cfg.ListTimeout <= 0 {
		return fmt.Errorf("list_timeout (TOOLHOST_LIST_TIMEOUT) must be positive")
	}
	if cfg.CallTimeout <= 0 {
		return fmt.Errorf("call_timeout (TOOLHOST_CALL_TIMEOUT) must be positive")
	}
	if cfg.DrainWindow <= 0 {
		return fmt.Errorf("drain_window (TOOLHOST_DRAIN_WINDOW) must be positive")
	}
	if cfg.PollInterval <= 0 {
		return fmt.Errorf("poll_interval (TOOLHOST_POLL_INTERVAL) must be positive")
	}
	if cfg.PollInterval > cfg.DrainWindow {
		return fmt.Errorf("poll_interval must not exceed drain_window")
	}
	if cfg.ServerName == "" {
		return fmt.Errorf("server_name (TOOLHOST_SERVER_NAME) is required")
	}
	if cfg.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(cfg.MetricsAddr); err != nil {
			return fmt.Errorf("invalid metrics_addr (TOOLHOST_METRICS_ADDR) %q: %w", cfg.MetricsAddr, err)
		}
	}

	return nil
}
