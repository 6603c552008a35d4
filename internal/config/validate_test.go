package config

import (
	"strings"
	"testing"
	"time"
)

// validConfig returns a valid configuration for testing. Tests can
// override specific fields as needed.
func validConfig() *Config {
	return &Config{
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

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		config      *Config
		wantErr     bool
		errContains string
	}{
		{
			name:    "valid config with all required fields",
			config:  validConfig(),
			wantErr: false,
		},
		{
			name: "empty ToolsDir",
			config: func() *Config {
				c := validConfig()
				c.ToolsDir = ""
				return c
			}(),
			wantErr:     true,
			errContains: "TOOLS_DIR",
		},
		{
			name: "empty LogPath",
			config: func() *Config {
				c := validConfig()
				c.LogPath = ""
				return c
			}(),
			wantErr:     true,
			errContains: "LOG_PATH",
		},
		{
			name: "zero ListTimeout is invalid",
			config: func() *Config {
				c := validConfig()
				c.ListTimeout = 0
				return c
			}(),
			wantErr:     true,
			errContains: "LIST_TIMEOUT",
		},
		{
			name: "negative ListTimeout is invalid",
			config: func() *Config {
				c := validConfig()
				c.ListTimeout = -1 * time.Second
				return c
			}(),
			wantErr:     true,
			errContains: "LIST_TIMEOUT",
		},
		{
			name: "zero CallTimeout is invalid",
			config: func() *Config {
				c := validConfig()
				c.CallTimeout = 0
				return c
			}(),
			wantErr:     true,
			errContains: "CALL_TIMEOUT",
		},
		{
			name: "zero DrainWindow is invalid",
			config: func() *Config {
				c := validConfig()
				c.DrainWindow = 0
				return c
			}(),
			wantErr:     true,
			errContains: "DRAIN_WINDOW",
		},
		{
			name: "zero PollInterval is invalid",
			config: func() *Config {
				c := validConfig()
				c.PollInterval = 0
				return c
			}(),
			wantErr:     true,
			errContains: "POLL_INTERVAL",
		},
		{
			name: "PollInterval greater than DrainWindow is invalid",
			config: func() *Config {
				c := validConfig()
				c.PollInterval = time.Second
				c.DrainWindow = 10 * time.Millisecond
				return c
			}(),
			wantErr:     true,
			errContains: "poll_interval",
		},
		{
			name: "empty ServerName is invalid",
			config: func() *Config {
				c := validConfig()
				c.ServerName = ""
				return c
			}(),
			wantErr:     true,
			errContains: "SERVER_NAME",
		},
		{
			name: "valid MetricsAddr",
			config: func() *Config {
				c := validConfig()
				c.MetricsAddr = "127.0.0.1:9090"
				return c
			}(),
			wantErr: false,
		},
		{
			name: "invalid MetricsAddr",
			config: func() *Config {
				c := validConfig()
				c.MetricsAddr = "not-a-host-port"
				return c
			}(),
			wantErr:     true,
			errContains: "METRICS_ADDR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := Validate(tt.config)

			if tt.wantErr {
				if err == nil {
					t.Fatal("Validate() error = nil, want error")
				}
				if tt.errContains != "" && !strings.Contains(strings.ToUpper(err.Error()), strings.ToUpper(tt.errContains)) {
					t.Errorf("Validate() error = %q, want to contain %q", err.Error(), tt.errContains)
				}
				return
			}

			if err != nil {
				t.Errorf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestValidate_NilConfig(t *testing.T) {
	t.Parallel()

	err := Validate(nil)
	if err == nil {
		t.Error("Validate(nil) should return error")
	}
}
