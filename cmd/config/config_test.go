package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	testCases := []struct {
		name    string
		env     map[string]string
		wantErr bool
		wantCfg *Config
	}{
		{
			name: "defaults (no env set)",
			env:  map[string]string{},
			wantCfg: &Config{
				Host:           "127.0.0.1",
				Port:           3001,
				RootDir:        ".",
				TerminalCols:   80,
				TerminalRows:   24,
				MaxReadBytes:   52428800,
				AllowedOrigins: []string{"*"},
				LogLevel:       "info",
				LogFormat:      "text",
			},
		},
		{
			name: "custom valid env",
			env: map[string]string{
				"HOST":            "0.0.0.0",
				"PORT":            "8080",
				"ROOT_DIR":        "/srv/project",
				"TERMINAL_SHELL":  "/bin/zsh",
				"TERMINAL_COLS":   "120",
				"TERMINAL_ROWS":   "40",
				"MAX_READ_BYTES":  "1024",
				"ALLOWED_ORIGINS": "localhost:*,127.0.0.1:*",
				"LOG_LEVEL":       "debug",
				"LOG_FORMAT":      "json",
			},
			wantCfg: &Config{
				Host:           "0.0.0.0",
				Port:           8080,
				RootDir:        "/srv/project",
				TerminalShell:  "/bin/zsh",
				TerminalCols:   120,
				TerminalRows:   40,
				MaxReadBytes:   1024,
				AllowedOrigins: []string{"localhost:*", "127.0.0.1:*"},
				LogLevel:       "debug",
				LogFormat:      "json",
			},
		},
		{
			name:    "port out of range",
			env:     map[string]string{"PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "port zero",
			env:     map[string]string{"PORT": "0"},
			wantErr: true,
		},
		{
			name:    "non-numeric port",
			env:     map[string]string{"PORT": "http"},
			wantErr: true,
		},
		{
			name:    "missing root dir (set to empty)",
			env:     map[string]string{"ROOT_DIR": ""},
			wantErr: true,
		},
		{
			name:    "zero terminal columns",
			env:     map[string]string{"TERMINAL_COLS": "0"},
			wantErr: true,
		},
		{
			name:    "terminal rows too large",
			env:     map[string]string{"TERMINAL_ROWS": "65536"},
			wantErr: true,
		},
		{
			name:    "negative max read bytes",
			env:     map[string]string{"MAX_READ_BYTES": "-1"},
			wantErr: true,
		},
		{
			name:    "unknown log level",
			env:     map[string]string{"LOG_LEVEL": "verbose"},
			wantErr: true,
		},
		{
			name:    "unknown log format",
			env:     map[string]string{"LOG_FORMAT": "xml"},
			wantErr: true,
		},
	}

	for idx := range testCases {
		tc := testCases[idx]
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()

			if tc.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.NotNil(t, cfg)
				require.Equal(t, tc.wantCfg, cfg)
			}
		})
	}
}

func TestAddr(t *testing.T) {
	require.Equal(t, "127.0.0.1:3001", (&Config{Host: "127.0.0.1", Port: 3001}).Addr())
	require.Equal(t, "[::1]:80", (&Config{Host: "::1", Port: 80}).Addr())
}
