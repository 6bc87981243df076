package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAuthorityURL = "https://auth.example.com/verify"

// TestLoadFrom tests configuration loading with various scenarios
func TestLoadFrom(t *testing.T) {
	tests := []struct {
		name        string
		env         map[string]string
		fileContent string
		wantErr     bool
		validateCfg func(*testing.T, *Config)
	}{
		{
			name: "defaults with authority url",
			env:  map[string]string{"MEOW_GUARD_AUTHORITY_URL": testAuthorityURL},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 8080, cfg.Server.Port)
				assert.Equal(t, testAuthorityURL, cfg.Guard.AuthorityURL)
				assert.Equal(t, 5*time.Minute, cfg.Guard.CheckInterval)
				assert.Equal(t, 5, cfg.Guard.MaxMismatchCount)
				assert.False(t, cfg.Guard.ResetOnCleanTick)
				assert.Equal(t, []string{"https://api.ip.sb/ip", "https://4.ipw.cn"}, cfg.Guard.ProbeServices)
				assert.Equal(t, 5*time.Second, cfg.Guard.ConnectTimeout)
				assert.Equal(t, 5*time.Second, cfg.Guard.ReadTimeout)
				assert.Equal(t, "info", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format)
				assert.Equal(t, 8080, cfg.HostPort())
			},
		},
		{
			name:    "missing authority url",
			wantErr: true,
		},
		{
			name: "environment overrides",
			env: map[string]string{
				"MEOW_GUARD_AUTHORITY_URL":        testAuthorityURL,
				"MEOW_SERVER_PORT":                "25565",
				"MEOW_GUARD_CHECK_INTERVAL":       "30s",
				"MEOW_GUARD_MAX_MISMATCH_COUNT":   "3",
				"MEOW_GUARD_RESET_ON_CLEAN_TICK":  "true",
				"MEOW_GUARD_PROBE_SERVICES":       "https://probe-a.example.com,https://probe-b.example.com",
				"MEOW_GUARD_REPORTED_PORT":        "25566",
				"MEOW_LOGGING_LEVEL":              "DEBUG",
				"MEOW_LOGGING_FORMAT":             "text",
			},
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 25565, cfg.Server.Port)
				assert.Equal(t, 30*time.Second, cfg.Guard.CheckInterval)
				assert.Equal(t, 3, cfg.Guard.MaxMismatchCount)
				assert.True(t, cfg.Guard.ResetOnCleanTick)
				assert.Equal(t, []string{"https://probe-a.example.com", "https://probe-b.example.com"}, cfg.Guard.ProbeServices)
				assert.Equal(t, 25566, cfg.HostPort())
				assert.Equal(t, "debug", cfg.Logging.Level)
				assert.Equal(t, "json", cfg.Logging.Format) // always forced to json
			},
		},
		{
			name: "file values apply below env",
			env: map[string]string{
				"MEOW_GUARD_MAX_MISMATCH_COUNT": "7",
			},
			fileContent: `
server:
  port: 9000
guard:
  authority_url: https://file.example.com/auth/
  check_interval: 1m
  max_mismatch_count: 2
`,
			validateCfg: func(t *testing.T, cfg *Config) {
				assert.Equal(t, 9000, cfg.Server.Port)
				assert.Equal(t, "https://file.example.com/auth/", cfg.Guard.AuthorityURL)
				assert.Equal(t, time.Minute, cfg.Guard.CheckInterval)
				assert.Equal(t, 7, cfg.Guard.MaxMismatchCount)
				assert.Len(t, cfg.Guard.ProbeServices, 2)
			},
		},
		{
			name: "invalid port number",
			env: map[string]string{
				"MEOW_GUARD_AUTHORITY_URL": testAuthorityURL,
				"MEOW_SERVER_PORT":         "99999",
			},
			wantErr: true,
		},
		{
			name: "zero mismatch threshold",
			env: map[string]string{
				"MEOW_GUARD_AUTHORITY_URL":      testAuthorityURL,
				"MEOW_GUARD_MAX_MISMATCH_COUNT": "0",
			},
			wantErr: true,
		},
		{
			name: "malformed probe service",
			env: map[string]string{
				"MEOW_GUARD_AUTHORITY_URL":  testAuthorityURL,
				"MEOW_GUARD_PROBE_SERVICES": "not a url",
			},
			wantErr: true,
		},
		{
			name: "timeout below minimum",
			env: map[string]string{
				"MEOW_GUARD_AUTHORITY_URL":   testAuthorityURL,
				"MEOW_GUARD_CONNECT_TIMEOUT": "1ms",
			},
			wantErr: true,
		},
		{
			name: "unparsable duration",
			env: map[string]string{
				"MEOW_GUARD_AUTHORITY_URL":  testAuthorityURL,
				"MEOW_GUARD_CHECK_INTERVAL": "soon",
			},
			wantErr: true,
		},
		{
			name: "invalid pinned key",
			env: map[string]string{
				"MEOW_GUARD_AUTHORITY_URL": testAuthorityURL,
				"MEOW_GUARD_PINNED_KEYS":   "abcd",
			},
			wantErr: true,
		},
		{
			name:        "broken yaml file",
			fileContent: "guard: [unterminated",
			wantErr:     true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			path := ""
			if tt.fileContent != "" {
				path = filepath.Join(t.TempDir(), "config.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.fileContent), 0o600))
			}

			cfg, err := LoadFrom(path)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, cfg)
				return
			}

			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.validateCfg != nil {
				tt.validateCfg(t, cfg)
			}
		})
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	t.Setenv("MEOW_GUARD_AUTHORITY_URL", testAuthorityURL)

	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Empty(t, cfg.Guard.AuthorityURL)
	assert.Error(t, cfg.Validate(), "default config has no authority and must not validate")

	cfg.Guard.AuthorityURL = testAuthorityURL
	assert.NoError(t, cfg.Validate())
}

func TestDefaultProbeServicesIsACopy(t *testing.T) {
	a := DefaultProbeServices()
	a[0] = "https://mutated.example.com"

	assert.Equal(t, ProbeServiceInternational, DefaultProbeServices()[0])
}
