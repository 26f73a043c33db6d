package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	yaml := `
instance:
  id: erp-web-1
backend:
  base_url: https://erp.example.com/api
sync:
  heartbeat_interval: 15s
  entities: [project, invoice, "*"]
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "erp-web-1", cfg.Instance.ID)
	assert.Equal(t, "https://erp.example.com/api", cfg.Backend.BaseURL)
	assert.Equal(t, 15*time.Second, cfg.Sync.HeartbeatInterval)
	assert.Equal(t, []string{"project", "invoice", "*"}, cfg.Sync.Entities)
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_SYNC_TOKEN", "secret123")

	yaml := `
instance:
  id: erp-web-1
backend:
  base_url: http://localhost:8000/api
  token: ${TEST_SYNC_TOKEN}
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "secret123", cfg.Backend.Token)
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
instance:
  id: erp-web-1
backend:
  base_url: http://localhost:8000/api
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultPushPath, cfg.Backend.PushPath)
	assert.Equal(t, DefaultHeartbeatInterval, cfg.Sync.HeartbeatInterval)
	assert.Equal(t, DefaultReconnectDelay, cfg.Sync.ReconnectDelay)
	assert.Equal(t, DefaultMaxReconnectAttempts, cfg.Sync.MaxReconnectAttempts)
	assert.Equal(t, DefaultMessageBuffer, cfg.Sync.MessageBuffer)
	assert.Equal(t, DefaultLogFormat, cfg.Logging.Format)
	assert.Equal(t, DefaultDBPort, cfg.Audit.Database.Port)
	assert.Equal(t, DefaultHealthPort, cfg.Health.Port)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "read config file")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Instance: InstanceConfig{ID: "test"},
			Backend:  BackendConfig{BaseURL: "https://erp.example.com/api"},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "missing instance id",
			mutate:  func(c *Config) { c.Instance.ID = "" },
			wantErr: "instance.id is required",
		},
		{
			name:    "missing base url",
			mutate:  func(c *Config) { c.Backend.BaseURL = "" },
			wantErr: "backend.base_url is required",
		},
		{
			name:    "unsupported scheme",
			mutate:  func(c *Config) { c.Backend.BaseURL = "ftp://erp.example.com" },
			wantErr: `backend.base_url scheme must be http or https, got "ftp"`,
		},
		{
			name:    "websocket scheme",
			mutate:  func(c *Config) { c.Backend.BaseURL = "wss://erp.example.com/api" },
			wantErr: `backend.base_url scheme must be http or https, got "wss"`,
		},
		{
			name:    "uppercase scheme",
			mutate:  func(c *Config) { c.Backend.BaseURL = "HTTPS://erp.example.com/api" },
			wantErr: "",
		},
		{
			name:    "relative push path",
			mutate:  func(c *Config) { c.Backend.PushPath = "ws/sync" },
			wantErr: `backend.push_path must start with /, got "ws/sync"`,
		},
		{
			name:    "negative attempts",
			mutate:  func(c *Config) { c.Sync.MaxReconnectAttempts = -1 },
			wantErr: "sync.max_reconnect_attempts must be >= 0",
		},
		{
			name:    "blank entity",
			mutate:  func(c *Config) { c.Sync.Entities = []string{"project", " "} },
			wantErr: "sync.entities must not contain empty keys",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: `logging.format must be text or json, got "xml"`,
		},
		{
			name:    "audit enabled without database",
			mutate:  func(c *Config) { c.Audit.Enabled = true },
			wantErr: "audit.database.host is required",
		},
		{
			name: "audit min_conns exceeds max_conns",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.Database = DBConfig{Host: "localhost", Name: "erp", User: "sync", Password: "pw", MaxConns: 2, MinConns: 5}
			},
			wantErr: "audit.database.min_conns (5) cannot exceed max_conns (2)",
		},
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantErr, err.Error())
		})
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
