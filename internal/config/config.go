package config

import "time"

// Config is the root configuration for a sync client process.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Backend  BackendConfig  `yaml:"backend"`
	Sync     SyncConfig     `yaml:"sync"`
	Logging  LoggingConfig  `yaml:"logging"`
	Audit    AuditConfig    `yaml:"audit"`
	Health   HealthConfig   `yaml:"health"`
}

// InstanceConfig identifies this client.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// BackendConfig describes how to reach the ERP backend.
type BackendConfig struct {
	BaseURL  string `yaml:"base_url"`  // REST base, e.g. https://erp.example.com/api
	PushPath string `yaml:"push_path"` // Push endpoint path appended to the host
	Token    string `yaml:"token"`     // Bearer token sent on the handshake (optional)
}

// SyncConfig holds connection manager settings.
type SyncConfig struct {
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
	ReconnectDelay       time.Duration `yaml:"reconnect_delay"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	HandshakeTimeout     time.Duration `yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	MessageBuffer        int           `yaml:"message_buffer"`
	Entities             []string      `yaml:"entities"` // Entity keys watched by syncwatch ("*" for all)
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// AuditConfig holds the optional update audit sink settings.
type AuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
	Database      DBConfig      `yaml:"database"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// HealthConfig holds the health endpoint settings.
type HealthConfig struct {
	Port int `yaml:"port"`
}
