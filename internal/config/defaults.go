package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultPushPath             = "/ws/sync"
	DefaultHeartbeatInterval    = 30 * time.Second
	DefaultReconnectDelay       = 3 * time.Second
	DefaultMaxReconnectAttempts = 5
	DefaultHandshakeTimeout     = 10 * time.Second
	DefaultWriteTimeout         = 5 * time.Second
	DefaultMessageBuffer        = 256
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "text"
	DefaultAuditBatchSize       = 100
	DefaultAuditFlushInterval   = 2 * time.Second
	DefaultAuditBufferSize      = 1000
	DefaultDBPort               = 5432
	DefaultDBSSLMode            = "prefer"
	DefaultMaxConns             = 4
	DefaultMinConns             = 1
	DefaultHealthPort           = 8081
)

func (c *Config) applyDefaults() {
	if c.Backend.PushPath == "" {
		c.Backend.PushPath = DefaultPushPath
	}

	if c.Sync.HeartbeatInterval == 0 {
		c.Sync.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if c.Sync.ReconnectDelay == 0 {
		c.Sync.ReconnectDelay = DefaultReconnectDelay
	}
	if c.Sync.MaxReconnectAttempts == 0 {
		c.Sync.MaxReconnectAttempts = DefaultMaxReconnectAttempts
	}
	if c.Sync.HandshakeTimeout == 0 {
		c.Sync.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Sync.WriteTimeout == 0 {
		c.Sync.WriteTimeout = DefaultWriteTimeout
	}
	if c.Sync.MessageBuffer == 0 {
		c.Sync.MessageBuffer = DefaultMessageBuffer
	}

	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}

	if c.Audit.BatchSize == 0 {
		c.Audit.BatchSize = DefaultAuditBatchSize
	}
	if c.Audit.FlushInterval == 0 {
		c.Audit.FlushInterval = DefaultAuditFlushInterval
	}
	if c.Audit.BufferSize == 0 {
		c.Audit.BufferSize = DefaultAuditBufferSize
	}
	applyDBDefaults(&c.Audit.Database)

	if c.Health.Port == 0 {
		c.Health.Port = DefaultHealthPort
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
