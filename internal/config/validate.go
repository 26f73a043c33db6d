package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Instance.ID == "" {
		return errors.New("instance.id is required")
	}

	if c.Backend.BaseURL == "" {
		return errors.New("backend.base_url is required")
	}
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Host == "" {
		return fmt.Errorf("backend.base_url is not a valid URL: %q", c.Backend.BaseURL)
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return fmt.Errorf("backend.base_url scheme must be http or https, got %q", u.Scheme)
	}
	if !strings.HasPrefix(c.Backend.PushPath, "/") {
		return fmt.Errorf("backend.push_path must start with /, got %q", c.Backend.PushPath)
	}

	if c.Sync.HeartbeatInterval <= 0 {
		return errors.New("sync.heartbeat_interval must be > 0")
	}
	if c.Sync.ReconnectDelay <= 0 {
		return errors.New("sync.reconnect_delay must be > 0")
	}
	if c.Sync.MaxReconnectAttempts < 0 {
		return errors.New("sync.max_reconnect_attempts must be >= 0")
	}
	if c.Sync.MessageBuffer < 1 {
		return errors.New("sync.message_buffer must be >= 1")
	}
	for _, e := range c.Sync.Entities {
		if strings.TrimSpace(e) == "" {
			return errors.New("sync.entities must not contain empty keys")
		}
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	if c.Audit.Enabled {
		if c.Audit.BatchSize < 1 {
			return errors.New("audit.batch_size must be >= 1")
		}
		if c.Audit.BufferSize < 1 {
			return errors.New("audit.buffer_size must be >= 1")
		}
		if err := c.Audit.Database.validate("audit.database"); err != nil {
			return err
		}
	}

	if c.Health.Port < 1 || c.Health.Port > 65535 {
		return fmt.Errorf("health.port must be between 1 and 65535, got %d", c.Health.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
