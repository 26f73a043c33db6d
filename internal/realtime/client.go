package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/erp-sync/internal/config"
	"github.com/rickgao/erp-sync/internal/connection"
	"github.com/rickgao/erp-sync/internal/model"
	"github.com/rickgao/erp-sync/internal/registry"
)

// Stats combines connection and registry statistics.
type Stats struct {
	ClientID   string
	Connection connection.ManagerStats
	Registry   registry.Stats
}

// Client is the process-wide sync client.
type Client struct {
	id       string
	logger   *slog.Logger
	registry *registry.Registry
	manager  connection.Manager
}

// New creates a Client. No connection is made until Connect or EnsureConnected.
// An empty cfg.ClientID is replaced by a random UUID.
func New(cfg connection.ManagerConfig, logger *slog.Logger, opts ...connection.Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClientID == "" {
		cfg.ClientID = uuid.NewString()
	}
	logger = logger.With("client_id", cfg.ClientID)

	reg := registry.New(logger)
	return &Client{
		id:       cfg.ClientID,
		logger:   logger.With("component", "realtime"),
		registry: reg,
		manager:  connection.NewManager(cfg, reg, logger, opts...),
	}
}

// ManagerConfig maps the sync sections of a loaded config onto a
// ManagerConfig. The client id is left empty so each process gets its own.
func ManagerConfig(cfg *config.Config) connection.ManagerConfig {
	return connection.ManagerConfig{
		BackendURL:           cfg.Backend.BaseURL,
		PushPath:             cfg.Backend.PushPath,
		Token:                cfg.Backend.Token,
		HeartbeatInterval:    cfg.Sync.HeartbeatInterval,
		ReconnectDelay:       cfg.Sync.ReconnectDelay,
		MaxReconnectAttempts: cfg.Sync.MaxReconnectAttempts,
		HandshakeTimeout:     cfg.Sync.HandshakeTimeout,
		WriteTimeout:         cfg.Sync.WriteTimeout,
		MessageBufferSize:    cfg.Sync.MessageBuffer,
	}
}

// ID returns the client instance id sent on the handshake.
func (c *Client) ID() string {
	return c.id
}

// Connect starts a connection attempt unless one is open or in flight.
func (c *Client) Connect() {
	c.manager.Connect()
}

// Disconnect closes the shared connection and cancels pending reconnects.
// Subscriptions are kept and resume receiving after the next Connect.
func (c *Client) Disconnect() {
	c.manager.Disconnect()
}

// EnsureConnected eagerly establishes the shared connection. It is meant to
// be called once at startup and never disconnects on its own.
func (c *Client) EnsureConnected() {
	c.manager.Connect()
}

// Subscribe registers handler for frames of one entity. The wildcard name is
// reserved; use SubscribeAll instead.
func (c *Client) Subscribe(entity string, handler registry.Handler) (registry.Unsubscribe, error) {
	return c.registry.Subscribe(model.Entity(entity), handler)
}

// SubscribeAll registers handler for every data_update frame.
func (c *Client) SubscribeAll(handler registry.Handler) (registry.Unsubscribe, error) {
	return c.registry.Subscribe(model.All, handler)
}

// IsConnected reports whether the shared connection is open.
func (c *Client) IsConnected() bool {
	return c.manager.IsConnected()
}

// State returns the shared connection state.
func (c *Client) State() connection.State {
	return c.manager.State()
}

// Stats returns current statistics.
func (c *Client) Stats() Stats {
	return Stats{
		ClientID:   c.id,
		Connection: c.manager.Stats(),
		Registry:   c.registry.Stats(),
	}
}

// Provider lazily builds one Client and hands the same instance to every
// caller.
type Provider struct {
	cfg    connection.ManagerConfig
	logger *slog.Logger
	opts   []connection.Option

	once   sync.Once
	client *Client
}

// NewProvider creates a Provider. The Client is built on first use.
func NewProvider(cfg connection.ManagerConfig, logger *slog.Logger, opts ...connection.Option) *Provider {
	return &Provider{cfg: cfg, logger: logger, opts: opts}
}

// Client returns the shared Client.
func (p *Provider) Client() *Client {
	p.once.Do(func() {
		p.client = New(p.cfg, p.logger, p.opts...)
	})
	return p.client
}
