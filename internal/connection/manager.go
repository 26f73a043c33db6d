package connection

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rickgao/erp-sync/internal/model"
	"github.com/rickgao/erp-sync/internal/version"
)

// Dispatcher receives decoded data_update frames in arrival order.
type Dispatcher interface {
	Dispatch(frame model.Frame)
}

// Manager owns the single shared push connection.
type Manager interface {
	// Connect starts a connection attempt unless one is open or in flight.
	// It never blocks on the network and never reports failure to the caller.
	Connect()

	// Disconnect closes the connection, cancels any pending reconnect and
	// stops the heartbeat. Safe to call when already disconnected.
	Disconnect()

	// State returns the current connection state.
	State() State

	// IsConnected reports whether the connection is open.
	IsConnected() bool

	// Stats returns current connection statistics.
	Stats() ManagerStats
}

// Option configures a Manager.
type Option func(*manager)

// WithClientFactory replaces the WebSocket client constructor.
func WithClientFactory(f ClientFactory) Option {
	return func(m *manager) {
		m.newClient = f
	}
}

// manager implements the Manager interface.
//
// Every connection attempt gets a new epoch. Goroutines started for an epoch
// (dial, pump, heartbeat, reconnect timer) check it before touching shared
// state, so a stale connection can never tear down its successor.
type manager struct {
	cfg        ManagerConfig
	dispatcher Dispatcher
	logger     *slog.Logger
	newClient  ClientFactory

	mu             sync.Mutex
	state          State
	epoch          uint64
	client         Client
	attempts       int
	dialCancel     context.CancelFunc
	heartbeatStop  chan struct{}
	reconnectTimer *time.Timer

	connects            atomic.Int64
	reconnectsScheduled atomic.Int64
	framesReceived      atomic.Int64
	pongsReceived       atomic.Int64
	updatesDispatched   atomic.Int64
	parseErrors         atomic.Int64
	unknownFrames       atomic.Int64
	heartbeatsSent      atomic.Int64
}

// NewManager creates a Connection Manager. No connection is made until Connect.
func NewManager(cfg ManagerConfig, dispatcher Dispatcher, logger *slog.Logger, opts ...Option) Manager {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultManagerConfig()
	if cfg.PushPath == "" {
		cfg.PushPath = defaults.PushPath
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaults.ReconnectDelay
	}
	if cfg.MaxReconnectAttempts < 0 {
		cfg.MaxReconnectAttempts = 0
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaults.HandshakeTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.MessageBufferSize < 1 {
		cfg.MessageBufferSize = defaults.MessageBufferSize
	}

	m := &manager{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger.With("component", "connection"),
		newClient:  NewClient,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Connect starts a connection attempt.
func (m *manager) Connect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectLocked()
}

// connectLocked is Connect with m.mu held.
func (m *manager) connectLocked() {
	if m.state != StateDisconnected {
		return
	}

	endpoint, err := Endpoint(m.cfg.BackendURL, m.cfg.PushPath)
	if err != nil {
		// Construction failures abandon this cycle without scheduling a retry.
		m.logger.Error("cannot derive push endpoint",
			"backend_url", m.cfg.BackendURL,
			"error", err,
		)
		return
	}

	m.stopReconnectLocked()
	m.epoch++
	epoch := m.epoch
	m.state = StateConnecting

	client := m.newClient(ClientConfig{
		URL:              endpoint,
		Token:            m.cfg.Token,
		ClientID:         m.cfg.ClientID,
		UserAgent:        version.UserAgent(),
		HandshakeTimeout: m.cfg.HandshakeTimeout,
		WriteTimeout:     m.cfg.WriteTimeout,
		BufferSize:       m.cfg.MessageBufferSize,
	}, m.logger)

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.HandshakeTimeout)
	m.dialCancel = cancel

	m.logger.Debug("connecting", "url", endpoint, "attempt", m.attempts)

	go m.dial(ctx, cancel, epoch, client)
}

// dial performs the handshake for one epoch.
func (m *manager) dial(ctx context.Context, cancel context.CancelFunc, epoch uint64, client Client) {
	err := client.Connect(ctx)
	cancel()

	m.mu.Lock()
	if epoch != m.epoch {
		// Disconnect (or a newer Connect) superseded this attempt.
		m.mu.Unlock()
		client.Close()
		return
	}
	m.dialCancel = nil

	if err != nil {
		m.logger.Warn("push connection failed", "error", err)
		client.Close()
		m.closedLocked()
		m.mu.Unlock()
		return
	}

	m.client = client
	m.state = StateOpen
	m.attempts = 0
	stop := make(chan struct{})
	m.heartbeatStop = stop
	m.mu.Unlock()

	m.connects.Add(1)
	m.logger.Info("push connection open")

	go m.heartbeatLoop(client, stop)
	go m.pump(epoch, client, stop)
}

// pump drains one connection's inbound frames in order and reacts to its
// terminating error.
func (m *manager) pump(epoch uint64, client Client, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return

		case msg := <-client.Messages():
			m.handleMessage(msg)

		case err := <-client.Errors():
			m.drain(client)
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				m.logger.Info("push connection closed", "reason", err)
			} else {
				m.logger.Warn("push transport error", "error", err)
			}
			m.handleClose(epoch)
			return
		}
	}
}

// drain delivers frames that were buffered before the connection failed.
func (m *manager) drain(client Client) {
	for {
		select {
		case msg := <-client.Messages():
			m.handleMessage(msg)
		default:
			return
		}
	}
}

// handleMessage decodes one inbound frame. It never panics on bad input.
func (m *manager) handleMessage(msg TimestampedMessage) {
	m.framesReceived.Add(1)

	frame, err := model.DecodeFrame(msg.Data)
	if err != nil {
		m.parseErrors.Add(1)
		m.logger.Warn("discarding malformed frame", "error", err, "bytes", len(msg.Data))
		return
	}
	frame.ReceivedAt = msg.ReceivedAt

	switch frame.Kind {
	case model.KindPong:
		m.pongsReceived.Add(1)

	case model.KindDataUpdate:
		m.updatesDispatched.Add(1)
		if m.dispatcher != nil {
			m.dispatcher.Dispatch(frame)
		}

	default:
		m.unknownFrames.Add(1)
		m.logger.Debug("ignoring frame", "type", frame.Kind)
	}
}

// heartbeatLoop sends a JSON ping on every tick until stop is closed.
func (m *manager) heartbeatLoop(client Client, stop <-chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	ping := model.EncodePing()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := client.Send(ping); err != nil {
				m.logger.Debug("failed to send ping", "error", err)
				continue
			}
			m.heartbeatsSent.Add(1)
		}
	}
}

// handleClose runs the close path for epoch if it is still current.
func (m *manager) handleClose(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch {
		return
	}
	m.closedLocked()
}

// closedLocked tears down the current connection and schedules a reconnect
// while attempts remain.
func (m *manager) closedLocked() {
	m.stopHeartbeatLocked()
	if m.client != nil {
		m.client.Close()
		m.client = nil
	}
	m.state = StateDisconnected

	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Warn("reconnect attempts exhausted, waiting for explicit connect",
			"attempts", m.attempts,
		)
		return
	}

	m.attempts++
	m.reconnectsScheduled.Add(1)

	epoch := m.epoch
	m.reconnectTimer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.reconnect(epoch)
	})

	m.logger.Info("scheduling reconnect",
		"attempt", m.attempts,
		"max_attempts", m.cfg.MaxReconnectAttempts,
		"delay", m.cfg.ReconnectDelay,
	)
}

// reconnect is the reconnect timer callback.
func (m *manager) reconnect(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if epoch != m.epoch {
		return
	}
	m.reconnectTimer = nil
	m.connectLocked()
}

// Disconnect closes the connection.
func (m *manager) Disconnect() {
	m.mu.Lock()
	m.epoch++
	m.stopReconnectLocked()
	if m.dialCancel != nil {
		m.dialCancel()
		m.dialCancel = nil
	}
	m.stopHeartbeatLocked()
	client := m.client
	m.client = nil
	prev := m.state
	m.state = StateDisconnected
	m.mu.Unlock()

	if client != nil {
		client.Close()
	}
	if prev != StateDisconnected {
		m.logger.Info("push connection closed by request", "previous_state", prev)
	}
}

func (m *manager) stopHeartbeatLocked() {
	if m.heartbeatStop != nil {
		close(m.heartbeatStop)
		m.heartbeatStop = nil
	}
}

func (m *manager) stopReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

// State returns the current connection state.
func (m *manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the connection is open.
func (m *manager) IsConnected() bool {
	return m.State() == StateOpen
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	m.mu.Lock()
	state := m.state
	attempts := m.attempts
	m.mu.Unlock()

	return ManagerStats{
		State:               state,
		Attempts:            attempts,
		Connects:            m.connects.Load(),
		ReconnectsScheduled: m.reconnectsScheduled.Load(),
		FramesReceived:      m.framesReceived.Load(),
		PongsReceived:       m.pongsReceived.Load(),
		UpdatesDispatched:   m.updatesDispatched.Load(),
		ParseErrors:         m.parseErrors.Load(),
		UnknownFrames:       m.unknownFrames.Load(),
		HeartbeatsSent:      m.heartbeatsSent.Load(),
	}
}
