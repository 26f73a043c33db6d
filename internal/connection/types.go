package connection

import (
	"errors"
	"time"
)

// Errors
var (
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyClosed     = errors.New("already closed")
	ErrInvalidBackendURL = errors.New("invalid backend url")
)

// DefaultPushPath is appended to the backend host to form the push endpoint.
const DefaultPushPath = "/ws/sync"

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // Push endpoint (e.g., wss://erp.example.com/ws/sync)
	Token            string        // Bearer token for the Authorization header (empty = none)
	ClientID         string        // Sent as X-Client-ID so the backend can correlate sessions
	UserAgent        string        // Sent as User-Agent
	HandshakeTimeout time.Duration // Upgrade handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       256,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	BackendURL           string        // REST base URL the push endpoint is derived from
	PushPath             string        // Push endpoint path (default /ws/sync)
	Token                string        // Bearer token sent on the handshake
	ClientID             string        // Client instance id sent on the handshake
	HeartbeatInterval    time.Duration // Interval between outbound pings
	ReconnectDelay       time.Duration // Fixed delay before each reconnect
	MaxReconnectAttempts int           // Consecutive reconnects before giving up
	HandshakeTimeout     time.Duration
	WriteTimeout         time.Duration
	MessageBufferSize    int
}

// DefaultManagerConfig returns the defaults used by the ERP front end.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		PushPath:             DefaultPushPath,
		HeartbeatInterval:    30 * time.Second,
		ReconnectDelay:       3 * time.Second,
		MaxReconnectAttempts: 5,
		HandshakeTimeout:     10 * time.Second,
		WriteTimeout:         5 * time.Second,
		MessageBufferSize:    256,
	}
}

// State is the connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	State               State
	Attempts            int   // Consecutive reconnect attempts since the last successful open
	Connects            int64 // Successful opens
	ReconnectsScheduled int64
	FramesReceived      int64
	PongsReceived       int64
	UpdatesDispatched   int64
	ParseErrors         int64
	UnknownFrames       int64
	HeartbeatsSent      int64
}
