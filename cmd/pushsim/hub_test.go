package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/erp-sync/internal/connection"
	"github.com/rickgao/erp-sync/internal/model"
	"github.com/rickgao/erp-sync/internal/realtime"
)

func startHub(t *testing.T, token string) (*hub, *httptest.Server) {
	t.Helper()
	h := newHub(token, nil)
	mux := http.NewServeMux()
	mux.Handle(connection.DefaultPushPath, h)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return h, server
}

func TestHub_PublishReachesSubscribers(t *testing.T) {
	h, server := startHub(t, "secret")

	cfg := connection.DefaultManagerConfig()
	cfg.BackendURL = server.URL + "/api"
	cfg.Token = "secret"
	cfg.HeartbeatInterval = 20 * time.Millisecond
	client := realtime.New(cfg, nil)
	defer client.Disconnect()

	got := make(chan model.Frame, 4)
	_, err := client.Subscribe("project", func(f model.Frame) { got <- f })
	require.NoError(t, err)

	client.EnsureConnected()
	require.Eventually(t, func() bool { return h.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	require.Eventually(t, client.IsConnected, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, h.publish("invoice"))
	require.NoError(t, h.publish("project"))

	select {
	case f := <-got:
		assert.Equal(t, "project", f.Entity)
		assert.NotEmpty(t, f.ID())
		seq, ok := f.Field("sequence")
		require.True(t, ok)
		assert.Equal(t, float64(2), seq)
	case <-time.After(2 * time.Second):
		t.Fatal("update not delivered")
	}

	// Heartbeats are answered and discarded before the registry.
	require.Eventually(t, func() bool {
		return client.Stats().Connection.PongsReceived >= 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, h.pings.Load(), int64(1))
	assert.Empty(t, got)
}

func TestHub_RejectsBadToken(t *testing.T) {
	h, server := startHub(t, "secret")

	cfg := connection.DefaultManagerConfig()
	cfg.BackendURL = server.URL
	cfg.Token = "wrong"
	cfg.MaxReconnectAttempts = 0
	client := realtime.New(cfg, nil)
	defer client.Disconnect()

	client.Connect()
	require.Eventually(t, func() bool {
		return client.State() == connection.StateDisconnected
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, 0, h.count())
	assert.Equal(t, int64(0), client.Stats().Connection.Connects)

	resp, err := http.Get(server.URL + connection.DefaultPushPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHub_DisconnectRemovesPeer(t *testing.T) {
	h, server := startHub(t, "")

	cfg := connection.DefaultManagerConfig()
	cfg.BackendURL = server.URL
	client := realtime.New(cfg, nil)

	client.EnsureConnected()
	require.Eventually(t, func() bool { return h.count() == 1 }, 2*time.Second, 5*time.Millisecond)

	client.Disconnect()
	require.Eventually(t, func() bool { return h.count() == 0 }, 2*time.Second, 5*time.Millisecond)

	assert.NoError(t, h.publish("project"))
}

func TestSplitEntities(t *testing.T) {
	assert.Equal(t, []string{"project", "invoice"}, splitEntities(" project, ,invoice ,"))
	assert.Nil(t, splitEntities(""))
	assert.Equal(t, 1, len(splitEntities(strings.Repeat(" ", 3)+"x")))
}
