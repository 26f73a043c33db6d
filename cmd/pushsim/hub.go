package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/erp-sync/internal/model"
)

// peer is one connected sync client.
type peer struct {
	conn *websocket.Conn
	id   string
	send chan []byte
}

func (p *peer) writePump() {
	defer p.conn.Close()
	for msg := range p.send {
		p.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := p.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

// hub accepts push connections, answers pings and broadcasts updates.
type hub struct {
	token    string
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	peers map[*peer]struct{}

	seq   atomic.Int64
	pings atomic.Int64
}

func newHub(token string, logger *slog.Logger) *hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &hub{
		token:  token,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		peers: make(map[*peer]struct{}),
	}
}

// ServeHTTP upgrades the request and serves one peer until it disconnects.
func (h *hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.token != "" && r.Header.Get("Authorization") != "Bearer "+h.token {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", "error", err)
		return
	}

	p := &peer{
		conn: conn,
		id:   r.Header.Get("X-Client-ID"),
		send: make(chan []byte, 64),
	}
	go p.writePump()

	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()

	h.logger.Info("client connected", "client_id", p.id, "user_agent", r.UserAgent())
	defer h.remove(p)

	pong, _ := json.Marshal(map[string]string{"type": string(model.KindPong)})
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		frame, err := model.DecodeFrame(data)
		if err != nil {
			h.logger.Debug("ignoring malformed client frame", "client_id", p.id, "error", err)
			continue
		}
		if frame.Kind == model.KindPing {
			h.pings.Add(1)
			h.enqueue(p, pong)
		}
	}
}

func (h *hub) remove(p *peer) {
	h.mu.Lock()
	if _, ok := h.peers[p]; ok {
		delete(h.peers, p)
		close(p.send)
	}
	h.mu.Unlock()

	h.logger.Info("client disconnected", "client_id", p.id)
}

// enqueue hands data to the peer's write pump, dropping slow peers.
func (h *hub) enqueue(p *peer, data []byte) {
	h.mu.RLock()
	_, ok := h.peers[p]
	if ok {
		select {
		case p.send <- data:
			h.mu.RUnlock()
			return
		default:
		}
	}
	h.mu.RUnlock()

	if ok {
		h.logger.Warn("client too slow, disconnecting", "client_id", p.id)
		h.remove(p)
	}
}

// publish broadcasts one data_update frame for entity.
func (h *hub) publish(entity string) error {
	data, err := json.Marshal(map[string]any{
		"type":     model.KindDataUpdate,
		"entity":   entity,
		"id":       uuid.NewString(),
		"sequence": h.seq.Add(1),
		"at":       time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	h.mu.RLock()
	peers := make([]*peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	for _, p := range peers {
		h.enqueue(p, data)
	}
	return nil
}

func (h *hub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}
