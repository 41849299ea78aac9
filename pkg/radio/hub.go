// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
)

// hubSendBuffer is the per-client queue depth. A slow client loses frames
// instead of stalling the air.
const hubSendBuffer = 64

// Hub is a simulated radio air: every binary message a client sends is
// relayed to all other connected clients.
type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader
	username string
	password string

	mu      sync.Mutex
	clients map[*hubClient]struct{}

	relayed atomic.Uint64
	dropped atomic.Uint64
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewHub creates a hub. A non-empty username enables HTTP Basic auth.
func NewHub(username, password string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:   logger,
		username: username,
		password: password,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
	}
}

// Clients returns the number of connected clients
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Relayed returns the number of frames delivered to clients
func (h *Hub) Relayed() uint64 {
	return h.relayed.Load()
}

// Dropped returns the number of frames lost to full client queues
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) authorized(r *http.Request) bool {
	if h.username == "" {
		return true
	}
	user, pass, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(h.username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(h.password)) == 1
	return userOK && passOK
}

// ServeHTTP upgrades the request and joins the client to the air
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.authorized(r) {
		w.Header().Set("WWW-Authenticate", `Basic realm="backpack"`)
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &hubClient{conn: conn, send: make(chan []byte, hubSendBuffer)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("client joined", "remote", r.RemoteAddr, "clients", h.Clients())

	go h.writePump(c)
	h.readPump(c)

	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	close(c.send)
	h.logger.Info("client left", "remote", r.RemoteAddr, "clients", h.Clients())
}

func (h *Hub) readPump(c *hubClient) {
	for {
		messageType, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.BinaryMessage {
			continue
		}
		if _, _, _, ok := decodeAirFrame(msg); !ok {
			h.logger.Debug("dropped short air frame", "bytes", len(msg))
			continue
		}
		h.relay(c, msg)
	}
}

func (h *Hub) relay(from *hubClient, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if c == from {
			continue
		}
		select {
		case c.send <- msg:
			h.relayed.Add(1)
		default:
			h.dropped.Add(1)
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.BinaryMessage, msg); err != nil {
			return
		}
	}
}
