// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Thermoquad/backpack/pkg/identity"
)

// airHeaderSize is the [src(6)][dst(6)] prefix of a simulated air message
const airHeaderSize = 2 * identity.AddressSize

func encodeAirFrame(src, dst identity.Address, data []byte) []byte {
	msg := make([]byte, 0, airHeaderSize+len(data))
	msg = append(msg, src[:]...)
	msg = append(msg, dst[:]...)
	return append(msg, data...)
}

func decodeAirFrame(msg []byte) (src, dst identity.Address, data []byte, ok bool) {
	if len(msg) < airHeaderSize {
		return src, dst, nil, false
	}
	copy(src[:], msg[:identity.AddressSize])
	copy(dst[:], msg[identity.AddressSize:airHeaderSize])
	return src, dst, msg[airHeaderSize:], true
}

// MonitorHandler receives every frame on the air, whatever its destination
type MonitorHandler func(src, dst identity.Address, data []byte)

// WebSocketDriver is a Driver on a simulated air served by a Hub.
// Every frame on the air reaches every client; the driver keeps those sent
// to its own address or to the broadcast address.
type WebSocketDriver struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu      sync.Mutex
	self    identity.Address
	up      bool
	started bool
	handler ReceiveHandler
	monitor MonitorHandler

	done      chan struct{}
	closeOnce sync.Once
}

// NewWebSocketDriver wraps an established connection to a Hub
func NewWebSocketDriver(conn *websocket.Conn) *WebSocketDriver {
	return &WebSocketDriver{
		conn: conn,
		done: make(chan struct{}),
	}
}

// DialWebSocket connects to a Hub with optional HTTP Basic auth
func DialWebSocket(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (*WebSocketDriver, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return NewWebSocketDriver(conn), nil
}

// Init sets the local address and starts the read loop
func (w *WebSocketDriver) Init(self identity.Address) error {
	select {
	case <-w.done:
		return ErrClosed
	default:
	}

	w.mu.Lock()
	w.self = self
	w.up = true
	start := !w.started
	w.started = true
	w.mu.Unlock()

	if start {
		go w.readLoop()
	}
	return nil
}

// AddPeer is a no-op; the simulated air needs no peer table
func (w *WebSocketDriver) AddPeer(identity.Address) error {
	return nil
}

// Send writes one frame to the hub
func (w *WebSocketDriver) Send(dst identity.Address, data []byte) error {
	w.mu.Lock()
	self, up := w.self, w.up
	w.mu.Unlock()
	if !up {
		return ErrNotInitialized
	}
	if len(data) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, encodeAirFrame(self, dst, data)); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

// SetReceiveHandler registers the inbound callback
func (w *WebSocketDriver) SetReceiveHandler(h ReceiveHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = h
}

// SetMonitor registers a callback that sees all traffic, for sniffing
func (w *WebSocketDriver) SetMonitor(h MonitorHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.monitor = h
}

// Close closes the connection and stops the read loop
func (w *WebSocketDriver) Close() error {
	var err error
	w.closeOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		w.up = false
		w.mu.Unlock()
		err = w.conn.Close()
	})
	return err
}

// Done is closed when the driver is closed or the connection fails
func (w *WebSocketDriver) Done() <-chan struct{} {
	return w.done
}

func (w *WebSocketDriver) readLoop() {
	defer w.Close()

	for {
		messageType, msg, err := w.conn.ReadMessage()
		if err != nil {
			return
		}
		// Only binary messages carry air frames
		if messageType != websocket.BinaryMessage {
			continue
		}

		src, dst, data, ok := decodeAirFrame(msg)
		if !ok {
			continue
		}

		w.mu.Lock()
		self, h, mon := w.self, w.handler, w.monitor
		w.mu.Unlock()

		if mon != nil {
			mon(src, dst, data)
		}
		if h != nil && (dst == self || dst == identity.Broadcast) {
			h(src, data)
		}
	}
}
