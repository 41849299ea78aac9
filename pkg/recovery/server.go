// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package recovery is the network endpoint the backpack exposes when it
// boots into recovery mode instead of running the radio protocol.
//
// Requests that change device state are posted to the control loop's
// mailbox; the server never touches the identity store.
package recovery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Thermoquad/backpack/pkg/dispatch"
	"github.com/Thermoquad/backpack/pkg/identity"
)

// ErrAlreadyStarted is returned by a second Start
var ErrAlreadyStarted = errors.New("recovery server already started")

// HealthStatus is the /health response
type HealthStatus struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// IdentityStatus is the /identity response
type IdentityStatus struct {
	BootCount       uint8  `json:"boot_count"`
	PairedAddress   string `json:"paired_address"`
	StartInRecovery bool   `json:"start_in_recovery"`
}

// ClockRequest is the optional /clock request body
type ClockRequest struct {
	Time time.Time `json:"time"`
}

// Server serves the recovery endpoints over HTTP
type Server struct {
	addr    string
	version string
	logger  *slog.Logger
	now     func() time.Time

	mu       sync.Mutex
	mailbox  *dispatch.Mailbox
	record   identity.Record
	started  time.Time
	server   *http.Server
	listener net.Listener
}

// NewServer creates a server that listens on addr when started
func NewServer(addr, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{addr: addr, version: version, logger: logger, now: time.Now}
}

// Handler returns the endpoint mux
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /identity", s.handleIdentity)
	mux.HandleFunc("POST /clock", s.handleClock)
	mux.HandleFunc("POST /restart", s.handleRestart)
	return mux
}

// Bind attaches the mailbox and the identity snapshot without listening
func (s *Server) Bind(mailbox *dispatch.Mailbox, record identity.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mailbox = mailbox
	s.record = record
	s.started = s.now()
}

// Start binds the mailbox and starts serving in the background
func (s *Server) Start(mailbox *dispatch.Mailbox, record identity.Record) error {
	s.mu.Lock()
	if s.server != nil {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.mu.Unlock()

	s.Bind(mailbox, record)

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("recovery listen %s: %w", s.addr, err)
	}

	server := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.mu.Lock()
	s.server = server
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("recovery server started",
		"addr", ln.Addr().String(),
		"endpoints", []string{"/health", "/identity", "/clock", "/restart"},
	)

	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("recovery server failed", "error", err)
		}
	}()

	return nil
}

// Addr returns the listening address, or the configured one before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down
func (s *Server) Stop() error {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()

	if server == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, HealthStatus{
		Status:        "recovery",
		Version:       s.version,
		UptimeSeconds: int64(s.now().Sub(started).Seconds()),
	})
}

func (s *Server) handleIdentity(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	r := s.record
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, IdentityStatus{
		BootCount:       r.BootCount,
		PairedAddress:   r.PairedAddress.String(),
		StartInRecovery: r.StartInRecovery,
	})
}

// handleClock syncs the receiver clock. An empty body uses the server's
// own time.
func (s *Server) handleClock(w http.ResponseWriter, r *http.Request) {
	mailbox := s.boundMailbox()
	if mailbox == nil {
		http.Error(w, "recovery not active", http.StatusServiceUnavailable)
		return
	}

	var req ClockRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 1024))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			http.Error(w, "invalid clock request", http.StatusBadRequest)
			return
		}
	}
	if req.Time.IsZero() {
		req.Time = s.now()
	}

	s.logger.Info("clock sync requested", "time", req.Time.Format(time.RFC3339))
	mailbox.ClockSync.Post(req.Time)
	writeJSON(w, http.StatusAccepted, req)
}

func (s *Server) handleRestart(w http.ResponseWriter, _ *http.Request) {
	mailbox := s.boundMailbox()
	if mailbox == nil {
		http.Error(w, "recovery not active", http.StatusServiceUnavailable)
		return
	}

	s.logger.Info("restart requested")
	mailbox.Restart.Post(struct{}{})
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

func (s *Server) boundMailbox() *dispatch.Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mailbox
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
