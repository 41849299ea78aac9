// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package recovery

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/backpack/pkg/dispatch"
	"github.com/Thermoquad/backpack/pkg/identity"
)

var fixedNow = time.Date(2025, time.March, 14, 15, 9, 26, 0, time.UTC)

func newTestServer(t *testing.T) (*Server, *dispatch.Mailbox, *httptest.Server) {
	t.Helper()
	s := NewServer("127.0.0.1:0", "1.2.3", slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return fixedNow }

	mb := &dispatch.Mailbox{}
	s.Bind(mb, identity.Record{
		BootCount:     2,
		PairedAddress: identity.Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
	})

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, mb, ts
}

func TestServer_Health(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var h HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "recovery" || h.Version != "1.2.3" {
		t.Errorf("Unexpected health %+v", h)
	}
}

func TestServer_Identity(t *testing.T) {
	_, _, ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/identity")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var id IdentityStatus
	if err := json.NewDecoder(resp.Body).Decode(&id); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if id.BootCount != 2 || id.PairedAddress != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Unexpected identity %+v", id)
	}
}

func TestServer_Clock(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected time.Time
	}{
		{"empty body uses server time", "", fixedNow},
		{"explicit time", `{"time":"2024-01-02T03:04:05Z"}`, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, mb, ts := newTestServer(t)

			resp, err := http.Post(ts.URL+"/clock", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("POST: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusAccepted {
				t.Fatalf("Expected 202, got %d", resp.StatusCode)
			}

			got, ok := mb.ClockSync.Take()
			if !ok || !got.Equal(tt.expected) {
				t.Errorf("Expected clock %v posted, got %v (ok=%v)", tt.expected, got, ok)
			}
		})
	}
}

func TestServer_ClockBadBody(t *testing.T) {
	_, mb, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/clock", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", resp.StatusCode)
	}
	if mb.ClockSync.Pending() {
		t.Error("Bad request should not post a clock sync")
	}
}

func TestServer_Restart(t *testing.T) {
	_, mb, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/restart", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if _, ok := mb.Restart.Take(); !ok {
		t.Error("Expected restart posted")
	}
}

func TestServer_UnboundRejects(t *testing.T) {
	s := NewServer("127.0.0.1:0", "", nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/restart", "", nil)
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", resp.StatusCode)
	}
}

func TestServer_StartStop(t *testing.T) {
	s := NewServer("127.0.0.1:0", "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err := s.Start(&dispatch.Mailbox{}, identity.Record{}); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(&dispatch.Mailbox{}, identity.Record{}); err != ErrAlreadyStarted {
		t.Errorf("Expected ErrAlreadyStarted, got %v", err)
	}

	resp, err := http.Get("http://" + s.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()

	if err := s.Stop(); err != nil {
		t.Errorf("Stop: %v", err)
	}
}
