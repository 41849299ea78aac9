// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package recovery

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestClient_AgainstServer(t *testing.T) {
	_, mb, ts := newTestServer(t)
	c := NewClient(ts.URL+"/", nil)
	ctx := context.Background()

	h, err := c.Health(ctx)
	if err != nil || h.Version != "1.2.3" {
		t.Fatalf("Health: %+v %v", h, err)
	}

	id, err := c.Identity(ctx)
	if err != nil || id.BootCount != 2 || id.PairedAddress != "AA:BB:CC:DD:EE:FF" {
		t.Fatalf("Identity: %+v %v", id, err)
	}

	want := time.Date(2026, time.January, 2, 3, 4, 5, 0, time.UTC)
	got, err := c.SyncClock(ctx, want)
	if err != nil || !got.Equal(want) {
		t.Fatalf("SyncClock: %v %v", got, err)
	}
	if v, ok := mb.ClockSync.Take(); !ok || !v.Equal(want) {
		t.Errorf("Expected clock %v in mailbox, got %v ok=%v", want, v, ok)
	}

	got, err = c.SyncClock(ctx, time.Time{})
	if err != nil || !got.Equal(fixedNow) {
		t.Errorf("SyncClock with server time: %v %v", got, err)
	}

	if err := c.Restart(ctx); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if _, ok := mb.Restart.Take(); !ok {
		t.Error("Expected restart in mailbox")
	}
}

func TestClient_UnexpectedStatus(t *testing.T) {
	s := NewServer("127.0.0.1:0", "1.2.3", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	err := NewClient(ts.URL, nil).Restart(context.Background())
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Errorf("Expected 503 error, got %v", err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	ts := httptest.NewServer(nil)
	url := ts.URL
	ts.Close()

	if _, err := NewClient(url, nil).Health(context.Background()); err == nil {
		t.Error("Expected error for closed server")
	}
}
