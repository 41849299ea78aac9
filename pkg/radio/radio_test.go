// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package radio

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/rand"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Thermoquad/backpack/pkg/identity"
	"github.com/Thermoquad/backpack/pkg/msp"
)

// ============================================================
// Test Helpers
// ============================================================

var (
	pairedAddr = identity.Address{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}.Unicast()
	otherAddr  = identity.Address{0x10, 0x20, 0x30, 0x40, 0x50, 0x60}
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGate struct {
	binding atomic.Bool
}

func (g *fakeGate) Binding() bool { return g.binding.Load() }

type received struct {
	src    identity.Address
	packet *msp.Packet
}

// collector records packets delivered by a Transport
type collector struct {
	mu      sync.Mutex
	packets []received
}

func (c *collector) handle(src identity.Address, p *msp.Packet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.packets = append(c.packets, received{src: src, packet: p})
}

func (c *collector) all() []received {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]received(nil), c.packets...)
}

func newTestTransport(t *testing.T) (*Transport, *MediumDriver, *fakeGate, *collector) {
	t.Helper()
	medium := NewMedium()
	driver := medium.NewDriver()
	gate := &fakeGate{}
	c := &collector{}
	tr := NewTransport(driver, gate, c.handle, discardLogger())
	tr.SetPeer(pairedAddr)
	if err := tr.Start(); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	return tr, driver, gate, c
}

// ============================================================
// Transport Receive Tests
// ============================================================

func TestTransport_DeliversFromPeer(t *testing.T) {
	tr, _, _, c := newTestTransport(t)

	tr.Receive(pairedAddr, msp.MustEncode(msp.NewChannelIndex(7)))

	got := c.all()
	if len(got) != 1 {
		t.Fatalf("Expected 1 packet, got %d", len(got))
	}
	if got[0].src != pairedAddr || got[0].packet.Function() != msp.FuncSetVTXConfig {
		t.Errorf("Unexpected delivery: %v from %s", got[0].packet, got[0].src)
	}
}

func TestTransport_FiltersUnpairedAddresses(t *testing.T) {
	tr, _, _, c := newTestTransport(t)
	rng := rand.New(rand.NewSource(1))
	frame := msp.MustEncode(msp.NewChannelIndex(3))

	var sent uint64
	for i := 0; i < 1000; i++ {
		var src identity.Address
		rng.Read(src[:])
		if src == pairedAddr {
			continue
		}
		tr.Receive(src, frame)
		sent++
	}

	if got := c.all(); len(got) != 0 {
		t.Fatalf("Expected no packets from unpaired addresses, got %d", len(got))
	}
	if snap := tr.Statistics().Snapshot(); snap.Filtered != sent {
		t.Errorf("Expected %d filtered frames, got %d", sent, snap.Filtered)
	}
}

func TestTransport_FilterKeepsDecoderClean(t *testing.T) {
	tr, _, _, c := newTestTransport(t)
	frame := msp.MustEncode(msp.NewChannelIndex(3))

	// Half a frame from a stranger must not corrupt the peer's next frame
	tr.Receive(otherAddr, frame[:4])
	tr.Receive(pairedAddr, frame)

	if got := c.all(); len(got) != 1 {
		t.Fatalf("Expected 1 packet, got %d", len(got))
	}
}

func TestTransport_BindingAcceptsAnySource(t *testing.T) {
	tr, _, gate, c := newTestTransport(t)
	gate.binding.Store(true)

	tr.Receive(otherAddr, msp.MustEncode(msp.NewBind(otherAddr)))

	got := c.all()
	if len(got) != 1 || got[0].src != otherAddr {
		t.Fatalf("Expected bind from %s while binding, got %v", otherAddr, got)
	}
}

func TestTransport_PacketSplitAcrossFrames(t *testing.T) {
	tr, _, _, c := newTestTransport(t)
	frame := msp.MustEncode(msp.NewRecordingState(true, 30))

	tr.Receive(pairedAddr, frame[:3])
	tr.Receive(pairedAddr, frame[3:7])
	if len(c.all()) != 0 {
		t.Fatal("Packet delivered before its last byte")
	}
	tr.Receive(pairedAddr, frame[7:])

	if got := c.all(); len(got) != 1 {
		t.Fatalf("Expected 1 packet, got %d", len(got))
	}
}

func TestTransport_CorruptFrameCounted(t *testing.T) {
	tr, _, _, c := newTestTransport(t)
	frame := msp.MustEncode(msp.NewChannelIndex(3))
	frame[len(frame)-2] ^= 0xFF

	tr.Receive(pairedAddr, frame)

	if len(c.all()) != 0 {
		t.Error("Corrupt frame should not be delivered")
	}
	if tr.Statistics().Snapshot().ChecksumErrors != 1 {
		t.Error("Expected one checksum error")
	}
}

func TestTransport_SetPeerClearsMulticastBit(t *testing.T) {
	tr := NewTransport(NewMedium().NewDriver(), nil, nil, discardLogger())
	tr.SetPeer(identity.Address{0x01, 2, 3, 4, 5, 6})
	if tr.Peer()[0] != 0x00 {
		t.Errorf("Expected unicast peer, got %s", tr.Peer())
	}
}

// ============================================================
// Transport Send / Start Tests
// ============================================================

func TestTransport_SendToPeer(t *testing.T) {
	tr, driver, _, _ := newTestTransport(t)

	if err := tr.SendToPeer(msp.NewStatusRequest()); err != nil {
		t.Fatalf("Send error: %v", err)
	}
	sent := driver.Sent()
	if len(sent) != 1 {
		t.Fatalf("Expected 1 frame, got %d", len(sent))
	}
	if string(sent[0]) != string(msp.MustEncode(msp.NewStatusRequest())) {
		t.Errorf("Unexpected frame % X", sent[0])
	}
}

func TestTransport_SendRefusedWhileBinding(t *testing.T) {
	tr, driver, gate, _ := newTestTransport(t)
	gate.binding.Store(true)

	err := tr.SendToPeer(msp.NewStatusRequest())
	if !errors.Is(err, ErrSendWhileBinding) {
		t.Errorf("Expected ErrSendWhileBinding, got %v", err)
	}
	if len(driver.Sent()) != 0 {
		t.Error("Nothing should reach the driver while binding")
	}
}

func TestTransport_FrameTooLarge(t *testing.T) {
	tr, driver, _, _ := newTestTransport(t)

	payload := make([]byte, MaxFrameSize-msp.FrameOverhead+1)
	err := tr.SendToPeer(msp.NewOSD(payload))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Expected ErrFrameTooLarge, got %v", err)
	}
	if len(driver.Sent()) != 0 {
		t.Error("Oversized frame should not reach the driver")
	}

	if err := tr.SendToPeer(msp.NewOSD(payload[1:])); err != nil {
		t.Errorf("Frame at the MTU should send, got %v", err)
	}
}

func TestTransport_StartInitFailure(t *testing.T) {
	driver := NewMedium().NewDriver()
	driver.InitErr = errors.New("no radio")

	tr := NewTransport(driver, nil, nil, discardLogger())
	if err := tr.Start(); !errors.Is(err, ErrRadioInit) {
		t.Errorf("Expected ErrRadioInit, got %v", err)
	}
}

func TestTransport_StartAddPeerFailureTolerated(t *testing.T) {
	driver := NewMedium().NewDriver()
	driver.AddPeerErr = errors.New("peer table full")

	tr := NewTransport(driver, nil, nil, discardLogger())
	tr.SetPeer(pairedAddr)
	if err := tr.Start(); err != nil {
		t.Errorf("AddPeer failure should be tolerated, got %v", err)
	}
	if driver.Address() != pairedAddr {
		t.Errorf("Driver should use the paired address, got %s", driver.Address())
	}
}

// ============================================================
// Medium Tests
// ============================================================

func TestMedium_EndToEnd(t *testing.T) {
	medium := NewMedium()

	rxCollector := &collector{}
	rx := NewTransport(medium.NewDriver(), nil, rxCollector.handle, discardLogger())
	rx.SetPeer(pairedAddr)
	if err := rx.Start(); err != nil {
		t.Fatalf("rx Start error: %v", err)
	}

	tx := NewTransport(medium.NewDriver(), nil, nil, discardLogger())
	tx.SetPeer(pairedAddr)
	if err := tx.Start(); err != nil {
		t.Fatalf("tx Start error: %v", err)
	}

	if err := tx.SendToPeer(msp.NewHeadTracking(true)); err != nil {
		t.Fatalf("Send error: %v", err)
	}

	got := rxCollector.all()
	if len(got) != 1 || got[0].packet.Function() != msp.FuncSetHeadTracking {
		t.Fatalf("Expected head tracking packet, got %v", got)
	}
}

func TestMedium_AddressedDelivery(t *testing.T) {
	medium := NewMedium()
	a := medium.NewDriver()
	b := medium.NewDriver()
	a.Init(pairedAddr)
	b.Init(otherAddr)

	var count atomic.Int32
	b.SetReceiveHandler(func(identity.Address, []byte) { count.Add(1) })

	a.Send(pairedAddr, []byte{1})
	a.Send(otherAddr, []byte{2})
	a.Send(identity.Broadcast, []byte{3})

	if count.Load() != 2 {
		t.Errorf("Expected 2 deliveries (addressed + broadcast), got %d", count.Load())
	}
}

func TestMedium_Drop(t *testing.T) {
	medium := NewMedium()
	medium.Drop = func(identity.Address, identity.Address, []byte) bool { return true }
	a := medium.NewDriver()
	b := medium.NewDriver()
	a.Init(pairedAddr)
	b.Init(pairedAddr)

	var count atomic.Int32
	b.SetReceiveHandler(func(identity.Address, []byte) { count.Add(1) })
	a.Send(pairedAddr, []byte{1})

	if count.Load() != 0 {
		t.Error("Dropped frame was delivered")
	}
}

func TestMediumDriver_SendBeforeInit(t *testing.T) {
	d := NewMedium().NewDriver()
	if err := d.Send(pairedAddr, []byte{1}); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Expected ErrNotInitialized, got %v", err)
	}
	d.Init(pairedAddr)
	d.Close()
	if err := d.Send(pairedAddr, []byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

// ============================================================
// WebSocket Hub Tests
// ============================================================

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("Timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_RelaysBetweenClients(t *testing.T) {
	hub := NewHub("", "", discardLogger())
	server := httptest.NewServer(hub)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx := context.Background()
	tx, err := DialWebSocket(ctx, wsURL, "", "", false)
	if err != nil {
		t.Fatalf("Dial tx: %v", err)
	}
	defer tx.Close()
	rx, err := DialWebSocket(ctx, wsURL, "", "", false)
	if err != nil {
		t.Fatalf("Dial rx: %v", err)
	}
	defer rx.Close()
	waitFor(t, "two hub clients", func() bool { return hub.Clients() == 2 })

	frames := make(chan []byte, 4)
	rx.SetReceiveHandler(func(src identity.Address, data []byte) {
		if src == pairedAddr {
			frames <- append([]byte(nil), data...)
		}
	})
	if err := rx.Init(pairedAddr); err != nil {
		t.Fatalf("rx Init: %v", err)
	}
	if err := tx.Init(pairedAddr); err != nil {
		t.Fatalf("tx Init: %v", err)
	}

	// Addressed elsewhere: filtered by rx
	if err := tx.Send(otherAddr, []byte{0x01}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := tx.Send(pairedAddr, []byte{0x02}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-frames:
		if len(data) != 1 || data[0] != 0x02 {
			t.Errorf("Expected frame 02, got % X", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for relayed frame")
	}
}

func TestWebSocketDriver_MonitorSeesAllTraffic(t *testing.T) {
	hub := NewHub("", "", discardLogger())
	server := httptest.NewServer(hub)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	ctx := context.Background()
	tx, err := DialWebSocket(ctx, wsURL, "", "", false)
	if err != nil {
		t.Fatalf("Dial tx: %v", err)
	}
	defer tx.Close()
	sniffer, err := DialWebSocket(ctx, wsURL, "", "", false)
	if err != nil {
		t.Fatalf("Dial sniffer: %v", err)
	}
	defer sniffer.Close()
	waitFor(t, "two hub clients", func() bool { return hub.Clients() == 2 })

	type seen struct{ src, dst identity.Address }
	frames := make(chan seen, 4)
	sniffer.SetMonitor(func(src, dst identity.Address, data []byte) {
		frames <- seen{src, dst}
	})
	if err := sniffer.Init(identity.Address{}); err != nil {
		t.Fatalf("sniffer Init: %v", err)
	}
	if err := tx.Init(pairedAddr); err != nil {
		t.Fatalf("tx Init: %v", err)
	}

	if err := tx.Send(otherAddr, []byte{0x01}); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case f := <-frames:
		if f.src != pairedAddr || f.dst != otherAddr {
			t.Errorf("Unexpected frame %s -> %s", f.src, f.dst)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Monitor did not see a frame addressed elsewhere")
	}
}

func TestHub_RequiresAuth(t *testing.T) {
	hub := NewHub("pilot", "secret", discardLogger())
	server := httptest.NewServer(hub)
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	if _, err := DialWebSocket(context.Background(), wsURL, "", "", false); err == nil {
		t.Error("Expected dial without credentials to fail")
	}

	d, err := DialWebSocket(context.Background(), wsURL, "pilot", "secret", false)
	if err != nil {
		t.Fatalf("Dial with credentials: %v", err)
	}
	d.Close()
}

func TestDialWebSocket_BadScheme(t *testing.T) {
	if _, err := DialWebSocket(context.Background(), "http://localhost:1", "", "", false); err == nil {
		t.Error("Expected unsupported scheme error")
	}
}

func TestAirFrame_RoundTrip(t *testing.T) {
	msg := encodeAirFrame(pairedAddr, otherAddr, []byte{9, 8})
	src, dst, data, ok := decodeAirFrame(msg)
	if !ok || src != pairedAddr || dst != otherAddr || string(data) != string([]byte{9, 8}) {
		t.Errorf("Round trip failed: %s %s % X %v", src, dst, data, ok)
	}
	if _, _, _, ok := decodeAirFrame(msg[:airHeaderSize-1]); ok {
		t.Error("Short message should not decode")
	}
}

// ============================================================
// Serial Bridge Tests
// ============================================================

func TestSerialDriver_Bridge(t *testing.T) {
	hostEnd, bridgeEnd := net.Pipe()
	defer bridgeEnd.Close()

	driver := NewSerialDriver(hostEnd, discardLogger())
	defer driver.Close()

	// Bridge side: decode everything the driver writes
	fromHost := make(chan *msp.Packet, 8)
	go func() {
		d := msp.NewDecoder()
		buf := make([]byte, 64)
		for {
			n, err := bridgeEnd.Read(buf)
			if err != nil {
				return
			}
			for _, b := range buf[:n] {
				if p := d.Feed(b); p != nil {
					fromHost <- p
				}
			}
		}
	}()

	frames := make(chan received, 4)
	driver.SetReceiveHandler(func(src identity.Address, data []byte) {
		frames <- received{src: src, packet: msp.NewOSD(data)}
	})

	if err := driver.Init(pairedAddr); err != nil {
		t.Fatalf("Init: %v", err)
	}

	select {
	case p := <-fromHost:
		if p.Function() != msp.FuncSetRadioAddress || identity.Address(p.Payload()) != pairedAddr {
			t.Errorf("Expected SET_RADIO_ADDRESS %s, got %v", pairedAddr, p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for address configuration")
	}

	if err := driver.Send(pairedAddr, []byte{0xCA, 0xFE}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case p := <-fromHost:
		peer, frame, ok := msp.ParseRadioFrame(p)
		if !ok || identity.Address(peer) != pairedAddr || string(frame) != "\xCA\xFE" {
			t.Errorf("Unexpected radio frame %v", p)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for radio frame")
	}

	// Bridge delivers an inbound frame
	inbound := msp.MustEncode(msp.NewRadioFrame(otherAddr, []byte{0x42}))
	go bridgeEnd.Write(inbound)

	select {
	case r := <-frames:
		if r.src != otherAddr || r.packet.Payload()[0] != 0x42 {
			t.Errorf("Unexpected inbound frame from %s: % X", r.src, r.packet.Payload())
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for inbound frame")
	}
}

func TestSerialDriver_FrameTooLarge(t *testing.T) {
	hostEnd, bridgeEnd := net.Pipe()
	defer bridgeEnd.Close()
	go io.Copy(io.Discard, bridgeEnd)

	driver := NewSerialDriver(hostEnd, discardLogger())
	defer driver.Close()
	if err := driver.Init(pairedAddr); err != nil {
		t.Fatalf("Init: %v", err)
	}

	err := driver.Send(pairedAddr, make([]byte, maxBridgeFrame+1))
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("Expected ErrFrameTooLarge, got %v", err)
	}
}
