// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/backpack/pkg/config"
	"github.com/Thermoquad/backpack/pkg/identity"
	"github.com/Thermoquad/backpack/pkg/msp"
	"github.com/Thermoquad/backpack/pkg/radio"
)

// airFrame is one frame seen on the air
type airFrame struct {
	at   time.Time
	src  identity.Address
	dst  identity.Address
	data []byte
}

// decodeEvent is a packet or decode error attributed to a sender
type decodeEvent struct {
	src    identity.Address
	dst    identity.Address
	packet *msp.Packet
	err    error
}

// streamDecoder decodes interleaved frames with one decoder per sender, so a
// packet split across frames is reassembled even when other senders talk
// in between
type streamDecoder struct {
	decoders map[identity.Address]*msp.Decoder
	stats    *msp.Statistics
}

func newStreamDecoder() *streamDecoder {
	return &streamDecoder{
		decoders: make(map[identity.Address]*msp.Decoder),
		stats:    msp.NewStatistics(),
	}
}

func (s *streamDecoder) feed(f airFrame) []decodeEvent {
	d, ok := s.decoders[f.src]
	if !ok {
		d = msp.NewDecoder()
		s.decoders[f.src] = d
	}

	s.stats.RecordFrame()
	var events []decodeEvent
	for _, b := range f.data {
		p, err := d.DecodeByte(b)
		if err != nil {
			s.stats.RecordDecodeError(err)
			events = append(events, decodeEvent{src: f.src, dst: f.dst, err: err})
			continue
		}
		if p != nil {
			s.stats.RecordPacket()
			events = append(events, decodeEvent{src: f.src, dst: f.dst, packet: p})
		}
	}
	return events
}

// openSniffer joins the air in monitor mode. Only the WebSocket air carries
// other stations' traffic; a serial bridge filters in hardware.
func openSniffer(ctx context.Context, cfg *config.Config) (*radio.WebSocketDriver, <-chan airFrame, string, error) {
	if cfg.Radio.Driver != config.DriverWebSocket {
		return nil, nil, "", errors.New("sniffing requires the websocket air (--url)")
	}

	d, err := dialWebSocket(ctx, cfg)
	if err != nil {
		return nil, nil, "", err
	}

	frames := make(chan airFrame, 256)
	d.SetMonitor(func(src, dst identity.Address, data []byte) {
		f := airFrame{at: time.Now(), src: src, dst: dst, data: append([]byte(nil), data...)}
		select {
		case frames <- f:
		default:
		}
	})

	// The zero address receives nothing directly; all traffic arrives via the monitor
	if err := d.Init(identity.Address{}); err != nil {
		d.Close()
		return nil, nil, "", err
	}

	return d, frames, fmt.Sprintf("WebSocket: %s (monitor)", cfg.Radio.URL), nil
}
