// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/backpack/pkg/msp"
	"github.com/Thermoquad/backpack/pkg/vrx"
)

var (
	controlRepeat   int
	controlInterval time.Duration

	recordingDelay uint16

	batteryVoltage   float64
	batteryCurrent   float64
	batteryCapacity  uint32
	batteryRemaining uint8

	linkRSSI int
	linkLQ   uint8
	linkSNR  int
)

var controlCmd = &cobra.Command{
	Use:   "control",
	Short: "Send transmitter commands to a paired backpack",
	Long: `Send commands to a backpack as its paired transmitter.

The command transmits from the paired address (--peer or
identity.fixed_address), so a running backpack paired to that address
accepts the frames. Radio delivery is fire-and-forget; use --repeat to send
a command several times.`,
}

var controlChannelCmd = &cobra.Command{
	Use:   "channel <index|band+channel>",
	Short: "Tune the video receiver (0-47, or A1..L8)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		index, err := parseChannel(args[0])
		if err != nil {
			return err
		}
		return sendControl(msp.NewChannelIndex(index),
			fmt.Sprintf("channel %s (%d)", vrx.ChannelName(index), index))
	},
}

var controlRecordingCmd = &cobra.Command{
	Use:   "recording <on|off>",
	Short: "Start or stop DVR recording",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return sendControl(msp.NewRecordingState(on, recordingDelay),
			fmt.Sprintf("recording %s (delay %ds)", onOff(on), recordingDelay))
	},
}

var controlHeadTrackingCmd = &cobra.Command{
	Use:   "head-tracking <on|off>",
	Short: "Enable or disable head tracking",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		on, err := parseOnOff(args[0])
		if err != nil {
			return err
		}
		return sendControl(msp.NewHeadTracking(on), "head tracking "+onOff(on))
	},
}

var controlOSDCmd = &cobra.Command{
	Use:   "osd <hex payload>",
	Short: "Send a raw OSD payload",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := hex.DecodeString(strings.ReplaceAll(args[0], " ", ""))
		if err != nil {
			return fmt.Errorf("invalid OSD payload: %w", err)
		}
		return sendControl(msp.NewOSD(payload), fmt.Sprintf("OSD (%d bytes)", len(payload)))
	},
}

var controlBatteryCmd = &cobra.Command{
	Use:   "battery",
	Short: "Forward a CRSF battery telemetry frame",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		frame := crsfBatteryFrame(batteryVoltage, batteryCurrent, batteryCapacity, batteryRemaining)
		return sendControl(msp.NewTelemetryForward(0, frame),
			fmt.Sprintf("battery %.1fV %.1fA %dmAh %d%%", batteryVoltage, batteryCurrent, batteryCapacity, batteryRemaining))
	},
}

var controlLinkCmd = &cobra.Command{
	Use:   "link",
	Short: "Forward a CRSF link statistics telemetry frame",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		frame := crsfLinkFrame(linkRSSI, linkLQ, linkSNR)
		return sendControl(msp.NewTelemetryForward(0, frame),
			fmt.Sprintf("link RSSI %ddBm LQ %d%% SNR %ddB", linkRSSI, linkLQ, linkSNR))
	},
}

var controlRecoveryCmd = &cobra.Command{
	Use:   "recovery",
	Short: "Restart the backpack into recovery mode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendControl(msp.NewRecoveryMode(), "recovery mode")
	},
}

func init() {
	controlCmd.PersistentFlags().IntVar(&controlRepeat, "repeat", 1, "Number of times to send the command")
	controlCmd.PersistentFlags().DurationVar(&controlInterval, "interval", 100*time.Millisecond, "Delay between repeats")

	controlRecordingCmd.Flags().Uint16Var(&recordingDelay, "delay", 0, "Seconds before the change takes effect")

	controlBatteryCmd.Flags().Float64Var(&batteryVoltage, "voltage", 16.8, "Pack voltage (V)")
	controlBatteryCmd.Flags().Float64Var(&batteryCurrent, "current", 0, "Current draw (A)")
	controlBatteryCmd.Flags().Uint32Var(&batteryCapacity, "capacity", 0, "Capacity used (mAh)")
	controlBatteryCmd.Flags().Uint8Var(&batteryRemaining, "remaining", 100, "Remaining (%)")

	controlLinkCmd.Flags().IntVar(&linkRSSI, "rssi", -60, "Uplink RSSI (dBm)")
	controlLinkCmd.Flags().Uint8Var(&linkLQ, "lq", 100, "Uplink link quality (%)")
	controlLinkCmd.Flags().IntVar(&linkSNR, "snr", 10, "Uplink SNR (dB)")

	controlCmd.AddCommand(controlChannelCmd, controlRecordingCmd, controlHeadTrackingCmd,
		controlOSDCmd, controlBatteryCmd, controlLinkCmd, controlRecoveryCmd)
	rootCmd.AddCommand(controlCmd)
}

// sendControl transmits p to the paired backpack controlRepeat times
func sendControl(p *msp.Packet, what string) error {
	if controlRepeat < 1 {
		return fmt.Errorf("--repeat must be at least 1")
	}

	cfg, err := setup(false)
	if err != nil {
		return err
	}

	tx, err := openTransmitter(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer tx.Close()

	fmt.Printf("Connected: %s\n", tx.connInfo)
	fmt.Printf("Sending %s to %s\n", what, tx.address)

	for i := 0; i < controlRepeat; i++ {
		if i > 0 {
			time.Sleep(controlInterval)
		}
		if err := tx.send(p); err != nil {
			return fmt.Errorf("send failed: %w", err)
		}
	}

	fmt.Printf("Sent %s (%d)\n", msp.FormatPacket(p), controlRepeat)
	return nil
}

// parseOnOff accepts on/off, true/false, 1/0 and yes/no
func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "1", "yes", "enable":
		return true, nil
	case "off", "false", "0", "no", "disable":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

// parseChannel accepts a table index or a band letter and channel number
func parseChannel(s string) (uint8, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 || n >= vrx.ChannelTableLen {
			return 0, fmt.Errorf("channel index must be 0-%d, got %d", vrx.ChannelTableLen-1, n)
		}
		return uint8(n), nil
	}

	s = strings.ToUpper(s)
	if len(s) != 2 {
		return 0, fmt.Errorf("invalid channel %q", s)
	}
	band := strings.IndexByte(vrx.Bands, s[0])
	ch := int(s[1] - '1')
	if band < 0 || ch < 0 || ch > 7 {
		return 0, fmt.Errorf("invalid channel %q", s)
	}
	return uint8(band*8 + ch), nil
}

// crsfFrame wraps data as a CRSF frame: [length][type][data...][crc]
func crsfFrame(frameType byte, data []byte) []byte {
	body := make([]byte, 0, 1+len(data))
	body = append(body, frameType)
	body = append(body, data...)

	frame := make([]byte, 0, 2+len(body))
	frame = append(frame, byte(len(body)+1))
	frame = append(frame, body...)
	return append(frame, msp.CalculateCRC(body))
}

// crsfBatteryFrame builds a CRSF battery sensor frame. Voltage and current
// are big-endian tenths, capacity is 24-bit mAh.
func crsfBatteryFrame(volts, amps float64, capacity uint32, remaining uint8) []byte {
	v := uint16(volts*10 + 0.5)
	a := uint16(amps*10 + 0.5)
	return crsfFrame(msp.CRSFFrameBattery, []byte{
		byte(v >> 8), byte(v),
		byte(a >> 8), byte(a),
		byte(capacity >> 16), byte(capacity >> 8), byte(capacity),
		remaining,
	})
}

// crsfLinkFrame builds a CRSF link statistics frame with the uplink fields set
func crsfLinkFrame(rssi int, lq uint8, snr int) []byte {
	return crsfFrame(msp.CRSFFrameLinkStatistics, []byte{
		byte(-rssi), byte(-rssi), // uplink RSSI antenna 1 and 2, dBm negated
		lq,
		byte(int8(snr)),
		0, // active antenna
		0, // RF mode
		0, // TX power
		byte(-rssi),
		lq,
		byte(int8(snr)),
	})
}
