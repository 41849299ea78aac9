// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Thermoquad/backpack/pkg/backpack"
	"github.com/Thermoquad/backpack/pkg/binding"
	"github.com/Thermoquad/backpack/pkg/vrx"
)

const dashboardRefresh = 250 * time.Millisecond

// Event log entry
type eventLogEntry struct {
	timestamp time.Time
	message   string
	isError   bool // true for errors, false for information
}

type dashboardKeys struct {
	Bind key.Binding
	Quit key.Binding
}

func (k dashboardKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Bind, k.Quit}
}

func (k dashboardKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var defaultDashboardKeys = dashboardKeys{
	Bind: key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "bind")),
	Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
}

// TUI model
type dashboardModel struct {
	device   *atomic.Pointer[backpack.Device]
	connInfo func() string

	current    *backpack.Device
	boots      int
	status     backpack.Status
	haveStatus bool

	eventLog      []eventLogEntry
	maxLogEntries int

	keys     dashboardKeys
	help     help.Model
	width    int
	height   int
	quitting bool
	exitErr  error
}

// Messages
type dashboardTickMsg time.Time
type supervisorDoneMsg struct {
	err error
}

// formatUptime formats uptime in milliseconds to human-friendly string
func formatUptime(ms uint64) string {
	if ms == 0 {
		return "0 seconds"
	}

	seconds := ms / 1000
	minutes := seconds / 60
	hours := minutes / 60
	days := hours / 24

	seconds %= 60
	minutes %= 60
	hours %= 24

	parts := []string{}
	if days > 0 {
		parts = append(parts, plural(days, "day"))
	}
	if hours > 0 {
		parts = append(parts, plural(hours, "hour"))
	}
	if minutes > 0 {
		parts = append(parts, plural(minutes, "minute"))
	}
	if seconds > 0 || len(parts) == 0 {
		parts = append(parts, plural(seconds, "second"))
	}

	// Join with commas and "and" for last item
	if len(parts) == 1 {
		return parts[0]
	}
	if len(parts) == 2 {
		return parts[0] + " and " + parts[1]
	}
	last := parts[len(parts)-1]
	rest := strings.Join(parts[:len(parts)-1], ", ")
	return rest + ", and " + last
}

func plural(n uint64, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

// statusEvents describes what changed between two published snapshots
func statusEvents(prev, cur backpack.Status) []string {
	var events []string

	if cur.State != prev.State {
		events = append(events, fmt.Sprintf("State: %s -> %s", prev.State, cur.State))
	}
	if cur.Peer != prev.Peer {
		events = append(events, fmt.Sprintf("Paired with %s", cur.Peer))
	}
	if cur.RadioUp != prev.RadioUp {
		if cur.RadioUp {
			events = append(events, "Radio up")
		} else {
			events = append(events, "Radio down")
		}
	}
	if cur.GotInitialPacket && !prev.GotInitialPacket {
		events = append(events, "First packet from transmitter")
	}
	if cur.Channel != prev.Channel && cur.Channel >= 0 {
		events = append(events, fmt.Sprintf("Channel %s (%d)", vrx.ChannelName(uint8(cur.Channel)), cur.Channel))
	}
	if cur.HeadTracking != prev.HeadTracking {
		events = append(events, fmt.Sprintf("Head tracking %s", onOff(cur.HeadTracking)))
	}
	if cur.Recording != prev.Recording {
		events = append(events, fmt.Sprintf("Recording %s", onOff(cur.Recording)))
	}
	if cur.RestartPending && !prev.RestartPending {
		events = append(events, fmt.Sprintf("Restart scheduled at %s", cur.RestartAt.Format("15:04:05.000")))
	}
	if !cur.LastClockSync.IsZero() && !cur.LastClockSync.Equal(prev.LastClockSync) {
		events = append(events, fmt.Sprintf("Clock synced to %s", cur.LastClockSync.Format(time.RFC3339)))
	}
	if n := cur.Radio.Filtered; n > prev.Radio.Filtered && prev.Radio.Filtered == 0 {
		events = append(events, "Dropping frames from unpaired addresses")
	}

	return events
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func newDashboardModel(device *atomic.Pointer[backpack.Device], connInfo func() string) dashboardModel {
	return dashboardModel{
		device:        device,
		connInfo:      connInfo,
		eventLog:      make([]eventLogEntry, 0),
		maxLogEntries: 100,
		keys:          defaultDashboardKeys,
		help:          help.New(),
		width:         80,
		height:        24,
	}
}

func (m dashboardModel) Init() tea.Cmd {
	return dashboardTickCmd()
}

func dashboardTickCmd() tea.Cmd {
	return tea.Tick(dashboardRefresh, func(t time.Time) tea.Msg {
		return dashboardTickMsg(t)
	})
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Bind):
			if m.current == nil {
				m.addLogEntry("Not booted yet", true)
			} else {
				m.current.RequestBinding()
				m.addLogEntry("Binding requested", false)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

	case dashboardTickMsg:
		m.refresh()
		return m, dashboardTickCmd()

	case supervisorDoneMsg:
		m.exitErr = msg.err
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// refresh picks up a new boot and logs what changed since the last snapshot
func (m *dashboardModel) refresh() {
	d := m.device.Load()
	if d == nil {
		return
	}

	if d != m.current {
		m.current = d
		m.boots++
		m.haveStatus = false
		m.addLogEntry(fmt.Sprintf("Boot %d", m.boots), false)
	}

	cur := d.Status()
	if m.haveStatus {
		for _, e := range statusEvents(m.status, cur) {
			m.addLogEntry(e, false)
		}
		if cur.Radio.SendErrors > m.status.Radio.SendErrors {
			m.addLogEntry(fmt.Sprintf("%d radio send errors", cur.Radio.SendErrors-m.status.Radio.SendErrors), true)
		}
		if bad := cur.Radio.ChecksumErrors + cur.Radio.DecodeErrors; bad > m.status.Radio.ChecksumErrors+m.status.Radio.DecodeErrors {
			m.addLogEntry(fmt.Sprintf("Discarded frames: %d total", bad), true)
		}
	} else {
		m.addLogEntry(fmt.Sprintf("State %s, boot count %d", cur.State, cur.BootCount), false)
	}
	m.status = cur
	m.haveStatus = true
}

func (m *dashboardModel) addLogEntry(message string, isError bool) {
	entry := eventLogEntry{
		timestamp: time.Now(),
		message:   message,
		isError:   isError,
	}
	m.eventLog = append(m.eventLog, entry)

	// Keep only last N entries
	if len(m.eventLog) > m.maxLogEntries {
		m.eventLog = m.eventLog[len(m.eventLog)-m.maxLogEntries:]
	}
}

func (m dashboardModel) View() string {
	if m.quitting {
		if m.exitErr != nil {
			return fmt.Sprintf("Stopped: %v\n", m.exitErr)
		}
		return "Shutting down...\n"
	}

	// Styles
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("12")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	headerStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241"))

	labelStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("12")).
		Bold(true)

	valueStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("10"))

	errorStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("9")).
		Bold(true)

	warningStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("11"))

	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1)

	// Header
	var s strings.Builder
	s.WriteString(titleStyle.Render("BACKPACK"))
	s.WriteString("\n")
	s.WriteString(headerStyle.Render(fmt.Sprintf("%s | Video receiver: %s | v%s", m.connInfo(), moduleName, Version)))
	s.WriteString("\n\n")

	if !m.haveStatus {
		s.WriteString(warningStyle.Render("⏳ Booting..."))
		s.WriteString("\n\n")
	} else {
		st := m.status
		stateRender := valueStyle.Render
		switch st.State {
		case binding.StateBinding, binding.StateStarting:
			stateRender = warningStyle.Render
		case binding.StateRecovery:
			stateRender = errorStyle.Render
		}

		channel := "-"
		if st.Channel >= 0 {
			channel = fmt.Sprintf("%s (%d)", vrx.ChannelName(uint8(st.Channel)), st.Channel)
		}
		peer := "(none)"
		if !st.Peer.IsZero() {
			peer = st.Peer.String()
		}

		content := strings.Builder{}
		content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("State:"), stateRender(st.State.String()),
			labelStyle.Render("Radio:"), valueStyle.Render(onOff(st.RadioUp)),
			labelStyle.Render("Boots:"), valueStyle.Render(fmt.Sprintf("%d (count %d)", m.boots, st.BootCount)),
		))
		content.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Peer:"), valueStyle.Render(peer)))
		content.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s\n",
			labelStyle.Render("Channel:"), valueStyle.Render(channel),
			labelStyle.Render("Head tracking:"), valueStyle.Render(onOff(st.HeadTracking)),
			labelStyle.Render("Recording:"), valueStyle.Render(onOff(st.Recording)),
		))
		content.WriteString(fmt.Sprintf("%s %s",
			labelStyle.Render("Uptime:"), valueStyle.Render(formatUptime(uint64(st.Uptime.Milliseconds()))),
		))
		if st.RestartPending {
			content.WriteString("   " + warningStyle.Render("restart pending"))
		}
		if !st.GotInitialPacket && st.State == binding.StateRunning {
			content.WriteString("   " + headerStyle.Render(fmt.Sprintf("status requests sent: %d", st.StatusRequests)))
		}
		s.WriteString(boxStyle.Render(content.String()))
		s.WriteString("\n\n")

		// Radio statistics
		r := st.Radio
		errors := r.ChecksumErrors + r.DecodeErrors
		radio := strings.Builder{}
		radio.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s   %s %s\n",
			labelStyle.Render("Frames:"), valueStyle.Render(fmt.Sprintf("%d", r.Frames)),
			labelStyle.Render("Packets:"), valueStyle.Render(fmt.Sprintf("%d", r.Packets)),
			labelStyle.Render("Filtered:"), valueStyle.Render(fmt.Sprintf("%d", r.Filtered)),
			labelStyle.Render("Sent:"), valueStyle.Render(fmt.Sprintf("%d", r.Sent)),
		))
		errorRender := valueStyle.Render
		if errors > 0 || r.SendErrors > 0 {
			errorRender = errorStyle.Render
		}
		radio.WriteString(fmt.Sprintf("%s %s   %s %s   %s %s",
			labelStyle.Render("Discarded:"), errorRender(fmt.Sprintf("%d", errors)),
			labelStyle.Render("Rejected:"), valueStyle.Render(fmt.Sprintf("%d", r.Rejected+r.Unknown)),
			labelStyle.Render("Send errors:"), errorRender(fmt.Sprintf("%d", r.SendErrors)),
		))
		s.WriteString(boxStyle.Render(radio.String()))
		s.WriteString("\n\n")
	}

	// Event log
	s.WriteString(labelStyle.Render("Recent Events:"))
	s.WriteString("\n")

	// Calculate how many log entries we can show
	logHeight := m.height - 17 // Reserve space for header and status
	if logHeight < 5 {
		logHeight = 5
	}

	logContent := strings.Builder{}
	startIdx := len(m.eventLog) - logHeight
	if startIdx < 0 {
		startIdx = 0
	}

	if len(m.eventLog) == 0 {
		logContent.WriteString(headerStyle.Render("  (no events yet)"))
	} else {
		for i := startIdx; i < len(m.eventLog); i++ {
			entry := m.eventLog[i]
			timestamp := entry.timestamp.Format("01/02/06 15:04:05.000")
			if entry.isError {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					errorStyle.Render("✗ "+entry.message),
				))
			} else {
				logContent.WriteString(fmt.Sprintf("%s %s\n",
					headerStyle.Render(timestamp),
					warningStyle.Render("ℹ "+entry.message),
				))
			}
		}
	}

	s.WriteString(boxStyle.Width(m.width - 4).Render(logContent.String()))
	s.WriteString("\n")
	s.WriteString(m.help.View(m.keys))

	return s.String()
}
