//go:build linux

package platform

import (
	"context"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/meridian-pim/meridian/internal/logging"
)

// LinuxSleepWakeMonitor monitors suspend/resume transitions via
// systemd-logind's PrepareForSleep signal on the system bus — the same
// signal NetworkManager and most desktop environments key their own
// suspend handling off of.
type LinuxSleepWakeMonitor struct {
	conn     *dbus.Conn
	events   chan SleepWakeEvent
	stopChan chan struct{}
	mu       sync.Mutex
	running  bool
}

// NewSleepWakeMonitor creates a new sleep/wake monitor for Linux.
func NewSleepWakeMonitor() SleepWakeMonitor {
	return &LinuxSleepWakeMonitor{
		events:   make(chan SleepWakeEvent, 10),
		stopChan: make(chan struct{}),
	}
}

// Start begins monitoring for PrepareForSleep signals via logind.
func (m *LinuxSleepWakeMonitor) Start(ctx context.Context) error {
	log := logging.WithComponent("sleep-wake")

	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}

	conn, err := dbus.SystemBus()
	if err != nil {
		m.mu.Unlock()
		return err
	}

	matchRule := "type='signal',interface='org.freedesktop.login1.Manager',member='PrepareForSleep'"
	if call := conn.BusObject().Call("org.freedesktop.DBus.AddMatch", 0, matchRule); call.Err != nil {
		// Don't close conn — it's the shared system bus.
		m.mu.Unlock()
		return call.Err
	}

	m.conn = conn
	m.running = true
	m.mu.Unlock()

	go m.listen(ctx)

	log.Info().Msg("sleep/wake monitor started (logind PrepareForSleep)")
	return nil
}

func (m *LinuxSleepWakeMonitor) listen(ctx context.Context) {
	log := logging.WithComponent("sleep-wake")

	signals := make(chan *dbus.Signal, 10)
	m.conn.Signal(signals)

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopChan:
			return
		case signal := <-signals:
			if signal == nil || signal.Name != "org.freedesktop.login1.Manager.PrepareForSleep" {
				continue
			}
			if len(signal.Body) == 0 {
				continue
			}
			sleeping, ok := signal.Body[0].(bool)
			if !ok {
				log.Warn().Msg("unexpected type in PrepareForSleep signal")
				continue
			}

			event := SleepWakeEvent{IsSleeping: sleeping, Timestamp: time.Now()}
			select {
			case m.events <- event:
			default:
				log.Warn().Msg("sleep/wake event channel full, dropping event")
			}
		}
	}
}

// Events returns the channel for receiving sleep/wake events.
func (m *LinuxSleepWakeMonitor) Events() <-chan SleepWakeEvent {
	return m.events
}

// Stop stops the monitor and cleans up resources.
func (m *LinuxSleepWakeMonitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopChan)
	// Don't close m.conn — it's the shared system bus.
	return nil
}
