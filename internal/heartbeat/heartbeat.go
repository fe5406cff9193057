// Package heartbeat emits PINGREQ at keepAlive/4 intervals and raises a
// keep-alive timeout if no server traffic has been observed within the
// keepAlive window.
package heartbeat

import (
	"context"
	"log/slog"
	"time"

	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
)

// Monitor drives the PINGREQ/PINGRESP keepalive cycle for one connection
// lifetime. A fresh Monitor must be created for each reconnect.
type Monitor struct {
	keepAlive time.Duration
	outbound  chan<- packet.Sized
	timedOut  chan struct{}
	logger    *slog.Logger

	touch  chan struct{}
	closed chan struct{}
}

// New creates a Monitor. keepAlive of zero disables the keepalive cycle
// entirely (Run returns immediately without emitting pings or timing out),
// matching a CONNECT with KeepAlive=0.
func New(keepAlive time.Duration, outbound chan<- packet.Sized, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Monitor{
		keepAlive: keepAlive,
		outbound:  outbound,
		timedOut:  make(chan struct{}),
		logger:    logger.With("component", "heartbeat"),
		touch:     make(chan struct{}, 1),
		closed:    make(chan struct{}),
	}
}

// TimedOut reports a channel closed once the keepalive window has elapsed
// with no server traffic observed.
func (m *Monitor) TimedOut() <-chan struct{} { return m.timedOut }

// NotePacketReceived records that a packet (any packet, not just PINGRESP —
// any server traffic resets the timeout window) arrived from the broker.
func (m *Monitor) NotePacketReceived() {
	select {
	case m.touch <- struct{}{}:
	default:
	}
}

// Run drives the ping cycle until ctx is cancelled or a timeout is raised.
func (m *Monitor) Run(ctx context.Context) {
	if m.keepAlive <= 0 {
		return
	}
	pingInterval := m.keepAlive / 4
	if pingInterval <= 0 {
		pingInterval = m.keepAlive
	}

	pingTicker := time.NewTicker(pingInterval)
	defer pingTicker.Stop()

	lastSeen := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.touch:
			lastSeen = time.Now()
		case now := <-pingTicker.C:
			if now.Sub(lastSeen) > m.keepAlive {
				m.logger.Warn("keepalive timeout, no server traffic observed", "keep_alive", m.keepAlive)
				close(m.timedOut)
				return
			}
			select {
			case m.outbound <- &packet.PingReq{}:
			default:
				m.logger.Warn("outbound queue full, skipped PINGREQ")
			}
		}
	}
}
