// Package qos1 implements the at-least-once outbound retry state machine:
// one single-actor mailbox goroutine owning every pending QoS1 entry,
// reached only through typed messages, with no internal locks.
package qos1

import (
	"context"
	"log/slog"
	"time"

	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/telemetry"
	"github.com/petabridge/TurboMqtt-sub000/internal/waiter"
)

// Config parameterizes the engine from client options.
type Config struct {
	RetryInterval time.Duration
	MaxRetries    int
	Logger        *slog.Logger
	Metrics       *telemetry.Metrics
}

// Engine is the QoS1 retry state machine.
type Engine struct {
	cfg      Config
	outbound chan<- packet.Sized
	mailbox  chan command
	logger   *slog.Logger
}

type pendingEntry struct {
	pkt              *packet.Publish
	w                *waiter.Waiter
	deadline         time.Time
	remainingRetries int
}

// New creates an Engine that re-enqueues retries onto outbound.
func New(cfg Config, outbound chan<- packet.Sized) *Engine {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		cfg:      cfg,
		outbound: outbound,
		mailbox:  make(chan command, 64),
		logger:   cfg.Logger.With("component", "qos1"),
	}
}

// Run processes the mailbox until ctx is done. It must run in its own
// goroutine for the lifetime of the owning session.
func (e *Engine) Run(ctx context.Context) {
	pending := make(map[uint16]*pendingEntry)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(pending)
		case cmd := <-e.mailbox:
			cmd.apply(e, pending)
		}
	}
}

// Submit admits a new PUBLISH for at-least-once delivery. It rejects a
// duplicate in-flight PacketID.
func (e *Engine) Submit(ctx context.Context, pkt *packet.Publish, w *waiter.Waiter) error {
	reply := make(chan error, 1)
	select {
	case e.mailbox <- submitCmd{pkt: pkt, w: w, reply: reply}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnPubAck notifies the engine that a PUBACK arrived for packetID.
func (e *Engine) OnPubAck(packetID uint16, success bool) {
	e.mailbox <- pubAckCmd{packetID: packetID, success: success}
}

// Cancel silently removes a pending entry without emitting a DUP retry.
func (e *Engine) Cancel(packetID uint16) {
	e.mailbox <- cancelCmd{packetID: packetID}
}

// Pending reports the number of in-flight entries, used by tests.
func (e *Engine) Pending() int {
	reply := make(chan int, 1)
	e.mailbox <- pendingCountCmd{reply: reply}
	return <-reply
}

func (e *Engine) tick(pending map[uint16]*pendingEntry) {
	now := time.Now()
	for id, entry := range pending {
		if now.Before(entry.deadline) {
			continue
		}
		if entry.remainingRetries > 0 {
			entry.remainingRetries--
			entry.deadline = now.Add(e.cfg.RetryInterval)
			dup := *entry.pkt
			dup.Dup = true
			select {
			case e.outbound <- &dup:
				e.cfg.Metrics.PublishRetry()
			default:
				e.logger.Warn("outbound queue full, deferring QoS1 retry", "packet_id", id)
			}
			continue
		}
		entry.w.Resolve(waiter.Outcome{Timeout: true})
		delete(pending, id)
	}
}

type command interface {
	apply(e *Engine, pending map[uint16]*pendingEntry)
}

type submitCmd struct {
	pkt   *packet.Publish
	w     *waiter.Waiter
	reply chan error
}

func (c submitCmd) apply(e *Engine, pending map[uint16]*pendingEntry) {
	if _, exists := pending[c.pkt.PacketID]; exists {
		c.reply <- errDuplicatePacketID(c.pkt.PacketID)
		return
	}
	pending[c.pkt.PacketID] = &pendingEntry{
		pkt:              c.pkt,
		w:                c.w,
		deadline:         time.Now().Add(e.cfg.RetryInterval),
		remainingRetries: e.cfg.MaxRetries,
	}
	c.reply <- nil
}

type pubAckCmd struct {
	packetID uint16
	success  bool
}

func (c pubAckCmd) apply(e *Engine, pending map[uint16]*pendingEntry) {
	entry, ok := pending[c.packetID]
	if !ok {
		return
	}
	delete(pending, c.packetID)
	if c.success {
		entry.w.Resolve(waiter.Outcome{})
	} else {
		entry.w.Resolve(waiter.Outcome{Err: errRejectedByBroker(c.packetID)})
	}
}

type cancelCmd struct{ packetID uint16 }

func (c cancelCmd) apply(e *Engine, pending map[uint16]*pendingEntry) {
	delete(pending, c.packetID)
}

type pendingCountCmd struct{ reply chan int }

func (c pendingCountCmd) apply(e *Engine, pending map[uint16]*pendingEntry) {
	c.reply <- len(pending)
}
