// Package qos2 implements the exactly-once outbound retry state machine:
// PUBLISH -> PUBREC -> PUBREL -> PUBCOMP, a single-actor mailbox identical
// in shape to internal/qos1 but with the extra AwaitingPubRec/
// AwaitingPubComp distinction.
package qos2

import (
	"context"
	"log/slog"
	"time"

	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/telemetry"
	"github.com/petabridge/TurboMqtt-sub000/internal/waiter"
)

type Config struct {
	RetryInterval time.Duration
	MaxRetries    int
	Logger        *slog.Logger
	Metrics       *telemetry.Metrics
}

// Engine is the QoS2 retry state machine.
type Engine struct {
	cfg      Config
	outbound chan<- packet.Sized
	mailbox  chan command
	logger   *slog.Logger
}

type pendingEntry struct {
	pkt              *packet.Publish
	w                *waiter.Waiter
	pubRecSeen       bool
	deadline         time.Time
	remainingRetries int
}

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
		logger:   cfg.Logger.With("component", "qos2"),
	}
}

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

// OnPubRec notifies the engine that a PUBREC arrived for packetID.
func (e *Engine) OnPubRec(packetID uint16) {
	e.mailbox <- pubRecCmd{packetID: packetID}
}

// OnPubComp notifies the engine that a PUBCOMP arrived for packetID.
func (e *Engine) OnPubComp(packetID uint16) {
	e.mailbox <- pubCompCmd{packetID: packetID}
}

func (e *Engine) Cancel(packetID uint16) {
	e.mailbox <- cancelCmd{packetID: packetID}
}

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
		if entry.remainingRetries == 0 {
			entry.w.Resolve(waiter.Outcome{Timeout: true})
			delete(pending, id)
			continue
		}
		entry.remainingRetries--
		entry.deadline = now.Add(e.cfg.RetryInterval)
		if entry.pubRecSeen {
			e.sendOrWarn(&packet.PubRel{PacketID: id}, id)
		} else {
			dup := *entry.pkt
			dup.Dup = true
			e.sendOrWarn(&dup, id)
		}
	}
}

func (e *Engine) sendOrWarn(p packet.Sized, id uint16) {
	select {
	case e.outbound <- p:
		e.cfg.Metrics.PublishRetry()
	default:
		e.logger.Warn("outbound queue full, deferring QoS2 retry", "packet_id", id)
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

type pubRecCmd struct{ packetID uint16 }

func (c pubRecCmd) apply(e *Engine, pending map[uint16]*pendingEntry) {
	entry, ok := pending[c.packetID]
	if !ok {
		// No matching entry: the peer needs to clean up its own state.
		e.outbound <- &packet.PubRel{PacketID: c.packetID, Reason: packet.PubRelPacketIdentifierNotFound}
		return
	}
	entry.pubRecSeen = true
	e.outbound <- &packet.PubRel{PacketID: c.packetID}
}

type pubCompCmd struct{ packetID uint16 }

func (c pubCompCmd) apply(e *Engine, pending map[uint16]*pendingEntry) {
	entry, ok := pending[c.packetID]
	if !ok {
		return
	}
	delete(pending, c.packetID)
	entry.w.Resolve(waiter.Outcome{})
}

type cancelCmd struct{ packetID uint16 }

func (c cancelCmd) apply(e *Engine, pending map[uint16]*pendingEntry) {
	delete(pending, c.packetID)
}

type pendingCountCmd struct{ reply chan int }

func (c pendingCountCmd) apply(e *Engine, pending map[uint16]*pendingEntry) {
	c.reply <- len(pending)
}
