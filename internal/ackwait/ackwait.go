// Package ackwait implements the single actor tracking the one outstanding
// CONNECT and any number of outstanding SUBSCRIBE/UNSUBSCRIBE requests,
// resolving each against its matching CONNACK/SUBACK/UNSUBACK or timing it
// out on its own deadline tick.
package ackwait

import (
	"context"
	"log/slog"
	"time"

	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/waiter"
)

type Config struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

type Waiter struct {
	cfg     Config
	mailbox chan command
	logger  *slog.Logger
}

type connectEntry struct {
	w        *waiter.Waiter
	deadline time.Time
}

type subEntry struct {
	w        *waiter.Waiter
	deadline time.Time
}

func New(cfg Config) *Waiter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	return &Waiter{
		cfg:     cfg,
		mailbox: make(chan command, 64),
		logger:  cfg.Logger.With("component", "ackwait"),
	}
}

func (a *Waiter) Run(ctx context.Context) {
	var connect *connectEntry
	subs := make(map[uint16]*subEntry)
	unsubs := make(map[uint16]*subEntry)
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick(&connect, subs, unsubs)
		case cmd := <-a.mailbox:
			cmd.apply(a, &connect, subs, unsubs)
		}
	}
}

// AwaitConnect registers the single outstanding CONNECT. Calling it again
// before the first resolves replaces the waiter the caller is tracking, but
// the engine itself only ever tracks one.
func (a *Waiter) AwaitConnect(w *waiter.Waiter) {
	a.mailbox <- awaitConnectCmd{w: w}
}

func (a *Waiter) AwaitSubscribe(packetID uint16, w *waiter.Waiter) {
	a.mailbox <- awaitSubCmd{packetID: packetID, w: w, unsub: false}
}

func (a *Waiter) AwaitUnsubscribe(packetID uint16, w *waiter.Waiter) {
	a.mailbox <- awaitSubCmd{packetID: packetID, w: w, unsub: true}
}

func (a *Waiter) OnConnAck(ack *packet.ConnAck) {
	a.mailbox <- connAckCmd{ack: ack}
}

func (a *Waiter) OnSubAck(ack *packet.SubAck) {
	a.mailbox <- subAckCmd{ack: ack}
}

func (a *Waiter) OnUnsubAck(ack *packet.UnsubAck) {
	a.mailbox <- unsubAckCmd{ack: ack}
}

func (a *Waiter) tick(connect **connectEntry, subs, unsubs map[uint16]*subEntry) {
	now := time.Now()
	if c := *connect; c != nil && !now.Before(c.deadline) {
		c.w.Resolve(waiter.Outcome{Timeout: true})
		*connect = nil
	}
	for id, e := range subs {
		if !now.Before(e.deadline) {
			e.w.Resolve(waiter.Outcome{Timeout: true})
			delete(subs, id)
		}
	}
	for id, e := range unsubs {
		if !now.Before(e.deadline) {
			e.w.Resolve(waiter.Outcome{Timeout: true})
			delete(unsubs, id)
		}
	}
}

type command interface {
	apply(a *Waiter, connect **connectEntry, subs, unsubs map[uint16]*subEntry)
}

type awaitConnectCmd struct{ w *waiter.Waiter }

func (c awaitConnectCmd) apply(a *Waiter, connect **connectEntry, subs, unsubs map[uint16]*subEntry) {
	*connect = &connectEntry{w: c.w, deadline: time.Now().Add(a.cfg.Timeout)}
}

type awaitSubCmd struct {
	packetID uint16
	w        *waiter.Waiter
	unsub    bool
}

func (c awaitSubCmd) apply(a *Waiter, connect **connectEntry, subs, unsubs map[uint16]*subEntry) {
	entry := &subEntry{w: c.w, deadline: time.Now().Add(a.cfg.Timeout)}
	if c.unsub {
		unsubs[c.packetID] = entry
	} else {
		subs[c.packetID] = entry
	}
}

type connAckCmd struct{ ack *packet.ConnAck }

func (c connAckCmd) apply(a *Waiter, connect **connectEntry, subs, unsubs map[uint16]*subEntry) {
	entry := *connect
	if entry == nil {
		a.logger.Warn("received CONNACK with no pending CONNECT")
		return
	}
	*connect = nil
	if c.ack.ReturnCode == packet.ConnAccepted {
		entry.w.Resolve(waiter.Outcome{})
	} else {
		entry.w.Resolve(waiter.Outcome{Err: errConnectRefused(c.ack.ReturnCode)})
	}
}

type subAckCmd struct{ ack *packet.SubAck }

func (c subAckCmd) apply(a *Waiter, connect **connectEntry, subs, unsubs map[uint16]*subEntry) {
	entry, ok := subs[c.ack.PacketID]
	if !ok {
		a.logger.Warn("received SUBACK with no pending SUBSCRIBE", "packet_id", c.ack.PacketID)
		return
	}
	delete(subs, c.ack.PacketID)
	for _, code := range c.ack.ReturnCodes {
		if code == packet.SubAckFailure {
			entry.w.Resolve(waiter.Outcome{Err: errSubscribeRefused(c.ack.PacketID)})
			return
		}
	}
	entry.w.Resolve(waiter.Outcome{})
}

type unsubAckCmd struct{ ack *packet.UnsubAck }

func (c unsubAckCmd) apply(a *Waiter, connect **connectEntry, subs, unsubs map[uint16]*subEntry) {
	entry, ok := unsubs[c.ack.PacketID]
	if !ok {
		a.logger.Warn("received UNSUBACK with no pending UNSUBSCRIBE", "packet_id", c.ack.PacketID)
		return
	}
	delete(unsubs, c.ack.PacketID)
	entry.w.Resolve(waiter.Outcome{})
}
