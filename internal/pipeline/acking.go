package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/petabridge/TurboMqtt-sub000/internal/ackwait"
	"github.com/petabridge/TurboMqtt-sub000/internal/dedup"
	"github.com/petabridge/TurboMqtt-sub000/internal/heartbeat"
	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/qos1"
	"github.com/petabridge/TurboMqtt-sub000/internal/qos2"
	"github.com/petabridge/TurboMqtt-sub000/internal/telemetry"
)

// AckingStage is the single routing point every decoded inbound packet
// passes through: ACKs are forwarded to the engine that owns
// the matching pending entry, inbound PUBLISH is deduplicated and delivered
// to the subscription Router, and inbound QoS1/2 handshakes are completed
// with the appropriate outbound ack packet.
type AckingStage struct {
	in        <-chan packet.Packet
	outbound  chan<- packet.Sized
	router    *Router
	dedup     *dedup.Cache
	dedupTTL  time.Duration
	qos1      *qos1.Engine
	qos2      *qos2.Engine
	ackWaiter *ackwait.Waiter
	heartbeat *heartbeat.Monitor
	metrics   *telemetry.Metrics
	logger    *slog.Logger
}

type Deps struct {
	Router    *Router
	Dedup     *dedup.Cache
	DedupTTL  time.Duration
	QoS1      *qos1.Engine
	QoS2      *qos2.Engine
	AckWaiter *ackwait.Waiter
	Heartbeat *heartbeat.Monitor
	Metrics   *telemetry.Metrics
	Logger    *slog.Logger
}

func NewAckingStage(in <-chan packet.Packet, outbound chan<- packet.Sized, deps Deps) *AckingStage {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.DedupTTL <= 0 {
		deps.DedupTTL = time.Minute
	}
	return &AckingStage{
		in:        in,
		outbound:  outbound,
		router:    deps.Router,
		dedup:     deps.Dedup,
		dedupTTL:  deps.DedupTTL,
		qos1:      deps.QoS1,
		qos2:      deps.QoS2,
		ackWaiter: deps.AckWaiter,
		heartbeat: deps.Heartbeat,
		metrics:   deps.Metrics,
		logger:    deps.Logger.With("component", "acking"),
	}
}

// Run routes decoded packets until in closes or ctx is cancelled. It
// returns a fatal error if the broker sends a packet that constitutes a
// protocol violation the connection cannot recover from. A ~1s ticker
// evicts expired dedup entries on the same goroutine that otherwise
// touches the cache, since dedup.Cache is not safe for concurrent use.
func (a *AckingStage) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.dedup.EvictExpired(time.Now())
		case pkt, ok := <-a.in:
			if !ok {
				return nil
			}
			if a.heartbeat != nil {
				a.heartbeat.NotePacketReceived()
			}
			if err := a.route(pkt); err != nil {
				return err
			}
		}
	}
}

func (a *AckingStage) route(pkt packet.Packet) error {
	switch p := pkt.(type) {
	case *packet.ConnAck:
		a.ackWaiter.OnConnAck(p)
	case *packet.SubAck:
		a.ackWaiter.OnSubAck(p)
	case *packet.UnsubAck:
		a.ackWaiter.OnUnsubAck(p)
	case *packet.PubAck:
		a.qos1.OnPubAck(p.PacketID, true)
	case *packet.PubRec:
		a.qos2.OnPubRec(p.PacketID)
	case *packet.PubComp:
		a.qos2.OnPubComp(p.PacketID)
	case *packet.PingResp:
		// Heartbeat already touched above; nothing further to do.
	case *packet.Publish:
		a.handlePublish(p)
	case *packet.PubRel:
		a.handlePubRel(p)
	case *packet.Disconnect:
		a.logger.Warn("received unexpected server DISCONNECT (MQTT 3.1.1 has no such packet)")
	default:
		return errors.Newf("acking: protocol violation, unexpected packet type %T", pkt)
	}
	return nil
}

func (a *AckingStage) handlePublish(p *packet.Publish) {
	msg := Message{Topic: p.Topic, Payload: p.Payload, QoS: p.QoS, Retain: p.Retain}

	switch p.QoS {
	case packet.QoS0:
		a.router.Dispatch(msg)
	case packet.QoS1:
		now := time.Now()
		if a.dedup.Contains(p.PacketID, now) {
			a.metrics.DedupHit()
		} else {
			a.dedup.Add(p.PacketID, now.Add(a.dedupTTL))
			a.router.Dispatch(msg)
		}
		// A PUBACK is sent on every delivery of this packet id, including
		// retransmissions the broker sends before it sees our first PUBACK.
		a.send(&packet.PubAck{PacketID: p.PacketID})
	case packet.QoS2:
		now := time.Now()
		if a.dedup.Contains(p.PacketID, now) {
			a.metrics.DedupHit()
		} else {
			a.dedup.Add(p.PacketID, now.Add(a.dedupTTL))
			a.router.Dispatch(msg)
		}
		// A PUBREC is sent on every delivery of this packet id, including
		// retransmissions the broker sends before it sees our PUBREC.
		a.send(&packet.PubRec{PacketID: p.PacketID})
	}
}

func (a *AckingStage) handlePubRel(p *packet.PubRel) {
	a.send(&packet.PubComp{PacketID: p.PacketID})
}

func (a *AckingStage) send(p packet.Sized) {
	select {
	case a.outbound <- p:
	default:
		a.logger.Warn("outbound queue full, dropping ack", "type", p.Type())
	}
}
