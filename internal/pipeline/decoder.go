// Package pipeline implements DecoderStage (C6), EncoderStage (C7) and
// AckingStage (C8): the three stages sitting between the raw duplex byte
// channel and the retry engines, each a single-actor loop reading from one
// channel and writing to another.
package pipeline

import (
	"context"
	"log/slog"

	"github.com/petabridge/TurboMqtt-sub000/internal/duplex"
	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/telemetry"
)

// DecoderStage turns the raw inbound byte stream into framed packets,
// preserving any partial-packet residual across reads per the DecodeAll
// contract.
type DecoderStage struct {
	in                *duplex.Pipe
	out               chan<- packet.Packet
	maxIncomingPacket int
	metrics           *telemetry.Metrics
	logger            *slog.Logger
}

func NewDecoderStage(in *duplex.Pipe, out chan<- packet.Packet, maxIncomingPacket int, metrics *telemetry.Metrics, logger *slog.Logger) *DecoderStage {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &DecoderStage{in: in, out: out, maxIncomingPacket: maxIncomingPacket, metrics: metrics, logger: logger.With("component", "decoder")}
}

// Run reads from the inbound pipe until it closes or ctx is cancelled,
// decoding and forwarding complete packets in wire order. It returns the
// terminal error (io.EOF on a clean shutdown).
func (d *DecoderStage) Run(ctx context.Context) error {
	var residual []byte
	readBuf := make([]byte, 32*1024)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n, err := d.in.Read(readBuf)
		if n > 0 {
			residual = append(residual, readBuf[:n]...)
			pkts, consumed, derr := packet.DecodeAll(residual, d.maxIncomingPacket)
			if derr != nil {
				return derr
			}
			residual = residual[consumed:]
			for _, pkt := range pkts {
				d.metrics.PacketReceived()
				select {
				case d.out <- pkt:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if err != nil {
			return err
		}
	}
}
