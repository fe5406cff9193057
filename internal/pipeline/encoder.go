package pipeline

import (
	"context"
	"log/slog"

	"github.com/petabridge/TurboMqtt-sub000/internal/duplex"
	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/telemetry"
)

// EncoderStage batches outgoing packets into frames no larger than
// maxFrameSize before handing them to the outbound pipe, draining whatever
// is already queued on each wakeup rather than writing one packet at a
// time.
type EncoderStage struct {
	in            <-chan packet.Sized
	out           *duplex.Pipe
	maxFrameSize  int
	maxPacketSize int
	metrics       *telemetry.Metrics
	logger        *slog.Logger
}

func NewEncoderStage(in <-chan packet.Sized, out *duplex.Pipe, maxFrameSize, maxPacketSize int, metrics *telemetry.Metrics, logger *slog.Logger) *EncoderStage {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if maxFrameSize <= 0 {
		maxFrameSize = 64 * 1024
	}
	return &EncoderStage{
		in:            in,
		out:           out,
		maxFrameSize:  maxFrameSize,
		maxPacketSize: maxPacketSize,
		metrics:       metrics,
		logger:        logger.With("component", "encoder"),
	}
}

// Run drains in and flushes encoded frames to out until ctx is cancelled or
// in closes.
func (e *EncoderStage) Run(ctx context.Context) error {
	for {
		var first packet.Sized
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p, ok := <-e.in:
			if !ok {
				return nil
			}
			first = p
		}

		batch := []packet.Sized{first}
		pending := e.drainAvailable()
		batch = append(batch, pending...)

		buf := make([]byte, 0, e.maxFrameSize)
		runningSize := 0
		var frame []packet.Sized
		flush := func() {
			if len(frame) == 0 {
				return
			}
			buf = packet.EncodePackets(buf[:0], frame...)
			if _, err := e.out.Write(buf); err != nil {
				e.logger.Warn("outbound pipe write failed", "error", err)
			} else {
				for range frame {
					e.metrics.PacketSent()
				}
			}
			frame = frame[:0]
			runningSize = 0
		}

		for _, p := range batch {
			size := p.EstimateSize()
			if e.maxPacketSize > 0 && size > e.maxPacketSize {
				e.logger.Warn("dropping outbound packet exceeding max packet size", "type", p.Type(), "size", size)
				continue
			}
			if runningSize+size > e.maxFrameSize && len(frame) > 0 {
				flush()
			}
			frame = append(frame, p)
			runningSize += size
		}
		flush()
	}
}

func (e *EncoderStage) drainAvailable() []packet.Sized {
	var extra []packet.Sized
	for {
		select {
		case p, ok := <-e.in:
			if !ok {
				return extra
			}
			extra = append(extra, p)
		default:
			return extra
		}
	}
}
