// Package duplex implements a transport-agnostic duplex byte channel: two
// independent, watermarked byte pipes (application→transport and
// transport→application) whose completion is linked through Channel.Close
// and Channel.CloseWithError, which close both halves; closing one Pipe on
// its own leaves the other open. TransportDriver owns one of these per
// connection; DecoderStage and EncoderStage are handed read-only/write-only
// references to the half they need.
package duplex

import (
	"io"
	"sync"
)

// Scale computes the pause-on-write watermark for a given MaxFrameSize:
// small frames get a generous fixed cushion, larger frames simply double.
func Scale(maxFrameSize int) int {
	const kib = 1024
	const mib = 1024 * kib
	switch {
	case maxFrameSize <= 128*kib:
		return 512 * kib
	case maxFrameSize <= 1*mib:
		return 2 * mib
	default:
		return 2 * maxFrameSize
	}
}

// Channel is a pair of watermarked byte pipes with linked completion.
type Channel struct {
	Outbound *Pipe // application -> transport (EncoderStage writes, TransportDriver drains)
	Inbound  *Pipe // transport -> application (TransportDriver writes, DecoderStage drains)
}

// New creates a Channel whose pause threshold is derived from maxFrameSize
// via Scale.
func New(maxFrameSize int) *Channel {
	threshold := Scale(maxFrameSize)
	c := &Channel{
		Outbound: newPipe(threshold),
		Inbound:  newPipe(threshold),
	}
	return c
}

// Close tears down both halves with io.EOF, used on graceful shutdown.
func (c *Channel) Close() {
	c.Outbound.CloseWithError(io.EOF)
	c.Inbound.CloseWithError(io.EOF)
}

// CloseWithError tears down both halves with err, used when the transport
// terminates abnormally; both halves then report err to their readers once
// drained.
func (c *Channel) CloseWithError(err error) {
	c.Outbound.CloseWithError(err)
	c.Inbound.CloseWithError(err)
}

// Pipe is one direction of a Channel: an unbounded byte queue with a
// pause/resume watermark. Write never blocks; Paused reports whether the
// queue has grown past pauseThreshold so writers can apply their own
// backpressure (no stage in this module polls Paused; writes are never
// held back by it). Read blocks until data is available or
// the pipe is closed.
type Pipe struct {
	mu        sync.Mutex
	cond      *sync.Cond
	buf       []byte
	threshold int
	paused    bool
	closeErr  error
	closed    bool
}

func newPipe(threshold int) *Pipe {
	p := &Pipe{threshold: threshold}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Write appends p to the pipe's queue. It never blocks; callers that care
// about backpressure check Paused.
func (pp *Pipe) Write(p []byte) (int, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		return 0, io.ErrClosedPipe
	}
	pp.buf = append(pp.buf, p...)
	if len(pp.buf) > pp.threshold {
		pp.paused = true
	}
	pp.cond.Broadcast()
	return len(p), nil
}

// Read blocks until at least one byte is available, then drains as much as
// fits into p. It returns the pipe's close error (io.EOF on graceful close)
// once the queue is empty and the pipe is closed.
func (pp *Pipe) Read(p []byte) (int, error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	for len(pp.buf) == 0 {
		if pp.closed {
			return 0, pp.closeErr
		}
		pp.cond.Wait()
	}
	n := copy(p, pp.buf)
	pp.buf = pp.buf[n:]
	if pp.paused && len(pp.buf) <= pp.threshold/2 {
		pp.paused = false
	}
	return n, nil
}

// Paused reports whether queued bytes exceed the pause watermark.
func (pp *Pipe) Paused() bool {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return pp.paused
}

// Len reports the number of queued, unread bytes.
func (pp *Pipe) Len() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.buf)
}

// CloseWithError marks the pipe closed; pending and future Reads drain
// remaining buffered bytes first, then return err (io.EOF for a graceful
// close). Idempotent.
func (pp *Pipe) CloseWithError(err error) {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if pp.closed {
		return
	}
	if err == nil {
		err = io.EOF
	}
	pp.closed = true
	pp.closeErr = err
	pp.cond.Broadcast()
}
