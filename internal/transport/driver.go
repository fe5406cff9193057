// Package transport owns the socket: it shuttles bytes between a net.Conn
// (or an injected ContextDialer, including an in-memory loopback for
// tests) and a duplex.Channel, and reduces every failure mode to a single
// Termination signal observed through WhenTerminated.
package transport

import (
	"context"
	"crypto/tls"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/petabridge/TurboMqtt-sub000/internal/duplex"
)

// Config configures a Driver. ServerURL and Dialer are mutually
// complementary: when Dialer is set its DialContext decides everything and
// ServerURL is passed through verbatim as the address.
type Config struct {
	ServerURL    string
	Dialer       ContextDialer
	TLSConfig    *tls.Config
	MaxFrameSize int
	Logger       *slog.Logger
}

// Driver owns a single connection's byte-level lifecycle end to end.
type Driver struct {
	cfg    Config
	logger *slog.Logger

	statusBox
	channel *duplex.Channel

	connMu sync.Mutex
	conn   io.ReadWriteCloser

	terminated     chan struct{}
	terminatedOnce sync.Once
	termination    atomic.Pointer[Termination]

	writesDrained chan struct{}
	cancelLife    context.CancelFunc

	bytesSent     atomic.Uint64
	bytesReceived atomic.Uint64
}

// New creates a Driver in state NotStarted.
func New(cfg Config) *Driver {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxFrameSize <= 0 {
		cfg.MaxFrameSize = 64 * 1024
	}
	return &Driver{
		cfg:           cfg,
		logger:        cfg.Logger.With("component", "transport"),
		terminated:    make(chan struct{}),
		writesDrained: make(chan struct{}),
	}
}

// Status returns the driver's current lifecycle state.
func (d *Driver) Status() Status { return d.get() }

// Channel returns the duplex byte channel bound to this driver's
// connection. Valid only once Connect has returned successfully.
func (d *Driver) Channel() *duplex.Channel { return d.channel }

// MaxFrameSize returns the configured outbound batching ceiling.
func (d *Driver) MaxFrameSize() int { return d.cfg.MaxFrameSize }

// Stats returns cumulative bytes shuttled in each direction.
func (d *Driver) Stats() (sent, received uint64) {
	return d.bytesSent.Load(), d.bytesReceived.Load()
}

// WhenTerminated resolves once the driver's read/write loops have both
// exited, for any reason.
func (d *Driver) WhenTerminated() <-chan struct{} { return d.terminated }

// Termination returns the reason the driver terminated. Only meaningful
// after WhenTerminated has resolved.
func (d *Driver) Termination() Termination {
	if t := d.termination.Load(); t != nil {
		return *t
	}
	return Termination{Reason: ReasonNone}
}

// Connect dials the server (or invokes the injected dialer), wires up the
// duplex channel, and starts the read/write loop pair supervised by an
// errgroup: either loop's terminal error cancels the other and is surfaced
// exactly once through WhenTerminated.
func (d *Driver) Connect(ctx context.Context) error {
	d.set(Connecting)
	conn, err := dial(ctx, d.cfg)
	if err != nil {
		d.set(Failed)
		d.finish(Termination{Reason: ReasonTransportError, Err: err})
		return err
	}

	d.connMu.Lock()
	d.conn = conn
	d.connMu.Unlock()
	d.channel = duplex.New(d.cfg.MaxFrameSize)
	d.set(Connected)

	lifeCtx, cancel := context.WithCancel(context.Background())
	d.cancelLife = cancel
	group, _ := errgroup.WithContext(lifeCtx)
	// Whichever loop exits first closes the duplex channel, so the other
	// loop (parked on the in-memory pipe, not the socket) wakes up too.
	// Without this, a peer that closes its write side while we have
	// nothing queued to send leaves the write loop blocked forever even
	// though the read loop has already seen EOF.
	group.Go(func() error {
		err := d.readLoop(lifeCtx)
		d.channel.CloseWithError(err)
		return err
	})
	group.Go(func() error {
		err := d.writeLoop(lifeCtx)
		d.channel.CloseWithError(err)
		return err
	})

	go d.supervise(group)
	return nil
}

func (d *Driver) supervise(group *errgroup.Group) {
	err := group.Wait()
	reason := ReasonReadFinished
	switch {
	case err == nil:
		reason = d.currentReason(ReasonReadFinished)
	default:
		reason = ReasonTransportError
	}
	if d.get() != Aborted {
		if err != nil {
			d.set(Failed)
		} else {
			d.set(Disconnected)
		}
	}
	d.finish(Termination{Reason: reason, Err: err})
}

// currentReason lets Close's graceful path pre-seed ReasonNormal before the
// loops unwind, so a clean shutdown doesn't get reported as ReadFinished.
func (d *Driver) currentReason(def Reason) Reason {
	if d.get() == Aborted {
		return ReasonAborted
	}
	if t := d.termination.Load(); t != nil {
		return t.Reason
	}
	return def
}

func (d *Driver) finish(t Termination) {
	d.terminatedOnce.Do(func() {
		d.termination.Store(&t)
		close(d.terminated)
	})
	if d.channel != nil {
		d.channel.CloseWithError(t.Err)
	}
}

func (d *Driver) readLoop(ctx context.Context) error {
	d.connMu.Lock()
	conn := d.conn
	d.connMu.Unlock()

	buf := make([]byte, 32*1024)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			d.bytesReceived.Add(uint64(n))
			if _, werr := d.channel.Inbound.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

func (d *Driver) writeLoop(ctx context.Context) error {
	d.connMu.Lock()
	conn := d.conn
	d.connMu.Unlock()

	buf := make([]byte, 32*1024)
	for {
		n, err := d.channel.Outbound.Read(buf)
		if n > 0 {
			written := 0
			for written < n {
				m, werr := conn.Write(buf[written:n])
				written += m
				if werr != nil {
					return werr
				}
			}
			d.bytesSent.Add(uint64(n))
		}
		if err != nil {
			if err == io.EOF {
				close(d.writesDrained)
				return nil
			}
			return err
		}
	}
}

// WaitForPendingWrites blocks until the write loop has drained the
// outbound pipe and exited, or ctx is done first.
func (d *Driver) WaitForPendingWrites(ctx context.Context) error {
	select {
	case <-d.writesDrained:
		return nil
	case <-d.terminated:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close gracefully shuts the transport down: it closes the outbound pipe
// (signalling the write loop to drain and exit), waits up to the context
// deadline for pending writes, then closes the socket.
func (d *Driver) Close(ctx context.Context) error {
	d.set(Disconnected)
	normal := Termination{Reason: ReasonNormal}
	d.termination.Store(&normal)
	if d.channel != nil {
		d.channel.Outbound.CloseWithError(io.EOF)
	}
	_ = d.WaitForPendingWrites(ctx)
	return d.closeConn()
}

// Abort tears the transport down immediately without waiting for pending
// writes, used when a graceful Close times out or the caller needs an
// unconditional teardown. It closes the duplex channel itself rather than
// relying on the socket close alone: the write loop parks on the outbound
// pipe, not the conn, so an idle writer would otherwise never observe the
// abort and the read/write pair would never both return.
func (d *Driver) Abort() error {
	d.set(Aborted)
	if d.cancelLife != nil {
		d.cancelLife()
	}
	if d.channel != nil {
		d.channel.CloseWithError(io.ErrClosedPipe)
	}
	return d.closeConn()
}

func (d *Driver) closeConn() error {
	d.connMu.Lock()
	conn := d.conn
	d.connMu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
