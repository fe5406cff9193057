// Package session owns one connection's full pipeline (transport, codec
// stages, retry engines), responsible for connecting, replaying
// subscriptions after a reconnect, and deciding when to give up.
package session

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/petabridge/TurboMqtt-sub000/internal/ackwait"
	"github.com/petabridge/TurboMqtt-sub000/internal/dedup"
	"github.com/petabridge/TurboMqtt-sub000/internal/heartbeat"
	"github.com/petabridge/TurboMqtt-sub000/internal/ids"
	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/pipeline"
	"github.com/petabridge/TurboMqtt-sub000/internal/qos1"
	"github.com/petabridge/TurboMqtt-sub000/internal/qos2"
	"github.com/petabridge/TurboMqtt-sub000/internal/transport"
	"github.com/petabridge/TurboMqtt-sub000/internal/waiter"
)

// Status mirrors the supervisor's own Initialising -> Running ->
// Reconnecting -> ... -> Shutdown progression, distinct from the
// per-connection transport.Status it wraps.
type Status int32

const (
	StatusInitialising Status = iota
	StatusRunning
	StatusReconnecting
	StatusShutdown
)

// Supervisor owns one client's entire live connection lifecycle.
type Supervisor struct {
	cfg    Config
	id     uuid.UUID
	router *pipeline.Router

	outbound chan packet.Sized
	ids      ids.Source
	dedup    *dedup.Cache
	qos1     *qos1.Engine
	qos2     *qos2.Engine

	subMu sync.Mutex
	subs  map[string]uint8

	liveMu    sync.RWMutex
	driver    *transport.Driver
	ackWaiter *ackwait.Waiter
	status    Status

	events chan DisconnectEvent

	connectedOnce sync.Once
	connected     chan struct{}

	terminatedOnce sync.Once
	terminated     chan struct{}

	finalMu    sync.Mutex
	finalEvent DisconnectEvent
}

// New creates a Supervisor. Call Run in its own goroutine to start
// connecting.
func New(cfg Config, router *pipeline.Router) *Supervisor {
	cfg = cfg.withDefaults()
	outbound := make(chan packet.Sized, 256)

	s := &Supervisor{
		cfg:      cfg,
		id:       uuid.New(),
		router:   router,
		outbound: outbound,
		dedup:     dedup.New(cfg.DedupCapacity),
		subs:      make(map[string]uint8),
		events:     make(chan DisconnectEvent, 4),
		connected:  make(chan struct{}),
		terminated: make(chan struct{}),
	}
	s.qos1 = qos1.New(qos1.Config{
		RetryInterval: cfg.PublishRetryInterval,
		MaxRetries:    cfg.MaxPublishRetries,
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
	}, outbound)
	s.qos2 = qos2.New(qos2.Config{
		RetryInterval: cfg.PublishRetryInterval,
		MaxRetries:    cfg.MaxPublishRetries,
		Logger:        cfg.Logger,
		Metrics:       cfg.Metrics,
	}, outbound)
	return s
}

// Events reports connection-lifecycle notifications, one per disconnect.
func (s *Supervisor) Events() <-chan DisconnectEvent { return s.events }

// Connected resolves once the first CONNACK has been accepted. It never
// resolves again on subsequent reconnects; callers that need to observe
// every reconnect should use Events instead.
func (s *Supervisor) Connected() <-chan struct{} { return s.connected }

// WhenTerminated resolves once Run has returned for good: no further
// reconnect will be attempted and no further user message will be
// surfaced.
func (s *Supervisor) WhenTerminated() <-chan struct{} { return s.terminated }

func (s *Supervisor) markTerminated() {
	s.terminatedOnce.Do(func() { close(s.terminated) })
}

// setFinalEvent records the DisconnectEvent that caused Run to return for
// good. TerminalEvent reads it back once WhenTerminated has resolved.
func (s *Supervisor) setFinalEvent(ev DisconnectEvent) {
	s.finalMu.Lock()
	s.finalEvent = ev
	s.finalMu.Unlock()
}

// TerminalEvent reports the DisconnectEvent that ended Run. Only
// meaningful after WhenTerminated has resolved; nil if Run never returned.
func (s *Supervisor) TerminalEvent() DisconnectEvent {
	s.finalMu.Lock()
	defer s.finalMu.Unlock()
	return s.finalEvent
}

// Status reports the supervisor's current lifecycle state.
func (s *Supervisor) Status() Status {
	s.liveMu.RLock()
	defer s.liveMu.RUnlock()
	return s.status
}

// Run drives the connect/reconnect loop until ctx is cancelled. The QoS
// retry engines run for the whole lifetime of the call, independent of any
// single connection attempt, so in-flight publishes survive a reconnect.
func (s *Supervisor) Run(ctx context.Context) {
	defer s.markTerminated()
	go s.qos1.Run(ctx)
	go s.qos2.Run(ctx)

	attempts := 0
	for {
		if ctx.Err() != nil {
			s.setStatus(StatusShutdown)
			s.setFinalEvent(DisconnectNormal{})
			s.emit(DisconnectNormal{})
			return
		}

		event, ok, connected := s.runOneConnection(ctx)
		if !ok {
			s.setStatus(StatusShutdown)
			s.setFinalEvent(DisconnectNormal{})
			return
		}
		// A CONNACK was accepted during this attempt, so the budget resets
		// even if the session later disconnected; the next reconnect gets
		// the full budget.
		if connected {
			attempts = 0
		} else {
			attempts++
			s.cfg.Metrics.Reconnect()
		}
		s.emit(event)

		if s.cfg.MaxReconnectAttempts > 0 && attempts >= s.cfg.MaxReconnectAttempts {
			s.setStatus(StatusShutdown)
			final := DisconnectAttemptsExhausted{Attempts: attempts}
			s.setFinalEvent(final)
			s.emit(final)
			return
		}

		s.setStatus(StatusReconnecting)
		if !s.sleepBackoff(ctx, attempts) {
			s.setStatus(StatusShutdown)
			s.setFinalEvent(DisconnectNormal{})
			return
		}
	}
}

// runOneConnection drives a single connect attempt through to its
// termination. It returns ok=false when ctx was cancelled before or during
// the attempt, meaning the caller should stop entirely rather than
// reconnect. connected reports whether a CONNACK was accepted at any point
// during the attempt, regardless of how the attempt subsequently ended;
// the caller uses this to reset the reconnect budget.
func (s *Supervisor) runOneConnection(ctx context.Context) (event DisconnectEvent, ok, connected bool) {
	connectCtx, cancelConnect := context.WithTimeout(ctx, s.cfg.ConnectTimeout)
	defer cancelConnect()

	driver := transport.New(transport.Config{
		ServerURL:    s.cfg.ServerURL,
		Dialer:       s.cfg.Dialer,
		TLSConfig:    s.cfg.TLSConfig,
		MaxFrameSize: s.cfg.MaxFrameSize,
		Logger:       s.cfg.Logger,
	})
	if err := driver.Connect(connectCtx); err != nil {
		return DisconnectTransportError{Err: err}, ctx.Err() == nil, false
	}

	attemptCtx, cancelAttempt := context.WithCancel(ctx)
	defer cancelAttempt()

	decodedCh := make(chan packet.Packet, 128)
	ackWaiter := ackwait.New(ackwait.Config{Timeout: s.cfg.AckTimeout, Logger: s.cfg.Logger})
	hb := heartbeat.New(s.cfg.KeepAlive, s.outbound, s.cfg.Logger)

	decoder := pipeline.NewDecoderStage(driver.Channel().Inbound, decodedCh, s.cfg.MaxIncomingPacket, s.cfg.Metrics, s.cfg.Logger)
	encoder := pipeline.NewEncoderStage(s.outbound, driver.Channel().Outbound, s.cfg.MaxFrameSize, s.cfg.MaxOutgoingPacket, s.cfg.Metrics, s.cfg.Logger)
	acking := pipeline.NewAckingStage(decodedCh, s.outbound, pipeline.Deps{
		Router:    s.router,
		Dedup:     s.dedup,
		DedupTTL:  s.cfg.DedupTTL,
		QoS1:      s.qos1,
		QoS2:      s.qos2,
		AckWaiter: ackWaiter,
		Heartbeat: hb,
		Metrics:   s.cfg.Metrics,
		Logger:    s.cfg.Logger,
	})

	go decoder.Run(attemptCtx)
	go encoder.Run(attemptCtx)
	go acking.Run(attemptCtx)
	go ackWaiter.Run(attemptCtx)
	go hb.Run(attemptCtx)

	s.liveMu.Lock()
	s.driver = driver
	s.ackWaiter = ackWaiter
	s.liveMu.Unlock()

	connectWaiter := waiter.New()
	ackWaiter.AwaitConnect(connectWaiter)
	s.outbound <- s.buildConnectPacket()

	outcome, err := connectWaiter.Wait(connectCtx)
	if err != nil || outcome.Err != nil || outcome.Timeout {
		_ = driver.Abort()
		cancelAttempt()
		if err != nil {
			return DisconnectTransportError{Err: err}, ctx.Err() == nil, false
		}
		return DisconnectServerRequested{}, ctx.Err() == nil, false
	}

	s.setStatus(StatusRunning)
	s.connectedOnce.Do(func() { close(s.connected) })
	s.replaySubscriptions()

	select {
	case <-ctx.Done():
		// Write the DISCONNECT straight to the transport's outbound pipe
		// rather than the outbound packet channel: going through the
		// encoder stage risks losing it to a race against Close tearing the
		// pipe down before the encoder goroutine gets scheduled.
		buf := packet.EncodePackets(nil, &packet.Disconnect{})
		_, _ = driver.Channel().Outbound.Write(buf)
		closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
		_ = driver.Close(closeCtx)
		cancelClose()
		cancelAttempt()
		return DisconnectNormal{}, false, true
	case <-driver.WhenTerminated():
		term := driver.Termination()
		cancelAttempt()
		if term.Err != nil {
			return DisconnectTransportError{Err: term.Err}, true, true
		}
		return DisconnectNormal{}, true, true
	case <-hb.TimedOut():
		_ = driver.Abort()
		cancelAttempt()
		return DisconnectKeepAliveTimeout{}, true, true
	}
}

func (s *Supervisor) buildConnectPacket() *packet.Connect {
	return &packet.Connect{
		CleanSession: s.cfg.CleanSession,
		Will:         s.cfg.Will,
		Username:     s.cfg.Username,
		HasUsername:  s.cfg.HasUsername,
		Password:     s.cfg.Password,
		HasPassword:  s.cfg.HasPassword,
		KeepAlive:    uint16(s.cfg.KeepAlive / time.Second),
		ClientID:     s.cfg.ClientID,
	}
}

// replaySubscriptions resends every saved filter as a single SUBSCRIBE
// packet after a (re)connect, fire-and-forget: the caller already observed
// the original SUBACK, so a failure to replay is logged, not surfaced again.
func (s *Supervisor) replaySubscriptions() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	subs := make([]packet.Subscription, 0, len(s.subs))
	for filter, qos := range s.subs {
		subs = append(subs, packet.Subscription{Filter: filter, QoS: qos})
	}
	s.outbound <- &packet.Subscribe{PacketID: s.ids.Next(), Subs: subs}
}

// Publish sends pkt according to its QoS, blocking until the broker has
// acknowledged it (QoS 1/2) or it has been handed to the outbound pipeline
// (QoS 0).
func (s *Supervisor) Publish(ctx context.Context, pkt *packet.Publish) error {
	switch pkt.QoS {
	case packet.QoS0:
		select {
		case s.outbound <- pkt:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case packet.QoS1:
		pkt.PacketID = s.ids.Next()
		w := waiter.New()
		if err := s.qos1.Submit(ctx, pkt, w); err != nil {
			return err
		}
		s.outbound <- pkt
		outcome, err := w.Wait(ctx)
		if err != nil {
			s.qos1.Cancel(pkt.PacketID)
			return err
		}
		return outcome.Err
	default:
		pkt.PacketID = s.ids.Next()
		w := waiter.New()
		if err := s.qos2.Submit(ctx, pkt, w); err != nil {
			return err
		}
		s.outbound <- pkt
		outcome, err := w.Wait(ctx)
		if err != nil {
			s.qos2.Cancel(pkt.PacketID)
			return err
		}
		return outcome.Err
	}
}

// Subscribe registers handlers and sends a SUBSCRIBE, blocking until the
// matching SUBACK arrives. The saved subscription set is updated here, at
// submit time, not once the SUBACK arrives: a subscribe that ultimately
// fails is still replayed on the next reconnect.
func (s *Supervisor) Subscribe(ctx context.Context, subs []packet.Subscription, handlers map[string]pipeline.Handler) error {
	for filter, h := range handlers {
		s.router.Register(filter, h)
	}

	s.subMu.Lock()
	for _, sub := range subs {
		s.subs[sub.Filter] = sub.QoS
	}
	s.subMu.Unlock()

	s.liveMu.RLock()
	aw := s.ackWaiter
	s.liveMu.RUnlock()
	if aw == nil {
		return errNotConnected
	}

	id := s.ids.Next()
	w := waiter.New()
	aw.AwaitSubscribe(id, w)
	s.outbound <- &packet.Subscribe{PacketID: id, Subs: subs}

	outcome, err := w.Wait(ctx)
	if err != nil {
		return err
	}
	return outcome.Err
}

// Unsubscribe removes filters from the saved subscription set at submit
// time and notifies the broker, blocking until the matching UNSUBACK
// arrives.
func (s *Supervisor) Unsubscribe(ctx context.Context, filters []string) error {
	s.subMu.Lock()
	for _, f := range filters {
		delete(s.subs, f)
		s.router.Unregister(f)
	}
	s.subMu.Unlock()

	s.liveMu.RLock()
	aw := s.ackWaiter
	s.liveMu.RUnlock()
	if aw == nil {
		return errNotConnected
	}

	id := s.ids.Next()
	w := waiter.New()
	aw.AwaitUnsubscribe(id, w)
	s.outbound <- &packet.Unsubscribe{PacketID: id, Filters: filters}

	outcome, err := w.Wait(ctx)
	if err != nil {
		return err
	}
	return outcome.Err
}

func (s *Supervisor) setStatus(st Status) {
	s.liveMu.Lock()
	s.status = st
	s.liveMu.Unlock()
}

func (s *Supervisor) emit(ev DisconnectEvent) {
	select {
	case s.events <- ev:
	default:
	}
}

func (s *Supervisor) sleepBackoff(ctx context.Context, attempts int) bool {
	delay := s.cfg.ReconnectBaseDelay * time.Duration(1<<uint(min(attempts, 10)))
	if delay > s.cfg.ReconnectMaxDelay {
		delay = s.cfg.ReconnectMaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(delay) / 2))
	select {
	case <-time.After(delay/2 + jitter):
		return true
	case <-ctx.Done():
		return false
	}
}
