// Package turbomqtt implements an MQTT 3.1.1 client: packet codec,
// per-QoS reliability engines, a reconnecting session supervisor, and a
// small facade tying them together.
package turbomqtt

import (
	"context"
	"sync"
	"time"

	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/pipeline"
	"github.com/petabridge/TurboMqtt-sub000/internal/session"
	"github.com/petabridge/TurboMqtt-sub000/internal/topic"
)

// ClientStats holds a Client's statistics. Client.Stats leaves BytesSent
// and BytesReceived at zero; Reconnects counts the disconnect events the
// session has reported.
type ClientStats struct {
	BytesSent     uint64
	BytesReceived uint64
	Reconnects    int
}

// Client is the public MQTT 3.1.1 client facade.
type Client struct {
	opts *options
	sup  *session.Supervisor

	startOnce sync.Once
	cancel    context.CancelFunc

	mu         sync.Mutex
	reconnects int

	whenTerminatedOnce sync.Once
	whenTerminated     chan ReasonCode
}

// New constructs a Client from opts. It does not connect; call Connect.
func New(opts ...Option) (*Client, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if err := topic.ValidateClientID(o.clientID); err != nil {
		return nil, newError("new", KindProtocol, err)
	}

	router := pipeline.NewRouter()
	for filter, h := range o.initialSubscriptions {
		router.Register(filter, h)
	}
	if o.defaultHandler != nil {
		router.Register("#", o.defaultHandler)
	}

	cfg := session.Config{
		ServerURL:            o.serverURL,
		Dialer:               o.dialer,
		TLSConfig:            o.tlsConfig,
		ClientID:             o.clientID,
		CleanSession:         o.cleanSession,
		Username:             o.username,
		HasUsername:          o.hasUsername,
		Password:             o.password,
		HasPassword:          o.hasPassword,
		Will:                 o.will,
		KeepAlive:            o.keepAlive,
		MaxFrameSize:         o.maxFrameSize,
		MaxOutgoingPacket:    o.maxPacketSize,
		PublishRetryInterval: o.publishRetryInterval,
		MaxPublishRetries:    o.maxPublishRetries,
		DedupCapacity:        o.dedupCapacity,
		DedupTTL:             o.dedupTTL,
		MaxReconnectAttempts: o.maxReconnectAttempts,
		ConnectTimeout:       o.connectTimeout,
		AckTimeout:           o.ackTimeout,
		Logger:               o.logger,
		Metrics:              o.metrics,
	}

	c := &Client{
		opts:           o,
		sup:            session.New(cfg, router),
		whenTerminated: make(chan ReasonCode, 1),
	}
	return c, nil
}

// Connect starts the session supervisor and blocks until the first CONNECT
// attempt succeeds, ctx is cancelled, or the configured connect timeout
// elapses.
func (c *Client) Connect(ctx context.Context) error {
	c.startOnce.Do(func() {
		runCtx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		go c.sup.Run(runCtx)
		go c.watchEvents()
		go c.watchTermination()
	})

	connectCtx := ctx
	if c.opts.connectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, c.opts.connectTimeout)
		defer cancel()
	}

	select {
	case <-c.sup.Connected():
		if c.opts.onConnect != nil {
			c.opts.onConnect(c)
		}
		return nil
	case <-connectCtx.Done():
		return newError("connect", KindTimeout, connectCtx.Err())
	}
}

func (c *Client) watchEvents() {
	for ev := range c.sup.Events() {
		c.mu.Lock()
		c.reconnects++
		c.mu.Unlock()
		if c.opts.onConnectionLost != nil {
			c.opts.onConnectionLost(c, disconnectEventToError(ev))
		}
	}
}

// Publish sends payload to topicName. QoS0 returns once the packet has
// been handed to the outbound pipeline; QoS1/2 blocks until the broker has
// acknowledged it.
func (c *Client) Publish(ctx context.Context, topicName string, payload []byte, qos QoS, retain bool) error {
	if err := topic.ValidatePublish(topicName, topic.Limit(c.opts.maxPacketSize, topic.DefaultMaxTopicLength)); err != nil {
		return newError("publish", KindProtocol, err)
	}
	if err := topic.ValidatePayload(payload, topic.Limit(c.opts.maxPacketSize, topic.DefaultMaxPayloadSize)); err != nil {
		return newError("publish", KindProtocol, err)
	}
	pkt := &packet.Publish{QoS: uint8(qos), Topic: topicName, Payload: payload, Retain: retain}
	if err := c.sup.Publish(ctx, pkt); err != nil {
		return newError("publish", classifyErr(ctx, err), err)
	}
	return nil
}

// Subscribe requests delivery for each filter at its requested QoS,
// dispatching matching messages to h.
func (c *Client) Subscribe(ctx context.Context, subs []Subscription, h Handler) error {
	pkts := make([]packet.Subscription, len(subs))
	handlers := make(map[string]Handler, len(subs))
	for i, s := range subs {
		if err := topic.ValidateFilter(s.Filter, topic.Limit(c.opts.maxPacketSize, topic.DefaultMaxTopicLength)); err != nil {
			return newError("subscribe", KindProtocol, err)
		}
		pkts[i] = packet.Subscription{Filter: s.Filter, QoS: uint8(s.QoS)}
		handlers[s.Filter] = h
	}
	if err := c.sup.Subscribe(ctx, pkts, handlers); err != nil {
		return newError("subscribe", classifyErr(ctx, err), err)
	}
	return nil
}

// Unsubscribe removes filters.
func (c *Client) Unsubscribe(ctx context.Context, filters ...string) error {
	if err := c.sup.Unsubscribe(ctx, filters); err != nil {
		return newError("unsubscribe", classifyErr(ctx, err), err)
	}
	return nil
}

// Disconnect ends the session gracefully: no further reconnect is
// attempted and subsequent calls fail fast. It blocks until the supervisor
// has fully wound down or ctx is cancelled, whichever comes first, and
// returns a timeout error if neither happens within 5 seconds.
func (c *Client) Disconnect(ctx context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}
	select {
	case <-c.sup.WhenTerminated():
		return nil
	case <-ctx.Done():
		return newError("disconnect", KindUserCancellation, ctx.Err())
	case <-time.After(5 * time.Second):
		return newError("disconnect", KindTimeout, nil)
	}
}

// Stats reports the number of disconnect events the session has reported
// (every one, including the final attempts-exhausted event) as Reconnects;
// the byte counters are not populated and stay zero.
func (c *Client) Stats() ClientStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ClientStats{Reconnects: c.reconnects}
}

// WhenTerminated resolves once, with the terminal ReasonCode, once the
// session has wound down for good: no further reconnect will be attempted
// and no further user message will be surfaced. It delivers exactly one
// value and is safe to read from multiple goroutines.
func (c *Client) WhenTerminated() <-chan ReasonCode {
	return c.whenTerminated
}

func (c *Client) watchTermination() {
	<-c.sup.WhenTerminated()
	c.whenTerminatedOnce.Do(func() {
		c.whenTerminated <- reasonCodeFromEvent(c.sup.TerminalEvent())
	})
}

func reasonCodeFromEvent(ev session.DisconnectEvent) ReasonCode {
	switch ev.(type) {
	case session.DisconnectNormal:
		return ReasonNormalDisconnection
	case session.DisconnectKeepAliveTimeout:
		return ReasonKeepAliveTimeout
	case session.DisconnectServerRequested:
		return ReasonProtocolError
	case session.DisconnectTransportError:
		return ReasonCouldNotConnect
	case session.DisconnectAttemptsExhausted:
		return ReasonUnspecifiedError
	default:
		return ReasonUnspecifiedError
	}
}

func classifyErr(ctx context.Context, err error) Kind {
	if ctx.Err() != nil {
		return KindUserCancellation
	}
	return KindProtocol
}

func disconnectEventToError(ev session.DisconnectEvent) error {
	switch e := ev.(type) {
	case session.DisconnectTransportError:
		return newError("session", KindTransport, e.Err)
	case session.DisconnectKeepAliveTimeout:
		return newError("session", KindTimeout, nil)
	case session.DisconnectServerRequested:
		return newError("session", KindProtocol, nil)
	case session.DisconnectAttemptsExhausted:
		return newError("session", KindTimeout, nil)
	default:
		return nil
	}
}
