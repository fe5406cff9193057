package turbomqtt

import (
	"crypto/tls"
	"log/slog"
	"time"

	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/pipeline"
	"github.com/petabridge/TurboMqtt-sub000/internal/transport"
)

// QoS is the MQTT delivery guarantee requested for a publish or a
// subscription.
type QoS uint8

const (
	AtMostOnce  QoS = QoS(packet.QoS0)
	AtLeastOnce QoS = QoS(packet.QoS1)
	ExactlyOnce QoS = QoS(packet.QoS2)
)

// ContextDialer is the custom-dialer escape hatch; the in-memory loopback
// transport used by this module's own tests is wired through it.
type ContextDialer = transport.ContextDialer

// Message is one inbound PUBLISH delivered to a subscription Handler.
type Message = pipeline.Message

// Handler receives messages matching a subscribed filter.
type Handler = pipeline.Handler

// Subscription pairs a topic filter with the QoS requested for it.
type Subscription struct {
	Filter string
	QoS    QoS
}

type options struct {
	serverURL    string
	clientID     string
	username     string
	hasUsername  bool
	password     string
	hasPassword  bool
	cleanSession bool
	keepAlive    time.Duration
	will         *packet.Will

	maxPublishRetries    int
	publishRetryInterval time.Duration

	dedupCapacity int
	dedupTTL      time.Duration

	maxReconnectAttempts int
	maxFrameSize         int
	maxPacketSize        int

	tlsConfig      *tls.Config
	connectTimeout time.Duration
	ackTimeout     time.Duration

	logger  *slog.Logger
	dialer  ContextDialer
	metrics *Metrics

	onConnect        func(*Client)
	onConnectionLost func(*Client, error)

	defaultHandler       Handler
	initialSubscriptions map[string]Handler
}

func defaultOptions() *options {
	return &options{
		cleanSession:   true,
		keepAlive:      30 * time.Second,
		connectTimeout: 10 * time.Second,
	}
}

// Option configures a Client constructed with New.
type Option func(*options)

func WithServerURL(url string) Option {
	return func(o *options) { o.serverURL = url }
}

func WithClientID(id string) Option {
	return func(o *options) { o.clientID = id }
}

func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.hasUsername = true
		o.password = password
		o.hasPassword = true
	}
}

func WithCleanSession(clean bool) Option {
	return func(o *options) { o.cleanSession = clean }
}

func WithKeepAlive(d time.Duration) Option {
	return func(o *options) { o.keepAlive = d }
}

func WithWill(topic string, payload []byte, qos QoS, retain bool) Option {
	return func(o *options) {
		o.will = &packet.Will{Topic: topic, Message: payload, QoS: uint8(qos), Retain: retain}
	}
}

func WithMaxPublishRetries(n int) Option {
	return func(o *options) { o.maxPublishRetries = n }
}

func WithPublishRetryInterval(d time.Duration) Option {
	return func(o *options) { o.publishRetryInterval = d }
}

func WithDedupCapacity(n int) Option {
	return func(o *options) { o.dedupCapacity = n }
}

func WithDedupTTL(d time.Duration) Option {
	return func(o *options) { o.dedupTTL = d }
}

func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) { o.maxReconnectAttempts = n }
}

func WithMaxFrameSize(n int) Option {
	return func(o *options) { o.maxFrameSize = n }
}

func WithMaxPacketSize(n int) Option {
	return func(o *options) { o.maxPacketSize = n }
}

func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *options) { o.tlsConfig = cfg }
}

func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) { o.connectTimeout = d }
}

func WithAckTimeout(d time.Duration) Option {
	return func(o *options) { o.ackTimeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithDialer(dialer ContextDialer) Option {
	return func(o *options) { o.dialer = dialer }
}

func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

func WithOnConnect(fn func(*Client)) Option {
	return func(o *options) { o.onConnect = fn }
}

func WithOnConnectionLost(fn func(*Client, error)) Option {
	return func(o *options) { o.onConnectionLost = fn }
}

// WithDefaultPublishHandler registers h under the "#" filter, so it is
// invoked for every inbound PUBLISH whose topic does not begin with '$',
// whether or not another subscription also matches it.
func WithDefaultPublishHandler(h Handler) Option {
	return func(o *options) { o.defaultHandler = h }
}

// WithSubscription registers a handler for filter in the client's router
// before Connect is ever called. It only routes inbound PUBLISHes: no
// SUBSCRIBE is sent for filter and it is not added to the subscriptions
// replayed after a CONNACK.
func WithSubscription(filter string, h Handler) Option {
	return func(o *options) {
		if o.initialSubscriptions == nil {
			o.initialSubscriptions = make(map[string]Handler)
		}
		o.initialSubscriptions[filter] = h
	}
}
