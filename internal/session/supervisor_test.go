package session_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/pipeline"
	"github.com/petabridge/TurboMqtt-sub000/internal/session"
)

// brokerConn wraps one side of a net.Pipe with a small framing-aware
// helper so tests can read/write whole MQTT packets without reimplementing
// DecodeAll's residual bookkeeping inline.
type brokerConn struct {
	conn    net.Conn
	buf     []byte
	pending []packet.Packet
}

func newBrokerConn(conn net.Conn) *brokerConn {
	return &brokerConn{conn: conn}
}

func (b *brokerConn) next(t *testing.T, d time.Duration) packet.Packet {
	t.Helper()
	_ = b.conn.SetReadDeadline(time.Now().Add(d))
	for len(b.pending) == 0 {
		tmp := make([]byte, 4096)
		n, err := b.conn.Read(tmp)
		require.NoError(t, err)
		b.buf = append(b.buf, tmp[:n]...)
		pkts, consumed, derr := packet.DecodeAll(b.buf, 0)
		require.NoError(t, derr)
		b.buf = b.buf[consumed:]
		b.pending = append(b.pending, pkts...)
	}
	p := b.pending[0]
	b.pending = b.pending[1:]
	return p
}

func (b *brokerConn) send(t *testing.T, p packet.Sized) {
	t.Helper()
	buf := packet.EncodePackets(nil, p)
	_, err := b.conn.Write(buf)
	require.NoError(t, err)
}

// singleDialer hands out one fixed client-side conn, like transport.Loopback.
type singleDialer struct{ clientConn net.Conn }

func (d *singleDialer) DialContext(_ context.Context, _, _ string) (net.Conn, error) {
	return d.clientConn, nil
}

// multiDialer creates a fresh net.Pipe pair on every dial, handing the
// server half to serverConns, simulating a broker accepting successive
// reconnects on a fresh TCP connection each time.
type multiDialer struct {
	serverConns chan net.Conn
}

func newMultiDialer() *multiDialer {
	return &multiDialer{serverConns: make(chan net.Conn, 8)}
}

func (d *multiDialer) DialContext(_ context.Context, _, _ string) (net.Conn, error) {
	client, server := net.Pipe()
	d.serverConns <- server
	return client, nil
}

func baseConfig(dialer *singleDialer) session.Config {
	return session.Config{
		ServerURL:            "tcp://broker",
		Dialer:               dialer,
		ClientID:             "test-client",
		CleanSession:         true,
		PublishRetryInterval: 50 * time.Millisecond,
		MaxPublishRetries:    3,
		ConnectTimeout:       2 * time.Second,
		AckTimeout:           2 * time.Second,
	}
}

func acceptConnect(t *testing.T, b *brokerConn) {
	t.Helper()
	pkt := b.next(t, 2*time.Second)
	_, ok := pkt.(*packet.Connect)
	require.True(t, ok, "expected CONNECT, got %T", pkt)
	b.send(t, &packet.ConnAck{ReturnCode: packet.ConnAccepted})
}

func TestSupervisorPublishQoS1RoundTrip(t *testing.T) {
	dialer := &singleDialer{}
	client, server := net.Pipe()
	dialer.clientConn = client
	b := newBrokerConn(server)

	router := pipeline.NewRouter()
	sup := session.New(baseConfig(dialer), router)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	acceptConnect(t, b)

	publishDone := make(chan error, 1)
	go func() {
		publishDone <- sup.Publish(context.Background(), &packet.Publish{QoS: packet.QoS1, Topic: "t", Payload: []byte("hello")})
	}()

	pub := b.next(t, 2*time.Second).(*packet.Publish)
	assert.Equal(t, "t", pub.Topic)
	assert.False(t, pub.Dup)
	b.send(t, &packet.PubAck{PacketID: pub.PacketID})

	select {
	case err := <-publishDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Publish did not complete")
	}

	// No retry should ever have been sent.
	assertNoMoreTraffic(t, b, 200*time.Millisecond)
}

// assertNoMoreTraffic fails the test if any further bytes arrive on b
// within d; used to assert "no retry was sent" without hanging the test on
// an idle pipe.
func assertNoMoreTraffic(t *testing.T, b *brokerConn, d time.Duration) {
	t.Helper()
	_ = b.conn.SetReadDeadline(time.Now().Add(d))
	tmp := make([]byte, 64)
	n, err := b.conn.Read(tmp)
	if err != nil {
		return // deadline exceeded, as expected
	}
	t.Fatalf("unexpected %d extra bytes on the wire", n)
}

func TestSupervisorPublishQoS1RetriesThenTimesOut(t *testing.T) {
	dialer := &singleDialer{}
	client, server := net.Pipe()
	dialer.clientConn = client
	b := newBrokerConn(server)

	cfg := baseConfig(dialer)
	cfg.PublishRetryInterval = 0
	cfg.MaxPublishRetries = 3
	router := pipeline.NewRouter()
	sup := session.New(cfg, router)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	acceptConnect(t, b)

	publishDone := make(chan error, 1)
	go func() {
		publishDone <- sup.Publish(context.Background(), &packet.Publish{QoS: packet.QoS1, Topic: "t", Payload: []byte("x")})
	}()

	// Original send, never acked by the broker.
	first := b.next(t, 2*time.Second).(*packet.Publish)
	assert.False(t, first.Dup)

	for i := 0; i < 3; i++ {
		retry := b.next(t, 3*time.Second).(*packet.Publish)
		assert.True(t, retry.Dup, "retry %d should carry DUP", i)
		assert.Equal(t, first.PacketID, retry.PacketID)
	}

	select {
	case err := <-publishDone:
		assert.Error(t, err, "publish should report a timeout once retries are exhausted")
	case <-time.After(3 * time.Second):
		t.Fatal("Publish never returned after retries were exhausted")
	}
}

func TestSupervisorPublishQoS2Handshake(t *testing.T) {
	dialer := &singleDialer{}
	client, server := net.Pipe()
	dialer.clientConn = client
	b := newBrokerConn(server)

	router := pipeline.NewRouter()
	sup := session.New(baseConfig(dialer), router)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	acceptConnect(t, b)

	publishDone := make(chan error, 1)
	go func() {
		publishDone <- sup.Publish(context.Background(), &packet.Publish{QoS: packet.QoS2, Topic: "t", Payload: []byte("x")})
	}()

	pub := b.next(t, 2*time.Second).(*packet.Publish)
	assert.Equal(t, uint8(packet.QoS2), pub.QoS)
	b.send(t, &packet.PubRec{PacketID: pub.PacketID})

	rel := b.next(t, 2*time.Second).(*packet.PubRel)
	assert.Equal(t, pub.PacketID, rel.PacketID)
	b.send(t, &packet.PubComp{PacketID: pub.PacketID})

	select {
	case err := <-publishDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Publish did not complete")
	}
}

func TestSupervisorInboundDedupQoS2(t *testing.T) {
	dialer := &singleDialer{}
	client, server := net.Pipe()
	dialer.clientConn = client
	b := newBrokerConn(server)

	router := pipeline.NewRouter()
	delivered := make(chan pipeline.Message, 4)
	router.Register("t", func(m pipeline.Message) { delivered <- m })

	sup := session.New(baseConfig(dialer), router)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	acceptConnect(t, b)

	dup := &packet.Publish{QoS: packet.QoS2, Topic: "t", PacketID: 7, Payload: []byte("x")}
	b.send(t, dup)
	rec1 := b.next(t, 2*time.Second).(*packet.PubRec)
	assert.Equal(t, uint16(7), rec1.PacketID)

	b.send(t, dup)
	rec2 := b.next(t, 2*time.Second).(*packet.PubRec)
	assert.Equal(t, uint16(7), rec2.PacketID)

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("expected one delivery")
	}
	select {
	case m := <-delivered:
		t.Fatalf("duplicate delivery must be suppressed, got %+v", m)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSupervisorKeepAliveTimeout(t *testing.T) {
	dialer := &singleDialer{}
	client, server := net.Pipe()
	dialer.clientConn = client
	b := newBrokerConn(server)

	cfg := baseConfig(dialer)
	cfg.KeepAlive = 300 * time.Millisecond
	router := pipeline.NewRouter()
	sup := session.New(cfg, router)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	acceptConnect(t, b)

	var gotKeepAliveTimeout bool
	select {
	case ev := <-sup.Events():
		_, gotKeepAliveTimeout = ev.(session.DisconnectKeepAliveTimeout)
	case <-time.After(2 * cfg.KeepAlive * 5):
		t.Fatal("expected a disconnect event from the keep-alive monitor")
	}
	assert.True(t, gotKeepAliveTimeout, "expected DisconnectKeepAliveTimeout")
}

func TestSupervisorReconnectReplaysSubscriptions(t *testing.T) {
	dialer := newMultiDialer()
	router := pipeline.NewRouter()
	delivered := make(chan pipeline.Message, 4)
	router.Register("a/b", func(m pipeline.Message) { delivered <- m })

	cfg := session.Config{
		ServerURL:          "tcp://broker",
		Dialer:             dialer,
		ClientID:           "reconnect-client",
		CleanSession:       true,
		ConnectTimeout:     2 * time.Second,
		AckTimeout:         2 * time.Second,
		ReconnectBaseDelay: 10 * time.Millisecond,
		ReconnectMaxDelay:  50 * time.Millisecond,
	}
	sup := session.New(cfg, router)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	conn1 := <-dialer.serverConns
	b1 := newBrokerConn(conn1)
	acceptConnect(t, b1)

	subDone := make(chan error, 1)
	go func() {
		subDone <- sup.Subscribe(context.Background(), []packet.Subscription{{Filter: "a/b", QoS: 1}}, nil)
	}()
	sub := b1.next(t, 2*time.Second).(*packet.Subscribe)
	b1.send(t, &packet.SubAck{PacketID: sub.PacketID, ReturnCodes: []uint8{packet.SubAckQoS1}})
	require.NoError(t, <-subDone)

	// Simulate a dropped connection.
	_ = conn1.Close()

	conn2 := <-dialer.serverConns
	b2 := newBrokerConn(conn2)
	acceptConnect(t, b2)

	// The supervisor must replay the saved subscription without the
	// caller calling Subscribe again.
	replay := b2.next(t, 2*time.Second).(*packet.Subscribe)
	assert.Equal(t, "a/b", replay.Subs[0].Filter)
	b2.send(t, &packet.SubAck{PacketID: replay.PacketID, ReturnCodes: []uint8{packet.SubAckQoS1}})

	b2.send(t, &packet.Publish{QoS: 0, Topic: "a/b", Payload: []byte("after-reconnect")})
	select {
	case m := <-delivered:
		assert.Equal(t, "after-reconnect", string(m.Payload))
	case <-time.After(2 * time.Second):
		t.Fatal("expected delivery over the reconnected session")
	}
}

func TestSupervisorReconnectBudgetResetsOnSuccessfulConnack(t *testing.T) {
	dialer := newMultiDialer()
	router := pipeline.NewRouter()

	cfg := session.Config{
		ServerURL:            "tcp://broker",
		Dialer:               dialer,
		ClientID:             "budget-client",
		CleanSession:         true,
		ConnectTimeout:       300 * time.Millisecond,
		AckTimeout:           2 * time.Second,
		ReconnectBaseDelay:   5 * time.Millisecond,
		ReconnectMaxDelay:    20 * time.Millisecond,
		MaxReconnectAttempts: 1,
	}
	sup := session.New(cfg, router)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sup.Run(ctx)

	// Two full connect-then-drop cycles: each one resolves with a CONNACK,
	// so neither should count against the reconnect budget.
	for i := 0; i < 2; i++ {
		conn := <-dialer.serverConns
		b := newBrokerConn(conn)
		acceptConnect(t, b)
		_ = conn.Close()
		select {
		case ev := <-sup.Events():
			_, isExhausted := ev.(session.DisconnectAttemptsExhausted)
			assert.False(t, isExhausted, "cycle %d: budget must reset after a successful CONNACK", i)
		case <-time.After(2 * time.Second):
			t.Fatalf("cycle %d: expected a disconnect event", i)
		}
	}

	// Third attempt: the broker never answers CONNECT, so this attempt
	// never resets the budget and, with MaxReconnectAttempts=1, exhausts it.
	conn3 := <-dialer.serverConns
	_ = conn3 // deliberately never send a CONNACK

	// The failed attempt reports its own disconnect event first; the
	// exhaustion event follows it.
	select {
	case ev := <-sup.Events():
		_, isExhausted := ev.(session.DisconnectAttemptsExhausted)
		assert.False(t, isExhausted, "the failed attempt's own disconnect is reported before exhaustion")
	case <-time.After(3 * time.Second):
		t.Fatal("expected a disconnect event for the failed attempt")
	}

	select {
	case ev := <-sup.Events():
		_, isExhausted := ev.(session.DisconnectAttemptsExhausted)
		assert.True(t, isExhausted, "expected the budget to exhaust after one failed CONNACK attempt")
	case <-time.After(3 * time.Second):
		t.Fatal("expected DisconnectAttemptsExhausted")
	}

	select {
	case <-sup.WhenTerminated():
	case <-time.After(time.Second):
		t.Fatal("supervisor should terminate once the reconnect budget is exhausted")
	}
	_, isExhausted := sup.TerminalEvent().(session.DisconnectAttemptsExhausted)
	assert.True(t, isExhausted, "TerminalEvent should report the reason Run actually stopped for")
}

func TestSupervisorDisconnectSendsExplicitPacketAndTerminates(t *testing.T) {
	dialer := &singleDialer{}
	client, server := net.Pipe()
	dialer.clientConn = client
	b := newBrokerConn(server)

	router := pipeline.NewRouter()
	sup := session.New(baseConfig(dialer), router)
	ctx, cancel := context.WithCancel(context.Background())
	go sup.Run(ctx)

	acceptConnect(t, b)

	cancel()

	pkt := b.next(t, 2*time.Second)
	_, ok := pkt.(*packet.Disconnect)
	assert.True(t, ok, "expected an explicit DISCONNECT, got %T", pkt)

	select {
	case <-sup.WhenTerminated():
	case <-time.After(2 * time.Second):
		t.Fatal("WhenTerminated should resolve once the supervisor winds down")
	}
	_, isNormal := sup.TerminalEvent().(session.DisconnectNormal)
	assert.True(t, isNormal, "an explicit Disconnect should terminate with DisconnectNormal")
}
