package ackwait

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petabridge/TurboMqtt-sub000/internal/packet"
	"github.com/petabridge/TurboMqtt-sub000/internal/waiter"
)

func startWaiter(t *testing.T, cfg Config) *Waiter {
	t.Helper()
	a := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	go a.Run(ctx)
	t.Cleanup(cancel)
	return a
}

func wait(t *testing.T, w *waiter.Waiter, d time.Duration) waiter.Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	outcome, err := w.Wait(ctx)
	require.NoError(t, err)
	return outcome
}

func TestConnectAccepted(t *testing.T) {
	a := startWaiter(t, Config{Timeout: time.Minute})
	w := waiter.New()
	a.AwaitConnect(w)
	a.OnConnAck(&packet.ConnAck{ReturnCode: packet.ConnAccepted})

	outcome := wait(t, w, time.Second)
	assert.NoError(t, outcome.Err)
	assert.False(t, outcome.Timeout)
}

func TestConnectRefused(t *testing.T) {
	a := startWaiter(t, Config{Timeout: time.Minute})
	w := waiter.New()
	a.AwaitConnect(w)
	a.OnConnAck(&packet.ConnAck{ReturnCode: packet.ConnRefusedNotAuthorized})

	outcome := wait(t, w, time.Second)
	assert.Error(t, outcome.Err)
}

func TestConnectTimesOut(t *testing.T) {
	a := startWaiter(t, Config{Timeout: time.Millisecond})
	w := waiter.New()
	a.AwaitConnect(w)

	outcome := wait(t, w, 3*time.Second)
	assert.True(t, outcome.Timeout)
}

func TestSubscribeSuccess(t *testing.T) {
	a := startWaiter(t, Config{Timeout: time.Minute})
	w := waiter.New()
	a.AwaitSubscribe(5, w)
	a.OnSubAck(&packet.SubAck{PacketID: 5, ReturnCodes: []uint8{packet.SubAckQoS1}})

	outcome := wait(t, w, time.Second)
	assert.NoError(t, outcome.Err)
}

func TestSubscribeOneFailureRefusesWholeWaiter(t *testing.T) {
	a := startWaiter(t, Config{Timeout: time.Minute})
	w := waiter.New()
	a.AwaitSubscribe(5, w)
	a.OnSubAck(&packet.SubAck{PacketID: 5, ReturnCodes: []uint8{packet.SubAckQoS1, packet.SubAckFailure}})

	outcome := wait(t, w, time.Second)
	assert.Error(t, outcome.Err)
}

func TestUnsubscribeSuccess(t *testing.T) {
	a := startWaiter(t, Config{Timeout: time.Minute})
	w := waiter.New()
	a.AwaitUnsubscribe(9, w)
	a.OnUnsubAck(&packet.UnsubAck{PacketID: 9})

	outcome := wait(t, w, time.Second)
	assert.NoError(t, outcome.Err)
}

func TestUnmatchedAckIsIgnoredNotFatal(t *testing.T) {
	a := startWaiter(t, Config{Timeout: time.Minute})
	// Acks with no pending entry must not panic or block the actor loop.
	a.OnConnAck(&packet.ConnAck{ReturnCode: packet.ConnAccepted})
	a.OnSubAck(&packet.SubAck{PacketID: 1})
	a.OnUnsubAck(&packet.UnsubAck{PacketID: 1})

	// The actor should still be responsive afterward.
	w := waiter.New()
	a.AwaitConnect(w)
	a.OnConnAck(&packet.ConnAck{ReturnCode: packet.ConnAccepted})
	outcome := wait(t, w, time.Second)
	assert.NoError(t, outcome.Err)
}
