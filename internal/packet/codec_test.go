package packet

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func allSamplePackets() []Sized {
	return []Sized{
		&Connect{
			CleanSession: true,
			ClientID:     "client-1",
			KeepAlive:    60,
			Will:         &Will{Topic: "lwt/topic", Message: []byte("bye"), QoS: 1, Retain: true},
			Username:     "bob",
			HasUsername:  true,
			Password:     "secret",
			HasPassword:  true,
		},
		&Connect{ClientID: "minimal"},
		&ConnAck{SessionPresent: true, ReturnCode: ConnAccepted},
		&Publish{QoS: 0, Topic: "a/b", Payload: []byte("hello")},
		&Publish{QoS: 1, Dup: true, Retain: true, Topic: "a/b/c", PacketID: 42, Payload: []byte("world")},
		&Publish{QoS: 2, Topic: "x", PacketID: 1, Payload: []byte{}},
		&PubAck{PacketID: 7},
		&PubRec{PacketID: 7},
		&PubRel{PacketID: 7},
		&PubComp{PacketID: 7},
		&Subscribe{PacketID: 10, Subs: []Subscription{{Filter: "a/+", QoS: 0}, {Filter: "a/#", QoS: 2}}},
		&SubAck{PacketID: 10, ReturnCodes: []uint8{SubAckQoS0, SubAckFailure, SubAckQoS2}},
		&Unsubscribe{PacketID: 11, Filters: []string{"a/+", "b/#"}},
		&UnsubAck{PacketID: 11},
		&PingReq{},
		&PingResp{},
		&Disconnect{},
	}
}

func TestEstimateSizeMatchesAppendTo(t *testing.T) {
	for _, p := range allSamplePackets() {
		buf := p.AppendTo(nil)
		assert.Equal(t, p.EstimateSize(), len(buf), "%T", p)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	for _, p := range allSamplePackets() {
		buf := EncodePackets(nil, p)
		pkts, consumed, err := DecodeAll(buf, 0)
		require.NoError(t, err, "%T", p)
		require.Len(t, pkts, 1, "%T", p)
		assert.Equal(t, len(buf), consumed, "%T", p)
		assert.Equal(t, p, pkts[0], "%T", p)
	}
}

func TestDecodeAllMultiplePackets(t *testing.T) {
	samples := allSamplePackets()
	buf := EncodePackets(nil, samples...)

	pkts, consumed, err := DecodeAll(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, len(buf), consumed)
	require.Len(t, pkts, len(samples))
	for i, p := range samples {
		assert.Equal(t, Sized(p), pkts[i].(Sized), "packet %d", i)
	}
}

// TestDecodeAllFragmentedStream partitions the wire bytes for several
// packets at arbitrary chunk boundaries and feeds them through DecodeAll
// incrementally, the way DecoderStage consumes from a streaming transport,
// and checks every packet is reassembled in order regardless of where the
// cuts land.
func TestDecodeAllFragmentedStream(t *testing.T) {
	samples := allSamplePackets()
	full := EncodePackets(nil, samples...)

	rng := rand.New(rand.NewSource(1))
	for trial := 0; trial < 20; trial++ {
		chunks := partitionRandomly(rng, full)

		var residual []byte
		var got []Packet
		for _, chunk := range chunks {
			residual = append(residual, chunk...)
			pkts, consumed, err := DecodeAll(residual, 0)
			require.NoError(t, err)
			residual = residual[consumed:]
			got = append(got, pkts...)
		}
		require.Empty(t, residual, "trial %d: leftover bytes after full stream delivered", trial)
		require.Len(t, got, len(samples), "trial %d", trial)
		for i, p := range samples {
			assert.Equal(t, Sized(p), got[i].(Sized), "trial %d packet %d", trial, i)
		}
	}
}

func partitionRandomly(rng *rand.Rand, buf []byte) [][]byte {
	if len(buf) == 0 {
		return nil
	}
	var chunks [][]byte
	offset := 0
	for offset < len(buf) {
		remaining := len(buf) - offset
		size := 1 + rng.Intn(remaining)
		chunks = append(chunks, buf[offset:offset+size])
		offset += size
	}
	return chunks
}

func TestDecodeAllIncompletePacketWaitsForMore(t *testing.T) {
	buf := EncodePackets(nil, &PubAck{PacketID: 99})
	pkts, consumed, err := DecodeAll(buf[:len(buf)-1], 0)
	require.NoError(t, err)
	assert.Empty(t, pkts)
	assert.Equal(t, 0, consumed)
}

func TestDecodeAllRejectsOversizedPacket(t *testing.T) {
	buf := EncodePackets(nil, &Publish{QoS: 0, Topic: "t", Payload: make([]byte, 1000)})
	_, _, err := DecodeAll(buf, 100)
	require.Error(t, err)
}

func TestDecodePublishRejectsZeroPacketID(t *testing.T) {
	p := &Publish{QoS: 1, Topic: "t", PacketID: 5, Payload: []byte("x")}
	buf := p.AppendTo(nil)
	header, headerLen, _, err := DecodeFixedHeader(buf)
	require.NoError(t, err)
	body := buf[headerLen : headerLen+header.RemainingLength]
	// Zero out the packet id bytes (immediately after the topic string).
	body[2+len("t")] = 0
	body[2+len("t")+1] = 0
	_, err = DecodePublish(body, header.Flags)
	assert.Error(t, err)
}
