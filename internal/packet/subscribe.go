package packet

import "github.com/cockroachdb/errors"

// Subscription is a single topic filter + requested QoS pair inside a
// SUBSCRIBE packet.
type Subscription struct {
	Filter string
	QoS    uint8
}

// Subscribe is the MQTT SUBSCRIBE control packet. Its fixed header flags
// are fixed at 0x02 by MQTT 3.1.1 section 3.8.1.
type Subscribe struct {
	PacketID uint16
	Subs     []Subscription
}

func (p *Subscribe) Type() uint8 { return TypeSubscribe }

func (p *Subscribe) EstimateSize() int {
	payload := 0
	for _, s := range p.Subs {
		payload += 2 + len(s.Filter) + 1
	}
	remaining := 2 + payload
	return FixedHeader{RemainingLength: remaining}.Size() + remaining
}

func (p *Subscribe) AppendTo(dst []byte) []byte {
	payload := 0
	for _, s := range p.Subs {
		payload += 2 + len(s.Filter) + 1
	}
	remaining := 2 + payload

	dst = FixedHeader{Type: TypeSubscribe, Flags: 0x02, RemainingLength: remaining}.AppendTo(dst)
	dst = append(dst, byte(p.PacketID>>8), byte(p.PacketID))
	for _, s := range p.Subs {
		dst = AppendString(dst, s.Filter)
		dst = append(dst, s.QoS&0x03)
	}
	return dst
}

func DecodeSubscribe(buf []byte) (*Subscribe, error) {
	if len(buf) < 2 {
		return nil, errors.New("packet: buffer too short for SUBSCRIBE")
	}
	pkt := &Subscribe{PacketID: uint16(buf[0])<<8 | uint16(buf[1])}
	offset := 2
	for offset < len(buf) {
		filter, n, err := DecodeString(buf[offset:])
		if err != nil {
			return nil, errors.Wrap(err, "topic filter")
		}
		offset += n
		if offset >= len(buf) {
			return nil, errors.New("packet: buffer too short for SUBSCRIBE QoS byte")
		}
		pkt.Subs = append(pkt.Subs, Subscription{Filter: filter, QoS: buf[offset] & 0x03})
		offset++
	}
	if len(pkt.Subs) == 0 {
		return nil, errors.New("packet: SUBSCRIBE must contain at least one topic filter")
	}
	return pkt, nil
}
