package packet

import "github.com/cockroachdb/errors"

// Unsubscribe is the MQTT UNSUBSCRIBE control packet. Fixed header flags
// are fixed at 0x02 by MQTT 3.1.1 section 3.10.1.
type Unsubscribe struct {
	PacketID uint16
	Filters  []string
}

func (p *Unsubscribe) Type() uint8 { return TypeUnsubscribe }

func (p *Unsubscribe) EstimateSize() int {
	payload := 0
	for _, f := range p.Filters {
		payload += 2 + len(f)
	}
	remaining := 2 + payload
	return FixedHeader{RemainingLength: remaining}.Size() + remaining
}

func (p *Unsubscribe) AppendTo(dst []byte) []byte {
	payload := 0
	for _, f := range p.Filters {
		payload += 2 + len(f)
	}
	remaining := 2 + payload

	dst = FixedHeader{Type: TypeUnsubscribe, Flags: 0x02, RemainingLength: remaining}.AppendTo(dst)
	dst = append(dst, byte(p.PacketID>>8), byte(p.PacketID))
	for _, f := range p.Filters {
		dst = AppendString(dst, f)
	}
	return dst
}

func DecodeUnsubscribe(buf []byte) (*Unsubscribe, error) {
	if len(buf) < 2 {
		return nil, errors.New("packet: buffer too short for UNSUBSCRIBE")
	}
	pkt := &Unsubscribe{PacketID: uint16(buf[0])<<8 | uint16(buf[1])}
	offset := 2
	for offset < len(buf) {
		filter, n, err := DecodeString(buf[offset:])
		if err != nil {
			return nil, errors.Wrap(err, "topic filter")
		}
		pkt.Filters = append(pkt.Filters, filter)
		offset += n
	}
	if len(pkt.Filters) == 0 {
		return nil, errors.New("packet: UNSUBSCRIBE must contain at least one topic filter")
	}
	return pkt, nil
}
