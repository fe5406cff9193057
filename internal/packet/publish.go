package packet

import "github.com/cockroachdb/errors"

// Publish is the MQTT PUBLISH control packet, the only packet whose fixed
// header flags carry payload metadata (DUP, QoS, RETAIN) rather than a
// constant.
type Publish struct {
	Dup      bool
	QoS      uint8
	Retain   bool
	Topic    string
	PacketID uint16 // meaningful only when QoS > 0
	Payload  []byte
}

func (p *Publish) Type() uint8 { return TypePublish }

func (p *Publish) EstimateSize() int {
	variableHeaderLen := 2 + len(p.Topic)
	if p.QoS > 0 {
		variableHeaderLen += 2
	}
	remaining := variableHeaderLen + len(p.Payload)
	return FixedHeader{RemainingLength: remaining}.Size() + remaining
}

func (p *Publish) AppendTo(dst []byte) []byte {
	variableHeaderLen := 2 + len(p.Topic)
	if p.QoS > 0 {
		variableHeaderLen += 2
	}
	remaining := variableHeaderLen + len(p.Payload)

	var flags uint8
	if p.Dup {
		flags |= 0x08
	}
	flags |= (p.QoS & 0x03) << 1
	if p.Retain {
		flags |= 0x01
	}

	dst = FixedHeader{Type: TypePublish, Flags: flags, RemainingLength: remaining}.AppendTo(dst)
	dst = AppendString(dst, p.Topic)
	if p.QoS > 0 {
		dst = append(dst, byte(p.PacketID>>8), byte(p.PacketID))
	}
	return append(dst, p.Payload...)
}

// DecodePublish decodes a PUBLISH body given the fixed header flags already
// extracted by the caller. The returned Payload is copied out of buf: per
// the codec's ownership policy the transport buffer buf aliases may be
// recycled the moment the caller's read completes, so nothing downstream
// may hold a reference into it.
func DecodePublish(buf []byte, flags uint8) (*Publish, error) {
	pkt := &Publish{
		Dup:    flags&0x08 != 0,
		QoS:    (flags >> 1) & 0x03,
		Retain: flags&0x01 != 0,
	}
	if pkt.QoS > 2 {
		return nil, errors.Newf("packet: PUBLISH has invalid QoS %d", pkt.QoS)
	}

	topic, n, err := DecodeString(buf)
	if err != nil {
		return nil, errors.Wrap(err, "topic")
	}
	pkt.Topic = topic
	offset := n

	if pkt.QoS > 0 {
		if offset+2 > len(buf) {
			return nil, errors.New("packet: buffer too short for PUBLISH packet id")
		}
		pkt.PacketID = uint16(buf[offset])<<8 | uint16(buf[offset+1])
		if pkt.PacketID == 0 {
			return nil, errors.New("packet: PUBLISH packet id 0 is invalid")
		}
		offset += 2
	}

	pkt.Payload = make([]byte, len(buf)-offset)
	copy(pkt.Payload, buf[offset:])
	return pkt, nil
}
