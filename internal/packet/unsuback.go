package packet

import "github.com/cockroachdb/errors"

// UnsubAck is the MQTT UNSUBACK control packet: a bare packet-id
// acknowledgement in 3.1.1 (MQTT 5.0 adds per-filter reason codes, out of
// scope here).
type UnsubAck struct {
	PacketID uint16
}

func (p *UnsubAck) Type() uint8       { return TypeUnsubAck }
func (p *UnsubAck) EstimateSize() int { return idPacketSize() }
func (p *UnsubAck) AppendTo(dst []byte) []byte {
	return appendIDPacket(dst, TypeUnsubAck, 0, p.PacketID)
}

func DecodeUnsubAck(buf []byte) (*UnsubAck, error) {
	if len(buf) < 2 {
		return nil, errors.New("packet: buffer too short for UNSUBACK")
	}
	return &UnsubAck{PacketID: uint16(buf[0])<<8 | uint16(buf[1])}, nil
}
