package packet

import "github.com/cockroachdb/errors"

// ConnAck is the MQTT CONNACK control packet.
type ConnAck struct {
	SessionPresent bool
	ReturnCode     uint8
}

func (p *ConnAck) Type() uint8 { return TypeConnAck }

func (p *ConnAck) EstimateSize() int {
	return FixedHeader{RemainingLength: 2}.Size() + 2
}

func (p *ConnAck) AppendTo(dst []byte) []byte {
	dst = FixedHeader{Type: TypeConnAck, RemainingLength: 2}.AppendTo(dst)
	var flags uint8
	if p.SessionPresent {
		flags = 0x01
	}
	return append(dst, flags, p.ReturnCode)
}

func DecodeConnAck(buf []byte) (*ConnAck, error) {
	if len(buf) < 2 {
		return nil, errors.New("packet: buffer too short for CONNACK")
	}
	return &ConnAck{
		SessionPresent: buf[0]&0x01 != 0,
		ReturnCode:     buf[1],
	}, nil
}
