package packet

import "github.com/cockroachdb/errors"

// SubAck is the MQTT SUBACK control packet: one return code per requested
// subscription, in request order.
type SubAck struct {
	PacketID    uint16
	ReturnCodes []uint8
}

func (p *SubAck) Type() uint8 { return TypeSubAck }

func (p *SubAck) EstimateSize() int {
	remaining := 2 + len(p.ReturnCodes)
	return FixedHeader{RemainingLength: remaining}.Size() + remaining
}

func (p *SubAck) AppendTo(dst []byte) []byte {
	remaining := 2 + len(p.ReturnCodes)
	dst = FixedHeader{Type: TypeSubAck, RemainingLength: remaining}.AppendTo(dst)
	dst = append(dst, byte(p.PacketID>>8), byte(p.PacketID))
	return append(dst, p.ReturnCodes...)
}

func DecodeSubAck(buf []byte) (*SubAck, error) {
	if len(buf) < 2 {
		return nil, errors.New("packet: buffer too short for SUBACK")
	}
	codes := make([]uint8, len(buf)-2)
	copy(codes, buf[2:])
	return &SubAck{
		PacketID:    uint16(buf[0])<<8 | uint16(buf[1]),
		ReturnCodes: codes,
	}, nil
}
