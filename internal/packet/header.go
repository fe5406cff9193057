package packet

import "fmt"

// FixedHeader is the 2-5 byte header present on every MQTT control packet:
// a nibble-encoded control type, a 4-bit flags field (QoS/DUP/RETAIN for
// PUBLISH, a fixed value for a few other types), and the Remaining Length
// VBI.
type FixedHeader struct {
	Type            uint8
	Flags           uint8
	RemainingLength int
}

// AppendTo appends the encoded fixed header to dst.
func (h FixedHeader) AppendTo(dst []byte) []byte {
	dst = append(dst, (h.Type<<4)|(h.Flags&0x0F))
	return AppendVarInt(dst, h.RemainingLength)
}

// Size returns the exact number of bytes AppendTo would append.
func (h FixedHeader) Size() int {
	return 1 + VarIntSize(h.RemainingLength)
}

// DecodeFixedHeader decodes a fixed header from the head of buf. complete
// is false when buf does not yet contain a full header (incomplete VBI);
// the caller must wait for more bytes. headerLen is the number of bytes the
// header itself occupies, i.e. the offset at which the packet body begins.
func DecodeFixedHeader(buf []byte) (h FixedHeader, headerLen int, complete bool, err error) {
	if len(buf) < 1 {
		return FixedHeader{}, 0, false, nil
	}
	first := buf[0]
	remaining, vbiLen, ok, err := DecodeVarInt(buf[1:])
	if err != nil {
		return FixedHeader{}, 0, true, fmt.Errorf("packet: decoding remaining length: %w", err)
	}
	if !ok {
		return FixedHeader{}, 0, false, nil
	}
	return FixedHeader{
		Type:            first >> 4,
		Flags:           first & 0x0F,
		RemainingLength: remaining,
	}, 1 + vbiLen, true, nil
}
