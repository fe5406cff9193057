package packet

import "fmt"

// AppendVarInt appends the Variable Byte Integer encoding of value to dst,
// MQTT 3.1.1 section 2.2.3: base-128, least-significant group first, high
// bit of each byte marks continuation.
func AppendVarInt(dst []byte, value int) []byte {
	if value < 0 || value > MaxRemainingLength {
		panic(fmt.Sprintf("packet: value %d out of range for variable byte integer", value))
	}
	for {
		b := byte(value % 128)
		value /= 128
		if value > 0 {
			b |= 0x80
		}
		dst = append(dst, b)
		if value == 0 {
			break
		}
	}
	return dst
}

// VarIntSize returns the number of bytes AppendVarInt would emit for value:
// <128→1, <16384→2, <2097152→3, else→4.
func VarIntSize(value int) int {
	switch {
	case value < 128:
		return 1
	case value < 16384:
		return 2
	case value < 2097152:
		return 3
	default:
		return 4
	}
}

// DecodeVarInt reads a Variable Byte Integer from the head of buf. It
// returns the decoded value and the number of bytes consumed. complete is
// false, with a nil err, when buf does not yet hold a complete VBI (the
// caller should treat the whole buffer as residual and wait for more
// bytes). A malformed VBI returns complete=true with a non-nil err; a fifth
// continuation byte is always rejected.
func DecodeVarInt(buf []byte) (value int, n int, complete bool, err error) {
	multiplier := 1
	for i := 0; i < len(buf); i++ {
		if i == 4 {
			return 0, 0, true, fmt.Errorf("packet: variable byte integer has more than 4 bytes")
		}
		b := buf[i]
		value += int(b&0x7F) * multiplier
		if b&0x80 == 0 {
			if value > MaxRemainingLength {
				return 0, 0, true, fmt.Errorf("packet: variable byte integer %d exceeds maximum %d", value, MaxRemainingLength)
			}
			return value, i + 1, true, nil
		}
		multiplier *= 128
	}
	// Ran out of buffer before seeing a terminating byte: incomplete, not malformed.
	return 0, 0, false, nil
}
