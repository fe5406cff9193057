package packet

import (
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// AppendString appends an MQTT UTF-8 encoded string (2-byte length prefix,
// MSB first) to dst.
func AppendString(dst []byte, s string) []byte {
	dst = append(dst, byte(len(s)>>8), byte(len(s)))
	return append(dst, s...)
}

// AppendBinary appends length-prefixed binary data to dst; identical wire
// shape to AppendString, used for the will message and PUBLISH payloads
// that need a prefixed form (none, in 3.1.1 — payload is unprefixed and
// runs to the end of the packet — but the will message inside CONNECT is
// length-prefixed like a string).
func AppendBinary(dst []byte, data []byte) []byte {
	dst = append(dst, byte(len(data)>>8), byte(len(data)))
	return append(dst, data...)
}

// DecodeString decodes an MQTT UTF-8 string from the head of buf: a 2-byte
// length followed by that many bytes, validated to be UTF-8 and NUL-free
// per MQTT 3.1.1 section 1.5.3.
func DecodeString(buf []byte) (string, int, error) {
	if len(buf) < 2 {
		return "", 0, errors.New("packet: buffer too short for string length")
	}
	n := int(buf[0])<<8 | int(buf[1])
	if len(buf) < 2+n {
		return "", 0, errors.Newf("packet: buffer too short for string body: need %d, have %d", 2+n, len(buf))
	}
	s := string(buf[2 : 2+n])
	if strings.IndexByte(s, 0) >= 0 {
		return "", 0, errors.New("packet: string contains a NUL byte")
	}
	if !utf8.ValidString(s) {
		return "", 0, errors.New("packet: string is not valid UTF-8")
	}
	return s, 2 + n, nil
}

// DecodeBinary decodes length-prefixed binary data from the head of buf.
// The returned slice aliases buf and must be copied before being handed to
// a caller that outlives the decode buffer.
func DecodeBinary(buf []byte) ([]byte, int, error) {
	if len(buf) < 2 {
		return nil, 0, errors.New("packet: buffer too short for binary length")
	}
	n := int(buf[0])<<8 | int(buf[1])
	if len(buf) < 2+n {
		return nil, 0, errors.Newf("packet: buffer too short for binary body: need %d, have %d", 2+n, len(buf))
	}
	return buf[2 : 2+n], 2 + n, nil
}
