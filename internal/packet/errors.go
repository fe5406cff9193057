package packet

import "github.com/cockroachdb/errors"

// DecodeError is a fatal codec error: it names the packet type and the
// remaining-length the fixed header predicted, so the caller has enough to
// log and terminate the connection.
type DecodeError struct {
	PacketType      uint8
	RemainingLength int
	Cause           error
}

func (e *DecodeError) Error() string {
	name := TypeNames[e.PacketType]
	if name == "" {
		name = "UNKNOWN"
	}
	return errors.Wrapf(e.Cause, "packet: decoding %s (remaining length %d)", name, e.RemainingLength).Error()
}

func (e *DecodeError) Unwrap() error { return e.Cause }

func newDecodeError(h FixedHeader, cause error) *DecodeError {
	return &DecodeError{PacketType: h.Type, RemainingLength: h.RemainingLength, Cause: cause}
}

// ErrOversizedPacket is wrapped into a DecodeError when a fixed header
// predicts a Remaining Length larger than the configured admission limit.
var ErrOversizedPacket = errors.New("packet: remaining length exceeds maximum incoming packet size")

// ErrUnknownPacketType is wrapped into a DecodeError when the fixed header
// names a control type this codec does not implement (including the
// MQTT 5.0-only AUTH type).
var ErrUnknownPacketType = errors.New("packet: unknown or unsupported control packet type")
