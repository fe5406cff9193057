package packet

import "github.com/cockroachdb/errors"

// protocolName is the only protocol name this codec accepts; MQTT 3.1.1
// section 3.1.2.1.
const protocolName = "MQTT"

// ProtocolLevel311 is the MQTT 3.1.1 protocol level byte.
const ProtocolLevel311 = uint8(4)

// Will carries an optional Last Will and Testament, attached to a Connect
// when WillFlag is set. This struct intentionally carries only the 3.1.1
// fields; a future MQTT 5 property set would extend this struct rather
// than being inlined into Connect.
type Will struct {
	Topic   string
	Message []byte
	QoS     uint8
	Retain  bool
}

// Connect is the MQTT CONNECT control packet.
type Connect struct {
	CleanSession bool
	Will         *Will
	Username     string
	HasUsername  bool
	Password     string
	HasPassword  bool
	KeepAlive    uint16
	ClientID     string
}

func (p *Connect) Type() uint8 { return TypeConnect }

// EstimateSize returns the exact byte count AppendTo will produce.
func (p *Connect) EstimateSize() int {
	variableHeaderLen := 2 + len(protocolName) + 1 + 1 + 2
	payloadLen := 2 + len(p.ClientID)
	if p.Will != nil {
		payloadLen += 2 + len(p.Will.Topic)
		payloadLen += 2 + len(p.Will.Message)
	}
	if p.HasUsername {
		payloadLen += 2 + len(p.Username)
	}
	if p.HasPassword {
		payloadLen += 2 + len(p.Password)
	}
	remaining := variableHeaderLen + payloadLen
	return FixedHeader{RemainingLength: remaining}.Size() + remaining
}

func (p *Connect) AppendTo(dst []byte) []byte {
	var flags uint8
	if p.CleanSession {
		flags |= 0x02
	}
	if p.Will != nil {
		flags |= 0x04
		flags |= (p.Will.QoS & 0x03) << 3
		if p.Will.Retain {
			flags |= 0x20
		}
	}
	if p.HasPassword {
		flags |= 0x40
	}
	if p.HasUsername {
		flags |= 0x80
	}

	variableHeaderLen := 2 + len(protocolName) + 1 + 1 + 2
	payloadLen := 2 + len(p.ClientID)
	if p.Will != nil {
		payloadLen += 2 + len(p.Will.Topic)
		payloadLen += 2 + len(p.Will.Message)
	}
	if p.HasUsername {
		payloadLen += 2 + len(p.Username)
	}
	if p.HasPassword {
		payloadLen += 2 + len(p.Password)
	}

	dst = FixedHeader{Type: TypeConnect, RemainingLength: variableHeaderLen + payloadLen}.AppendTo(dst)
	dst = AppendString(dst, protocolName)
	dst = append(dst, ProtocolLevel311, flags, byte(p.KeepAlive>>8), byte(p.KeepAlive))
	dst = AppendString(dst, p.ClientID)
	if p.Will != nil {
		dst = AppendString(dst, p.Will.Topic)
		dst = AppendBinary(dst, p.Will.Message)
	}
	if p.HasUsername {
		dst = AppendString(dst, p.Username)
	}
	if p.HasPassword {
		dst = AppendString(dst, p.Password)
	}
	return dst
}

// DecodeConnect decodes a CONNECT packet body. The broker side of this
// codec is only exercised by the in-memory loopback transport in tests, but
// is kept symmetric with the client-side encode for round-trip testing.
func DecodeConnect(buf []byte) (*Connect, error) {
	name, n, err := DecodeString(buf)
	if err != nil {
		return nil, errors.Wrap(err, "protocol name")
	}
	if name != protocolName {
		return nil, errors.Newf("packet: unexpected protocol name %q", name)
	}
	offset := n
	if offset+4 > len(buf) {
		return nil, errors.New("packet: buffer too short for CONNECT variable header")
	}
	level := buf[offset]
	if level != ProtocolLevel311 {
		return nil, errors.Newf("packet: unsupported protocol level %d", level)
	}
	flags := buf[offset+1]
	keepAlive := uint16(buf[offset+2])<<8 | uint16(buf[offset+3])
	offset += 4

	hasUsername := flags&0x80 != 0
	hasPassword := flags&0x40 != 0
	if hasPassword && !hasUsername {
		return nil, errors.New("packet: CONNECT sets Password flag without Username flag")
	}

	pkt := &Connect{
		CleanSession: flags&0x02 != 0,
		KeepAlive:    keepAlive,
	}

	clientID, n, err := DecodeString(buf[offset:])
	if err != nil {
		return nil, errors.Wrap(err, "client id")
	}
	pkt.ClientID = clientID
	offset += n

	if flags&0x04 != 0 {
		topic, n, err := DecodeString(buf[offset:])
		if err != nil {
			return nil, errors.Wrap(err, "will topic")
		}
		offset += n
		msg, n, err := DecodeBinary(buf[offset:])
		if err != nil {
			return nil, errors.Wrap(err, "will message")
		}
		offset += n
		owned := make([]byte, len(msg))
		copy(owned, msg)
		pkt.Will = &Will{
			Topic:   topic,
			Message: owned,
			QoS:     (flags >> 3) & 0x03,
			Retain:  flags&0x20 != 0,
		}
	}

	if hasUsername {
		username, n, err := DecodeString(buf[offset:])
		if err != nil {
			return nil, errors.Wrap(err, "username")
		}
		pkt.Username = username
		pkt.HasUsername = true
		offset += n
	}
	if hasPassword {
		password, n, err := DecodeString(buf[offset:])
		if err != nil {
			return nil, errors.Wrap(err, "password")
		}
		pkt.Password = password
		pkt.HasPassword = true
		offset += n
	}

	return pkt, nil
}
