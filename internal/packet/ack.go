package packet

import "github.com/cockroachdb/errors"

// PubAck, PubRec, PubRel and PubComp share an identical 2-byte
// (packet-id-only) wire shape in MQTT 3.1.1; PUBREL is the only one of the
// four whose fixed header flags are fixed at 0x02 rather than 0x00
// (section 3.6.1).

type PubAck struct{ PacketID uint16 }

func (p *PubAck) Type() uint8          { return TypePubAck }
func (p *PubAck) EstimateSize() int    { return idPacketSize() }
func (p *PubAck) AppendTo(dst []byte) []byte { return appendIDPacket(dst, TypePubAck, 0, p.PacketID) }

func DecodePubAck(buf []byte) (*PubAck, error) {
	id, err := decodeIDPacket(buf, "PUBACK")
	if err != nil {
		return nil, err
	}
	return &PubAck{PacketID: id}, nil
}

type PubRec struct{ PacketID uint16 }

func (p *PubRec) Type() uint8          { return TypePubRec }
func (p *PubRec) EstimateSize() int    { return idPacketSize() }
func (p *PubRec) AppendTo(dst []byte) []byte { return appendIDPacket(dst, TypePubRec, 0, p.PacketID) }

func DecodePubRec(buf []byte) (*PubRec, error) {
	id, err := decodeIDPacket(buf, "PUBREC")
	if err != nil {
		return nil, err
	}
	return &PubRec{PacketID: id}, nil
}

// PubRel carries an optional reason distinguishing a normal handshake step
// from the case where a PUBREC arrives with no matching pending entry, in
// which case a PUBREL with reason PacketIdentifierNotFound is sent back.
// MQTT 3.1.1 has no reason-code byte on the wire, so Reason is a
// client-local annotation only and never encoded; it exists so the engine
// can tell a unit test or log line why a PUBREL was sent.
type PubRel struct {
	PacketID uint16
	Reason   PubRelReason
}

// PubRelReason distinguishes why a PUBREL was emitted.
type PubRelReason uint8

const (
	PubRelNormal PubRelReason = iota
	PubRelPacketIdentifierNotFound
)

func (p *PubRel) Type() uint8          { return TypePubRel }
func (p *PubRel) EstimateSize() int    { return idPacketSize() }
func (p *PubRel) AppendTo(dst []byte) []byte { return appendIDPacket(dst, TypePubRel, 0x02, p.PacketID) }

func DecodePubRel(buf []byte) (*PubRel, error) {
	id, err := decodeIDPacket(buf, "PUBREL")
	if err != nil {
		return nil, err
	}
	return &PubRel{PacketID: id}, nil
}

type PubComp struct{ PacketID uint16 }

func (p *PubComp) Type() uint8          { return TypePubComp }
func (p *PubComp) EstimateSize() int    { return idPacketSize() }
func (p *PubComp) AppendTo(dst []byte) []byte { return appendIDPacket(dst, TypePubComp, 0, p.PacketID) }

func DecodePubComp(buf []byte) (*PubComp, error) {
	id, err := decodeIDPacket(buf, "PUBCOMP")
	if err != nil {
		return nil, err
	}
	return &PubComp{PacketID: id}, nil
}

func idPacketSize() int {
	return FixedHeader{RemainingLength: 2}.Size() + 2
}

func appendIDPacket(dst []byte, packetType, flags uint8, id uint16) []byte {
	dst = FixedHeader{Type: packetType, Flags: flags, RemainingLength: 2}.AppendTo(dst)
	return append(dst, byte(id>>8), byte(id))
}

func decodeIDPacket(buf []byte, name string) (uint16, error) {
	if len(buf) < 2 {
		return 0, errors.Newf("packet: buffer too short for %s", name)
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}
