package packet

import "github.com/cockroachdb/errors"

// Sized is implemented by every encodable packet; EstimateSize must return
// exactly the number of bytes AppendTo appends, so EncodePackets can assert
// bytesWritten == sum(predicted).
type Sized interface {
	Packet
	EstimateSize() int
	AppendTo(dst []byte) []byte
}

// EstimatePacketSize returns the exact wire size of p.
func EstimatePacketSize(p Sized) int { return p.EstimateSize() }

// EncodePackets appends every packet in pkts to dst back to back and
// returns the extended slice. It panics if the bytes actually written
// disagree with the predicted sizes, since that would mean a decoder
// reading this buffer back would desynchronize — a programming error in
// this package, never a runtime condition callers should handle.
func EncodePackets(dst []byte, pkts ...Sized) []byte {
	start := len(dst)
	predicted := 0
	for _, p := range pkts {
		predicted += p.EstimateSize()
		dst = p.AppendTo(dst)
	}
	if len(dst)-start != predicted {
		panic(errors.Newf("packet: encoded %d bytes, predicted %d", len(dst)-start, predicted))
	}
	return dst
}

// DecodeAll extracts every complete packet from the head of buf. It returns
// the decoded packets in wire order, the number of bytes consumed (the
// caller keeps buf[consumed:] as residual to prepend to the next chunk),
// and a fatal error if any packet fails to decode or exceeds
// maxIncomingPacket. maxIncomingPacket <= 0 means "use the MQTT spec
// maximum".
//
// DecodeAll never blocks and never allocates for the scan itself; each
// returned packet's payload/strings are already copied out of buf, so the
// caller may reuse or recycle buf's backing array immediately afterward.
func DecodeAll(buf []byte, maxIncomingPacket int) (pkts []Packet, consumed int, err error) {
	limit := maxIncomingPacket
	if limit <= 0 || limit > MaxRemainingLength {
		limit = MaxRemainingLength
	}

	offset := 0
	for {
		header, headerLen, complete, herr := DecodeFixedHeader(buf[offset:])
		if herr != nil {
			return pkts, offset, newDecodeError(header, herr)
		}
		if !complete {
			return pkts, offset, nil
		}
		if header.RemainingLength > limit {
			return pkts, offset, newDecodeError(header, ErrOversizedPacket)
		}
		total := headerLen + header.RemainingLength
		if offset+total > len(buf) {
			return pkts, offset, nil
		}
		body := buf[offset+headerLen : offset+total]

		pkt, derr := decodeBody(header, body)
		if derr != nil {
			return pkts, offset, newDecodeError(header, derr)
		}
		pkts = append(pkts, pkt)
		offset += total
	}
}

func decodeBody(h FixedHeader, body []byte) (Packet, error) {
	switch h.Type {
	case TypeConnect:
		return DecodeConnect(body)
	case TypeConnAck:
		return DecodeConnAck(body)
	case TypePublish:
		return DecodePublish(body, h.Flags)
	case TypePubAck:
		return DecodePubAck(body)
	case TypePubRec:
		return DecodePubRec(body)
	case TypePubRel:
		return DecodePubRel(body)
	case TypePubComp:
		return DecodePubComp(body)
	case TypeSubscribe:
		return DecodeSubscribe(body)
	case TypeSubAck:
		return DecodeSubAck(body)
	case TypeUnsubscribe:
		return DecodeUnsubscribe(body)
	case TypeUnsubAck:
		return DecodeUnsubAck(body)
	case TypePingReq:
		return DecodePingReq(body)
	case TypePingResp:
		return DecodePingResp(body)
	case TypeDisconnect:
		return DecodeDisconnect(body)
	default:
		return nil, ErrUnknownPacketType
	}
}
