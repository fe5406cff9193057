package packet

// PingReq, PingResp and Disconnect carry no variable header or payload in
// MQTT 3.1.1: each is exactly the 2-byte fixed header with a zero
// Remaining Length.

type PingReq struct{}

func (p *PingReq) Type() uint8          { return TypePingReq }
func (p *PingReq) EstimateSize() int    { return 2 }
func (p *PingReq) AppendTo(dst []byte) []byte {
	return FixedHeader{Type: TypePingReq}.AppendTo(dst)
}

func DecodePingReq(buf []byte) (*PingReq, error) { return &PingReq{}, nil }

type PingResp struct{}

func (p *PingResp) Type() uint8       { return TypePingResp }
func (p *PingResp) EstimateSize() int { return 2 }
func (p *PingResp) AppendTo(dst []byte) []byte {
	return FixedHeader{Type: TypePingResp}.AppendTo(dst)
}

func DecodePingResp(buf []byte) (*PingResp, error) { return &PingResp{}, nil }

// Disconnect is the client-to-server DISCONNECT control packet (MQTT 3.1.1
// never carries a server-to-client DISCONNECT; that is a 5.0 addition,
// treated upstream as a ServerDisconnect event synthesized from connection
// loss rather than a wire packet).
type Disconnect struct{}

func (p *Disconnect) Type() uint8       { return TypeDisconnect }
func (p *Disconnect) EstimateSize() int { return 2 }
func (p *Disconnect) AppendTo(dst []byte) []byte {
	return FixedHeader{Type: TypeDisconnect}.AppendTo(dst)
}

func DecodeDisconnect(buf []byte) (*Disconnect, error) { return &Disconnect{}, nil }
