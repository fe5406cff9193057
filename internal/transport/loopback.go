package transport

import (
	"context"
	"net"
)

// Loopback is an in-memory ContextDialer backed by net.Pipe, standing in
// for a real broker socket in unit tests: the server half is handed to a
// test's broker stub, the client half is what Driver.Connect receives.
type Loopback struct {
	clientConn net.Conn
}

// NewLoopback creates a connected client/server pair. The returned net.Conn
// is the broker-side half; the Loopback itself is passed as Config.Dialer
// and hands Driver.Connect the client-side half.
func NewLoopback() (*Loopback, net.Conn) {
	client, server := net.Pipe()
	return &Loopback{clientConn: client}, server
}

// DialContext returns the client half of the pipe, ignoring network/addr:
// the pipe has no addressing, it is already bound to its one peer.
func (l *Loopback) DialContext(_ context.Context, _, _ string) (net.Conn, error) {
	return l.clientConn, nil
}
