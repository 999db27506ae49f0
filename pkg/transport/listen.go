package transport

import (
	"context"
	"errors"
	"net"
)

// ErrReusePortUnsupported is returned when SO_REUSEPORT is requested on a
// platform without it.
var ErrReusePortUnsupported = errors.New("SO_REUSEPORT is not supported on this platform")

// ListenConfig returns the listen configuration used for every server
// socket. With reusePort set, several processes may bind the same port.
func ListenConfig(reusePort bool) *net.ListenConfig {
	lc := &net.ListenConfig{}
	if reusePort {
		lc.Control = reusePortControl
	}
	return lc
}

// ListenStream binds a TCP listener on every interface.
func ListenStream(ctx context.Context, port uint16, reusePort bool) (net.Listener, error) {
	return ListenConfig(reusePort).Listen(ctx, "tcp", WildcardAddr(port))
}

// ListenDatagram binds a UDP socket on every interface.
func ListenDatagram(ctx context.Context, port uint16, reusePort bool) (*net.UDPConn, error) {
	pc, err := ListenConfig(reusePort).ListenPacket(ctx, "udp", WildcardAddr(port))
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
