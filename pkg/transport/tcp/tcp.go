package tcp

import (
	"context"
	"net"
	"net/netip"
	"time"

	"echoplex/pkg/transport"
)

// Endpoint is the stream variant: reads and writes go straight to the
// connection with no buffering and no retry-to-completion.
type Endpoint struct {
	c net.Conn
}

// New wraps an established connection.
func New(c net.Conn) *Endpoint { return &Endpoint{c: c} }

// Dial connects to addr.
func Dial(ctx context.Context, addr netip.AddrPort) (*Endpoint, error) {
	d := &net.Dialer{}
	c, err := d.DialContext(ctx, "tcp", addr.String())
	if err != nil {
		return nil, err
	}
	return New(c), nil
}

func (e *Endpoint) Read(dst []byte) (int, error) { return e.c.Read(dst) }
func (e *Endpoint) Write(src []byte) (int, error) { return e.c.Write(src) }
func (e *Endpoint) SetReadDeadline(t time.Time) error { return e.c.SetReadDeadline(t) }
func (e *Endpoint) Close() error { return e.c.Close() }
func (e *Endpoint) Protocol() transport.Protocol { return transport.ProtocolStream }
func (e *Endpoint) LocalAddr() net.Addr { return e.c.LocalAddr() }
func (e *Endpoint) RemoteAddr() net.Addr { return e.c.RemoteAddr() }

var _ transport.Endpoint = (*Endpoint)(nil)
