package udp

import (
	"context"
	"net"
	"net/netip"
	"time"

	"echoplex/pkg/transport"
)

// Endpoint is the datagram variant. It holds the most recently received
// datagram and hands it out across as many Reads as the caller needs, so a
// small destination buffer drains one datagram before the next receive.
//
// Datagrams larger than the receive buffer are truncated by the socket and
// the excess is lost.
type Endpoint struct {
	conn *net.UDPConn

	// 0 <= cursor <= filled <= len(raw)
	raw    []byte
	cursor int
	filled int
}

// New wraps a connected UDP socket. capacity <= 0 selects
// transport.DatagramCapacity.
func New(conn *net.UDPConn, capacity int) *Endpoint {
	if capacity <= 0 {
		capacity = transport.DatagramCapacity
	}
	return &Endpoint{conn: conn, raw: make([]byte, capacity)}
}

// Dial binds an ephemeral local port and fixes addr as the only peer.
func Dial(ctx context.Context, addr netip.AddrPort, capacity int) (*Endpoint, error) {
	d := &net.Dialer{}
	c, err := d.DialContext(ctx, "udp", addr.String())
	if err != nil {
		return nil, err
	}
	return New(c.(*net.UDPConn), capacity), nil
}

// Read copies the undelivered part of the current datagram into dst. When
// the current datagram is exhausted it performs exactly one receive first.
func (e *Endpoint) Read(dst []byte) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if e.cursor >= e.filled {
		n, err := e.conn.Read(e.raw)
		if err != nil {
			return 0, err
		}
		e.cursor, e.filled = 0, n
	}
	n := copy(dst, e.raw[e.cursor:e.filled])
	e.cursor += n
	return n, nil
}

// Write sends src as a single datagram to the connected peer.
func (e *Endpoint) Write(src []byte) (int, error) { return e.conn.Write(src) }

// Buffered reports how many bytes of the current datagram are still undelivered.
func (e *Endpoint) Buffered() int { return e.filled - e.cursor }

func (e *Endpoint) SetReadDeadline(t time.Time) error { return e.conn.SetReadDeadline(t) }
func (e *Endpoint) Close() error { return e.conn.Close() }
func (e *Endpoint) Protocol() transport.Protocol { return transport.ProtocolDatagram }
func (e *Endpoint) LocalAddr() net.Addr { return e.conn.LocalAddr() }
func (e *Endpoint) RemoteAddr() net.Addr { return e.conn.RemoteAddr() }

var _ transport.Endpoint = (*Endpoint)(nil)
