package transport

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// Protocol selects the endpoint variant and the server loop for a process.
// It is chosen once at startup.
type Protocol int

const (
	ProtocolUnknown Protocol = iota
	ProtocolStream
	ProtocolDatagram
)

// DatagramCapacity is the largest UDP payload over IPv4 and the default
// size of a datagram receive buffer.
const DatagramCapacity = 65507

// ErrUnknownProtocol is returned by ParseProtocol for anything other than tcp or udp.
var ErrUnknownProtocol = errors.New("protocol must be 'tcp' or 'udp'")

func (p Protocol) String() string {
	switch p {
	case ProtocolStream:
		return "tcp"
	case ProtocolDatagram:
		return "udp"
	default:
		return "unknown"
	}
}

// Network returns the net package network name for p.
func (p Protocol) Network() string { return p.String() }

// ParseProtocol accepts "tcp" or "udp", ignoring case and surrounding space.
func ParseProtocol(s string) (Protocol, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "tcp":
		return ProtocolStream, nil
	case "udp":
		return ProtocolDatagram, nil
	default:
		return ProtocolUnknown, fmt.Errorf("%w, not %q", ErrUnknownProtocol, s)
	}
}

// Endpoint is a byte-oriented read/write handle over either a connection
// or a datagram socket. An Endpoint is owned by a single goroutine.
//
// Read and Write report partial transfers; callers handle short counts.
// Errors from the underlying socket are returned unmodified.
type Endpoint interface {
	Read(dst []byte) (int, error)
	Write(src []byte) (int, error)
	// SetReadDeadline bounds the next reads; a zero time blocks forever.
	SetReadDeadline(t time.Time) error
	Close() error

	Protocol() Protocol
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

// IsTimeout reports whether err is a read deadline expiry rather than a
// failure of the connection.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
