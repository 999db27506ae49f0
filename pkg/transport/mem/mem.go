// Package mem provides in-process stream endpoints backed by net.Pipe.
// Useful for tests and for wiring a relay to a local echo without sockets.
package mem

import (
	"net"
	"time"

	"echoplex/pkg/transport"
)

// Endpoint is one side of an in-memory pipe. Writes block until the other
// side reads, as with net.Pipe.
type Endpoint struct {
	c    net.Conn
	name string
}

// Pipe returns two connected endpoints named name+"/a" and name+"/b".
func Pipe(name string) (*Endpoint, *Endpoint) {
	c1, c2 := net.Pipe()
	return &Endpoint{c: c1, name: name + "/a"}, &Endpoint{c: c2, name: name + "/b"}
}

func (e *Endpoint) Read(dst []byte) (int, error) { return e.c.Read(dst) }
func (e *Endpoint) Write(src []byte) (int, error) { return e.c.Write(src) }
func (e *Endpoint) SetReadDeadline(t time.Time) error { return e.c.SetReadDeadline(t) }
func (e *Endpoint) Close() error { return e.c.Close() }
func (e *Endpoint) Protocol() transport.Protocol { return transport.ProtocolStream }
func (e *Endpoint) LocalAddr() net.Addr { return memAddr(e.name) }
func (e *Endpoint) RemoteAddr() net.Addr { return memAddr(e.name) }

type memAddr string

func (a memAddr) Network() string { return "mem" }
func (a memAddr) String() string { return string(a) }

var _ transport.Endpoint = (*Endpoint)(nil)
