package netstack

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"echoplex/pkg/core/handoff"
	"echoplex/pkg/peers"
	"echoplex/pkg/transport"
)

// PeerErrorPolicy decides what a read or write error on one peer does to
// the service loop that owns it.
type PeerErrorPolicy int

const (
	// PeerErrorsFail stops the whole service loop on the first peer error.
	// A peer that closed cleanly is not an error: it reads zero bytes and
	// stays in the set.
	PeerErrorsFail PeerErrorPolicy = iota
	// PeerErrorsDrop closes and removes the failing or closed peer and
	// keeps serving the rest.
	PeerErrorsDrop
)

func (p PeerErrorPolicy) String() string {
	if p == PeerErrorsDrop {
		return "drop"
	}
	return "fail"
}

// ParsePeerErrorPolicy accepts "fail" or "drop".
func ParsePeerErrorPolicy(s string) (PeerErrorPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return PeerErrorsFail, nil
	case "drop":
		return PeerErrorsDrop, nil
	default:
		return PeerErrorsFail, fmt.Errorf("unknown peer error policy %q", s)
	}
}

// serviceLoop owns the peer set of one stream port. Each pass admits the
// connections queued by the accept loop, then gives every peer one bounded
// read followed by an echo of exactly the bytes read.
type serviceLoop struct {
	srv   *Server
	port  uint16
	queue *handoff.Queue[transport.Endpoint]
	peers peers.Set
	buf   []byte
	dead  map[transport.Endpoint]struct{}

	// closed holds peers that reached EOF under the fail policy. They stay
	// in the set but are not read again.
	closed map[transport.Endpoint]struct{}
}

func (s *Server) newServiceLoop(port uint16, q *handoff.Queue[transport.Endpoint]) *serviceLoop {
	return &serviceLoop{
		srv:   s,
		port:  port,
		queue: q,
		buf:   make([]byte, s.opts.ServiceBuffer),
		dead:  make(map[transport.Endpoint]struct{}),

		closed: make(map[transport.Endpoint]struct{}),
	}
}

// run returns nil when ctx is done or when the accept loop has gone away
// and no live peer is left, and the fatal error otherwise.
func (l *serviceLoop) run(ctx context.Context) error {
	defer l.peers.CloseAll()
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := l.admit(ctx); err != nil {
			if errors.Is(err, handoff.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := l.pass(); err != nil {
			return err
		}
	}
}

// admit moves every queued connection into the peer set. With no live
// peer it blocks for the next connection instead of spinning.
func (l *serviceLoop) admit(ctx context.Context) error {
	if l.live() == 0 {
		e, err := l.queue.Pop(ctx)
		if err != nil {
			return err
		}
		l.add(e)
	}
	for {
		e, ok := l.queue.TryPop()
		if !ok {
			return nil
		}
		l.add(e)
	}
}

func (l *serviceLoop) live() int { return l.peers.Len() - len(l.closed) }

func (l *serviceLoop) add(e transport.Endpoint) {
	l.peers.Add(e)
	zap.L().Info("connection", zap.Uint16("port", l.port), zap.Stringer("raddr", e.RemoteAddr()))
	l.srv.metrics.ConnectionAccepted(l.port)
	l.publishPeers()
}

// pass services each peer once, in arrival order.
func (l *serviceLoop) pass() error {
	for i := 0; i < l.peers.Len(); i++ {
		p := l.peers.At(i)
		if _, ok := l.closed[p]; ok {
			continue
		}
		err := l.echoOnce(p)
		if err == nil {
			continue
		}
		if l.srv.opts.PeerErrors == PeerErrorsFail {
			return err
		}
		if !errors.Is(err, io.EOF) {
			zap.L().Warn("peer error", zap.Uint16("port", l.port), zap.Stringer("raddr", p.RemoteAddr()), zap.Error(err))
		} else {
			zap.L().Info("peer closed", zap.Uint16("port", l.port), zap.Stringer("raddr", p.RemoteAddr()))
		}
		l.dead[p] = struct{}{}
	}
	if len(l.dead) > 0 {
		l.peers.RemoveFunc(func(e transport.Endpoint) bool {
			if _, ok := l.dead[e]; ok {
				_ = e.Close()
				return true
			}
			return false
		})
		clear(l.dead)
		l.publishPeers()
	}
	return nil
}

// echoOnce performs one read bounded by the poll timeout and writes back
// what it got. A deadline expiry is a zero-byte read. io.EOF is reported
// only under the drop policy; otherwise a closed peer reads as zero bytes
// once and is marked so later passes skip it.
func (l *serviceLoop) echoOnce(p transport.Endpoint) error {
	if err := p.SetReadDeadline(time.Now().Add(l.srv.opts.PollTimeout)); err != nil {
		return &ioError{stage: "read", err: err}
	}
	n, err := p.Read(l.buf)
	switch {
	case err == nil:
	case transport.IsTimeout(err):
	case errors.Is(err, io.EOF) && l.srv.opts.PeerErrors == PeerErrorsFail:
		l.closed[p] = struct{}{}
	default:
		return &ioError{stage: "read", err: err}
	}
	if n == 0 {
		return nil
	}
	w, err := p.Write(l.buf[:n])
	l.srv.metrics.Echoed("tcp", l.port, w)
	if err != nil {
		return &ioError{stage: "write", err: err}
	}
	return nil
}

func (l *serviceLoop) publishPeers() {
	n := l.peers.Len()
	l.srv.metrics.SetPeers(l.port, n)
	l.srv.status.set(transport.ProtocolStream, l.port, func(st *PortStatus) { st.Peers = n })
}
