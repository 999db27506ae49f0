package netstack

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"echoplex/pkg/config"
	"echoplex/pkg/core/handoff"
	"echoplex/pkg/observability"
	"echoplex/pkg/transport"
)

// Options tunes the per-port loops.
type Options struct {
	ServiceBuffer  int
	DatagramBuffer int
	PollTimeout    time.Duration
	PeerErrors     PeerErrorPolicy
	ReusePort      bool
}

// OptionsFromConfig converts validated server configuration.
func OptionsFromConfig(c config.ServerConfig) (Options, error) {
	policy, err := ParsePeerErrorPolicy(c.PeerErrors)
	if err != nil {
		return Options{}, err
	}
	return Options{
		ServiceBuffer:  c.ServiceBuffer,
		DatagramBuffer: c.DatagramBuffer,
		PollTimeout:    c.PollTimeout,
		PeerErrors:     policy,
		ReusePort:      c.ReusePort,
	}, nil
}

func (o Options) withDefaults() Options {
	if o.DatagramBuffer <= 0 {
		o.DatagramBuffer = transport.DatagramCapacity
	}
	if o.ServiceBuffer <= 0 {
		o.ServiceBuffer = 10
	}
	if o.PollTimeout <= 0 {
		o.PollTimeout = time.Millisecond
	}
	return o
}

// Server runs echo loops for any number of ports. Every port gets its own
// long-lived roles: accept + service for tcp, receive for udp. Ports fail
// independently.
type Server struct {
	opts    Options
	metrics *observability.Metrics
	status  *Registry

	mu    sync.Mutex
	pools []*ants.Pool
	wg    sync.WaitGroup
}

// NewServer creates a server. metrics may be nil; a nil registry gets a
// fresh one.
func NewServer(opts Options, m *observability.Metrics, reg *Registry) *Server {
	if reg == nil {
		reg = NewRegistry()
	}
	return &Server{opts: opts.withDefaults(), metrics: m, status: reg}
}

// Status returns the registry the server publishes port states to.
func (s *Server) Status() *Registry { return s.status }

// Binding is a port that bound successfully.
type Binding struct {
	Protocol transport.Protocol
	// Requested is the port from the command line; Addr holds the bound one
	Requested uint16
	Addr      net.Addr
}

// Port returns the bound port number.
func (b Binding) Port() uint16 {
	switch a := b.Addr.(type) {
	case *net.TCPAddr:
		return uint16(a.Port)
	case *net.UDPAddr:
		return uint16(a.Port)
	}
	return b.Requested
}

type role struct {
	name string
	run  func()
}

// Start binds every port on all interfaces and launches its loops. A port
// that fails to bind is logged and skipped without retry; the others still
// start. Start does not block on the loops.
func (s *Server) Start(ctx context.Context, p transport.Protocol, ports []uint16) ([]Binding, error) {
	var (
		bindings []Binding
		roles    []role
	)
	for _, port := range ports {
		switch p {
		case transport.ProtocolStream:
			b, rs, err := s.bindStream(ctx, port)
			if err != nil {
				continue
			}
			bindings = append(bindings, b)
			roles = append(roles, rs...)
		case transport.ProtocolDatagram:
			b, r, err := s.bindDatagram(ctx, port)
			if err != nil {
				continue
			}
			bindings = append(bindings, b)
			roles = append(roles, r)
		default:
			return nil, fmt.Errorf("start: %w", transport.ErrUnknownProtocol)
		}
	}
	if len(roles) == 0 {
		return bindings, nil
	}

	pool, err := ants.NewPool(len(roles), ants.WithPanicHandler(func(v any) {
		zap.L().Error("port loop panicked", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, fmt.Errorf("start: worker pool: %w", err)
	}
	s.mu.Lock()
	s.pools = append(s.pools, pool)
	s.mu.Unlock()

	for _, r := range roles {
		r := r
		s.wg.Add(1)
		if err := pool.Submit(func() { defer s.wg.Done(); r.run() }); err != nil {
			s.wg.Done()
			zap.L().Error("cannot schedule port loop", zap.String("role", r.name), zap.Error(err))
		}
	}
	return bindings, nil
}

func (s *Server) bindFailed(p transport.Protocol, port uint16, err error) {
	zap.L().Error("error when binding port", zap.String("protocol", p.String()), zap.Uint16("port", port), zap.Error(err))
	s.metrics.Failed(p.String(), port, "bind")
	s.status.set(p, port, func(st *PortStatus) {
		st.State = StateFailed
		st.Err = err.Error()
	})
}

func (s *Server) bindStream(ctx context.Context, port uint16) (Binding, []role, error) {
	l, err := transport.ListenStream(ctx, port, s.opts.ReusePort)
	if err != nil {
		s.bindFailed(transport.ProtocolStream, port, err)
		return Binding{}, nil, err
	}
	b := Binding{Protocol: transport.ProtocolStream, Requested: port, Addr: l.Addr()}
	bound := b.Port()
	s.status.set(transport.ProtocolStream, bound, func(st *PortStatus) {
		st.State = StateListening
		st.Addr = l.Addr()
	})
	zap.L().Info("started listening", zap.String("protocol", "tcp"), zap.Uint16("port", bound))

	portCtx, cancel := context.WithCancel(ctx)
	q := handoff.New[transport.Endpoint]()
	accept := role{name: fmt.Sprintf("tcp:%d/accept", bound), run: func() {
		s.acceptLoop(portCtx, bound, l, q)
	}}
	service := role{name: fmt.Sprintf("tcp:%d/service", bound), run: func() {
		// a dead service loop takes the accept loop down with it
		defer cancel()
		err := s.newServiceLoop(bound, q).run(portCtx)
		if err == nil {
			return
		}
		zap.L().Error("error with port", zap.String("protocol", "tcp"), zap.Uint16("port", bound), zap.Error(err))
		s.metrics.Failed("tcp", bound, stageOf(err))
		s.status.set(transport.ProtocolStream, bound, func(st *PortStatus) {
			st.State = StateFailed
			st.Err = err.Error()
		})
	}}
	return b, []role{accept, service}, nil
}

func (s *Server) bindDatagram(ctx context.Context, port uint16) (Binding, role, error) {
	conn, err := transport.ListenDatagram(ctx, port, s.opts.ReusePort)
	if err != nil {
		s.bindFailed(transport.ProtocolDatagram, port, err)
		return Binding{}, role{}, err
	}
	b := Binding{Protocol: transport.ProtocolDatagram, Requested: port, Addr: conn.LocalAddr()}
	bound := b.Port()
	s.status.set(transport.ProtocolDatagram, bound, func(st *PortStatus) {
		st.State = StateListening
		st.Addr = conn.LocalAddr()
	})
	zap.L().Info("started listening", zap.String("protocol", "udp"), zap.Uint16("port", bound))

	r := role{name: fmt.Sprintf("udp:%d", bound), run: func() {
		err := s.datagramLoop(ctx, bound, conn)
		if err == nil {
			s.status.set(transport.ProtocolDatagram, bound, func(st *PortStatus) { st.State = StateStopped })
			return
		}
		zap.L().Error("error with port", zap.String("protocol", "udp"), zap.Uint16("port", bound), zap.Error(err))
		s.status.set(transport.ProtocolDatagram, bound, func(st *PortStatus) {
			st.State = StateFailed
			st.Err = err.Error()
		})
	}}
	return b, r, nil
}

// Wait blocks until every started loop has returned.
func (s *Server) Wait() { s.wg.Wait() }

// Close releases the worker pools. Running loops are stopped by cancelling
// the context given to Start.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pools {
		p.Release()
	}
	s.pools = nil
}

// ioError tags a loop-ending error with the operation that produced it.
type ioError struct {
	stage string
	err   error
}

func (e *ioError) Error() string { return e.stage + ": " + e.err.Error() }
func (e *ioError) Unwrap() error { return e.err }

func stageOf(err error) string {
	var ie *ioError
	if errors.As(err, &ie) {
		return ie.stage
	}
	return "unknown"
}
