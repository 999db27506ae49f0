package netstack

import (
	"context"
	"net"

	"go.uber.org/zap"

	"echoplex/pkg/core/handoff"
	"echoplex/pkg/transport"
	"echoplex/pkg/transport/tcp"
)

// acceptLoop hands every accepted connection to the service loop through
// q. The first accept error closes l and ends the loop; it does not retry.
// The queue is closed on return so the service loop can finish once its
// peers are gone.
func (s *Server) acceptLoop(ctx context.Context, port uint16, l net.Listener, q *handoff.Queue[transport.Endpoint]) {
	defer q.Close()
	go func() { <-ctx.Done(); _ = l.Close() }()

	for {
		c, err := l.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				s.status.set(transport.ProtocolStream, port, func(st *PortStatus) {
					if st.State != StateFailed {
						st.State = StateStopped
					}
				})
				return
			default:
			}
			zap.L().Error("accept failed", zap.Uint16("port", port), zap.Error(err))
			_ = l.Close()
			s.metrics.Failed("tcp", port, "accept")
			s.status.set(transport.ProtocolStream, port, func(st *PortStatus) {
				st.State = StateFailed
				st.Err = err.Error()
			})
			return
		}
		if !q.Push(tcp.New(c)) {
			_ = c.Close()
			return
		}
	}
}
