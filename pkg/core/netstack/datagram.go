package netstack

import (
	"context"
	"net"

	"go.uber.org/zap"

	"echoplex/pkg/transport"
)

// datagramLoop receives one datagram at a time and sends the same payload
// back to its sender. Any receive or send error ends the loop for the port.
func (s *Server) datagramLoop(ctx context.Context, port uint16, conn *net.UDPConn) error {
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	defer conn.Close()

	buf := make([]byte, s.opts.DatagramBuffer)
	for {
		n, src, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.metrics.Failed("udp", port, "recv")
			return &ioError{stage: "recv", err: err}
		}
		zap.L().Info("packet", zap.Uint16("port", port), zap.Stringer("raddr", src), zap.Int("bytes", n))
		w, err := conn.WriteToUDPAddrPort(buf[:n], src)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.metrics.Failed("udp", port, "send")
			return &ioError{stage: "send", err: err}
		}
		s.metrics.Echoed(transport.ProtocolDatagram.String(), port, w)
	}
}
