// Package transport defines the Endpoint abstraction shared by the echo
// server and the interactive client, plus the helpers that turn validated
// configuration into sockets.
//
// Key concepts:
//   - Protocol: stream (tcp) or datagram (udp), fixed for the process
//   - Endpoint: Read/Write over one peer; the udp variant re-assembles a
//     received datagram so that short reads drain it before the next receive
//   - Resolve: host:port to the first concrete address, before any socket exists
//
// Implementations live in the tcp, udp and mem subpackages.
package transport
