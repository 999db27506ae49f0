package netstack

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echoplex/pkg/observability"
	"echoplex/pkg/transport"
)

func startServer(t *testing.T, opts Options, p transport.Protocol, ports ...uint16) (*Server, []Binding) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(opts, observability.NewMetrics(prometheus.NewRegistry()), nil)
	bindings, err := srv.Start(ctx, p, ports)
	require.NoError(t, err)
	t.Cleanup(func() {
		cancel()
		srv.Wait()
		srv.Close()
	})
	return srv, bindings
}

func loopback(b Binding) string {
	return net.JoinHostPort("127.0.0.1", strconv.Itoa(int(b.Port())))
}

func dialTCP(t *testing.T, b Binding) *net.TCPConn {
	t.Helper()
	c, err := net.DialTimeout("tcp", loopback(b), 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	require.NoError(t, c.SetDeadline(time.Now().Add(10*time.Second)))
	return c.(*net.TCPConn)
}

func roundTrip(t *testing.T, c net.Conn, payload string) string {
	t.Helper()
	_, err := c.Write([]byte(payload))
	require.NoError(t, err)
	got := make([]byte, len(payload))
	_, err = io.ReadFull(c, got)
	require.NoError(t, err)
	return string(got)
}

func waitState(t *testing.T, reg *Registry, p transport.Protocol, port uint16, want PortState) PortStatus {
	t.Helper()
	var st PortStatus
	require.Eventually(t, func() bool {
		var ok bool
		st, ok = reg.Get(p, port)
		return ok && st.State == want
	}, 5*time.Second, 5*time.Millisecond)
	return st
}

func TestStreamEchoSmallChunks(t *testing.T) {
	_, bs := startServer(t, Options{}, transport.ProtocolStream, 0)
	require.Len(t, bs, 1)
	c := dialTCP(t, bs[0])

	assert.Equal(t, "hello", roundTrip(t, c, "hello"))
	assert.Equal(t, "0123456789", roundTrip(t, c, "0123456789"))
}

func TestStreamEchoRechunksLargeWrites(t *testing.T) {
	// 25 bytes against a 10 byte service buffer: echoed over three passes
	_, bs := startServer(t, Options{ServiceBuffer: 10}, transport.ProtocolStream, 0)
	c := dialTCP(t, bs[0])
	payload := "abcdefghijklmnopqrstuvwxy"
	assert.Equal(t, payload, roundTrip(t, c, payload))
}

func TestStreamEchoIsolatesConcurrentClients(t *testing.T) {
	srv, bs := startServer(t, Options{}, transport.ProtocolStream, 0)
	const clients = 6

	var wg sync.WaitGroup
	errs := make(chan error, clients)
	for i := 0; i < clients; i++ {
		c := dialTCP(t, bs[0])
		wg.Add(1)
		go func(i int, c net.Conn) {
			defer wg.Done()
			for round := 0; round < 5; round++ {
				msg := fmt.Sprintf("c%d-r%d|", i, round)
				if _, err := c.Write([]byte(msg)); err != nil {
					errs <- err
					return
				}
				got := make([]byte, len(msg))
				if _, err := io.ReadFull(c, got); err != nil {
					errs <- err
					return
				}
				if string(got) != msg {
					errs <- fmt.Errorf("client %d got %q want %q", i, got, msg)
					return
				}
			}
		}(i, c)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	st, ok := srv.Status().Get(transport.ProtocolStream, bs[0].Port())
	require.True(t, ok)
	assert.Equal(t, StateListening, st.State)
	assert.Equal(t, clients, st.Peers)
}

func TestSilentPeerDoesNotStallOthers(t *testing.T) {
	_, bs := startServer(t, Options{PollTimeout: 20 * time.Millisecond}, transport.ProtocolStream, 0)
	silent := dialTCP(t, bs[0])
	_ = silent
	active := dialTCP(t, bs[0])
	for i := 0; i < 3; i++ {
		assert.Equal(t, "ping", roundTrip(t, active, "ping"))
	}
}

func TestFailPolicyCleanCloseKeepsServing(t *testing.T) {
	srv, bs := startServer(t, Options{PeerErrors: PeerErrorsFail}, transport.ProtocolStream, 0)
	gone := dialTCP(t, bs[0])
	assert.Equal(t, "bye", roundTrip(t, gone, "bye"))
	require.NoError(t, gone.Close())

	c := dialTCP(t, bs[0])
	assert.Equal(t, "still here", roundTrip(t, c, "still here"))
	st, _ := srv.Status().Get(transport.ProtocolStream, bs[0].Port())
	assert.Equal(t, StateListening, st.State)
}

func TestFailPolicyResetStopsPort(t *testing.T) {
	srv, bs := startServer(t, Options{PeerErrors: PeerErrorsFail}, transport.ProtocolStream, 0)
	victim := dialTCP(t, bs[0])
	other := dialTCP(t, bs[0])
	assert.Equal(t, "x", roundTrip(t, other, "x"))
	assert.Equal(t, "y", roundTrip(t, victim, "y"))

	require.NoError(t, victim.SetLinger(0))
	require.NoError(t, victim.Close())

	st := waitState(t, srv.Status(), transport.ProtocolStream, bs[0].Port(), StateFailed)
	assert.Contains(t, st.Err, "read")

	// the surviving peer was abandoned with the loop
	_, err := other.Write([]byte("z"))
	if err == nil {
		_, err = io.ReadFull(other, make([]byte, 1))
	}
	assert.Error(t, err)
}

func TestDropPolicyIsolatesPeerErrors(t *testing.T) {
	srv, bs := startServer(t, Options{PeerErrors: PeerErrorsDrop}, transport.ProtocolStream, 0)
	victim := dialTCP(t, bs[0])
	other := dialTCP(t, bs[0])
	assert.Equal(t, "a", roundTrip(t, victim, "a"))
	assert.Equal(t, "b", roundTrip(t, other, "b"))

	require.NoError(t, victim.SetLinger(0))
	require.NoError(t, victim.Close())

	require.Eventually(t, func() bool {
		st, _ := srv.Status().Get(transport.ProtocolStream, bs[0].Port())
		return st.Peers == 1
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, "still echoing", roundTrip(t, other, "still echoing"))
	st, _ := srv.Status().Get(transport.ProtocolStream, bs[0].Port())
	assert.Equal(t, StateListening, st.State)
}

func TestBindFailureSkipsOnlyThatPort(t *testing.T) {
	busy, err := net.Listen("tcp", "0.0.0.0:0")
	require.NoError(t, err)
	defer busy.Close()
	busyPort := uint16(busy.Addr().(*net.TCPAddr).Port)

	srv, bs := startServer(t, Options{}, transport.ProtocolStream, busyPort, 0)
	require.Len(t, bs, 1)
	assert.Equal(t, uint16(0), bs[0].Requested)

	st, ok := srv.Status().Get(transport.ProtocolStream, busyPort)
	require.True(t, ok)
	assert.Equal(t, StateFailed, st.State)
	assert.Error(t, srv.Status().Ready())

	c := dialTCP(t, bs[0])
	assert.Equal(t, "ok", roundTrip(t, c, "ok"))
}

func TestStartRejectsUnknownProtocol(t *testing.T) {
	srv := NewServer(Options{}, nil, nil)
	_, err := srv.Start(context.Background(), transport.ProtocolUnknown, []uint16{0})
	assert.ErrorIs(t, err, transport.ErrUnknownProtocol)
	assert.Empty(t, srv.Status().Snapshot())
}

func TestDatagramEchoReturnsToSender(t *testing.T) {
	srv, bs := startServer(t, Options{}, transport.ProtocolDatagram, 0)
	require.Len(t, bs, 1)
	require.NoError(t, srv.Status().Ready())
	dst := netip.AddrPortFrom(netip.MustParseAddr("127.0.0.1"), bs[0].Port())

	a, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer a.Close()
	b, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer b.Close()

	big := make([]byte, transport.DatagramCapacity)
	for i := range big {
		big[i] = byte(i)
	}
	for _, payload := range [][]byte{[]byte("from a"), big} {
		_, err = a.WriteToUDPAddrPort(payload, dst)
		require.NoError(t, err)
		require.NoError(t, a.SetReadDeadline(time.Now().Add(5*time.Second)))
		buf := make([]byte, transport.DatagramCapacity+1)
		n, from, err := a.ReadFromUDPAddrPort(buf)
		require.NoError(t, err)
		assert.Equal(t, bs[0].Port(), from.Port())
		assert.Equal(t, payload, buf[:n])
	}

	// b never sent anything and must not see a's echoes
	require.NoError(t, b.SetReadDeadline(time.Now().Add(50*time.Millisecond)))
	_, _, err = b.ReadFromUDPAddrPort(make([]byte, 16))
	assert.True(t, transport.IsTimeout(err), err)
}

func TestParsePeerErrorPolicy(t *testing.T) {
	p, err := ParsePeerErrorPolicy(" DROP ")
	require.NoError(t, err)
	assert.Equal(t, PeerErrorsDrop, p)
	p, err = ParsePeerErrorPolicy("")
	require.NoError(t, err)
	assert.Equal(t, PeerErrorsFail, p)
	_, err = ParsePeerErrorPolicy("retry")
	assert.Error(t, err)
}
