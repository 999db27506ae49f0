package netstack

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echoplex/pkg/core/handoff"
	"echoplex/pkg/observability"
	"echoplex/pkg/transport"
)

// scriptedListener hands out the queued connections, then fails every
// Accept with err.
type scriptedListener struct {
	conns  chan net.Conn
	err    error
	closed atomic.Bool
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	default:
		return nil, l.err
	}
}

func (l *scriptedListener) Close() error {
	l.closed.Store(true)
	return nil
}

func (l *scriptedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7}
}

func failureCount(t *testing.T, reg *prometheus.Registry, stage string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range mfs {
		if mf.GetName() != "echoplex_port_failures_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == "stage" && lp.GetValue() == stage {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func TestAcceptFailureStopsPort(t *testing.T) {
	reg := prometheus.NewRegistry()
	srv := NewServer(Options{}, observability.NewMetrics(reg), nil)
	q := handoff.New[transport.Endpoint]()

	c1, c2 := net.Pipe()
	defer c1.Close()
	defer c2.Close()
	l := &scriptedListener{conns: make(chan net.Conn, 1), err: errors.New("too many open files")}
	l.conns <- c1

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		srv.acceptLoop(ctx, 7, l, q)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("accept loop kept running after an accept error")
	}

	assert.True(t, q.Closed())
	assert.Equal(t, 1, q.Len(), "the connection accepted before the error is still handed off")
	assert.True(t, l.closed.Load(), "listener must be closed on failure")

	st, ok := srv.Status().Get(transport.ProtocolStream, 7)
	require.True(t, ok)
	assert.Equal(t, StateFailed, st.State)
	assert.Contains(t, st.Err, "too many open files")
	assert.Equal(t, 1.0, failureCount(t, reg, "accept"))
}
