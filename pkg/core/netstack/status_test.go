package netstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"echoplex/pkg/transport"
)

func TestRegistryLifecycle(t *testing.T) {
	r := NewRegistry()
	assert.EqualError(t, r.Ready(), "no port listening")

	r.set(transport.ProtocolStream, 7, func(st *PortStatus) { st.State = StateListening })
	r.set(transport.ProtocolDatagram, 7, func(st *PortStatus) { st.State = StateListening })
	require.NoError(t, r.Ready())

	first, _ := r.Get(transport.ProtocolStream, 7)
	r.set(transport.ProtocolStream, 7, func(st *PortStatus) { st.Peers = 3 })
	same, _ := r.Get(transport.ProtocolStream, 7)
	assert.Equal(t, first.Since, same.Since, "peer count changes keep the state timestamp")
	assert.Equal(t, 3, same.Peers)

	r.set(transport.ProtocolStream, 9, func(st *PortStatus) {
		st.State = StateFailed
		st.Err = "bind: in use"
	})
	assert.ErrorContains(t, r.Ready(), "tcp:9")

	snap := r.Snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, transport.ProtocolStream, snap[0].Protocol)
	assert.Equal(t, uint16(7), snap[0].Port)
	assert.Equal(t, uint16(9), snap[1].Port)
	assert.Equal(t, transport.ProtocolDatagram, snap[2].Protocol)
}

func TestNilRegistrySetIsNoop(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.set(transport.ProtocolStream, 1, func(st *PortStatus) { st.State = StateFailed })
	})
}

func TestPortStateString(t *testing.T) {
	assert.Equal(t, "listening", StateListening.String())
	assert.Equal(t, "failed", StateFailed.String())
}
