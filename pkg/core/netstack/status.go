package netstack

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"

	"echoplex/pkg/transport"
)

// PortState is the lifecycle of one served port. Failed is terminal.
type PortState int

const (
	StateBinding PortState = iota
	StateListening
	StateFailed
	StateStopped
)

func (s PortState) String() string {
	switch s {
	case StateBinding:
		return "binding"
	case StateListening:
		return "listening"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// PortStatus is a snapshot of one port as published by its loops.
type PortStatus struct {
	Protocol transport.Protocol
	Port     uint16
	Addr     net.Addr
	State    PortState
	Peers    int
	Err      string
	Since    time.Time
}

// Registry is the shared view of every port the server started. Loops
// write their own entry; health checks and the CLI read.
type Registry struct {
	ports cmap.ConcurrentMap[string, PortStatus]
}

func NewRegistry() *Registry {
	return &Registry{ports: cmap.New[PortStatus]()}
}

func statusKey(p transport.Protocol, port uint16) string {
	return fmt.Sprintf("%s:%d", p, port)
}

func (r *Registry) set(p transport.Protocol, port uint16, fn func(*PortStatus)) {
	if r == nil {
		return
	}
	r.ports.Upsert(statusKey(p, port), PortStatus{}, func(exist bool, old, _ PortStatus) PortStatus {
		if !exist {
			old = PortStatus{Protocol: p, Port: port}
		}
		prev := old.State
		fn(&old)
		if !exist || old.State != prev {
			old.Since = time.Now()
		}
		return old
	})
}

// Get returns the status of one port.
func (r *Registry) Get(p transport.Protocol, port uint16) (PortStatus, bool) {
	return r.ports.Get(statusKey(p, port))
}

// Snapshot returns every port ordered by protocol then port number.
func (r *Registry) Snapshot() []PortStatus {
	items := r.ports.Items()
	out := make([]PortStatus, 0, len(items))
	for _, st := range items {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Protocol != out[j].Protocol {
			return out[i].Protocol < out[j].Protocol
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// Ready fails when no port is listening or any port has failed.
func (r *Registry) Ready() error {
	var failed []string
	listening := 0
	for _, st := range r.Snapshot() {
		switch st.State {
		case StateListening:
			listening++
		case StateFailed:
			failed = append(failed, statusKey(st.Protocol, st.Port))
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("ports failed: %s", strings.Join(failed, ", "))
	}
	if listening == 0 {
		return errors.New("no port listening")
	}
	return nil
}
