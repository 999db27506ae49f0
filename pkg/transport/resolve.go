package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// ErrNoAddress is returned when a host resolves to an empty address list.
var ErrNoAddress = errors.New("no ip address found for host")

// Resolve turns host and port into exactly one address. IP literals are
// returned as-is; names are looked up and the first result wins.
func Resolve(ctx context.Context, host string, port uint16) (netip.AddrPort, error) {
	if ip, err := netip.ParseAddr(host); err == nil {
		return netip.AddrPortFrom(ip.Unmap(), port), nil
	}
	ips, err := net.DefaultResolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: %w", net.JoinHostPort(host, strconv.Itoa(int(port))), err)
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("resolve %s: %w", host, ErrNoAddress)
	}
	return netip.AddrPortFrom(ips[0].Unmap(), port), nil
}

// WildcardAddr is the all-interfaces bind address for port.
func WildcardAddr(port uint16) string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(int(port)))
}
