package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidPort marks an argument that is not a port number in 0..65535.
var ErrInvalidPort = errors.New("not a valid port")

// ParsePort parses one decimal port, ignoring surrounding space.
func ParsePort(s string) (uint16, error) {
	p, err := strconv.ParseUint(strings.TrimSpace(s), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%q: %w", strings.TrimSpace(s), ErrInvalidPort)
	}
	return uint16(p), nil
}

// ParsePorts splits args into valid ports and rejected arguments, both in
// input order.
func ParsePorts(args []string) (ports []uint16, rejected []string) {
	for _, a := range args {
		p, err := ParsePort(a)
		if err != nil {
			rejected = append(rejected, strings.TrimSpace(a))
			continue
		}
		ports = append(ports, p)
	}
	return ports, rejected
}
