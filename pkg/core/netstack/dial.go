package netstack

import (
	"context"
	"fmt"
	"net/netip"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"echoplex/pkg/config"
	"echoplex/pkg/transport"
	"echoplex/pkg/transport/tcp"
	"echoplex/pkg/transport/udp"
)

// DialOptions controls how the client reaches its destination.
type DialOptions struct {
	// Attempts is the total number of connect attempts; values below 1 mean 1
	Attempts       int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// DatagramBuffer sizes the udp endpoint's reassembly buffer
	DatagramBuffer int
}

// DialOptionsFromConfig converts validated client configuration.
func DialOptionsFromConfig(n config.NetConfig) DialOptions {
	return DialOptions{
		Attempts:       n.DialAttempts,
		BackoffInitial: n.BackoffInitial(),
		BackoffMax:     n.BackoffMax(),
	}
}

// Connect opens an Endpoint of protocol p to an already resolved address.
// Failed attempts are retried with exponential backoff up to
// opts.Attempts in total.
func Connect(ctx context.Context, p transport.Protocol, addr netip.AddrPort, opts DialOptions) (transport.Endpoint, error) {
	var ep transport.Endpoint
	op := func() error {
		var err error
		ep, err = dialOnce(ctx, p, addr, opts)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		zap.L().Warn("connect failed, retrying", zap.String("protocol", p.String()), zap.Stringer("addr", addr), zap.Duration("in", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, newBackoff(ctx, opts), notify); err != nil {
		return nil, err
	}
	return ep, nil
}

func dialOnce(ctx context.Context, p transport.Protocol, addr netip.AddrPort, opts DialOptions) (transport.Endpoint, error) {
	switch p {
	case transport.ProtocolStream:
		return tcp.Dial(ctx, addr)
	case transport.ProtocolDatagram:
		return udp.Dial(ctx, addr, opts.DatagramBuffer)
	default:
		return nil, backoff.Permanent(fmt.Errorf("connect: %w", transport.ErrUnknownProtocol))
	}
}

func newBackoff(ctx context.Context, opts DialOptions) backoff.BackOff {
	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}
	eb := backoff.NewExponentialBackOff()
	if opts.BackoffInitial > 0 {
		eb.InitialInterval = opts.BackoffInitial
	}
	if opts.BackoffMax > 0 {
		eb.MaxInterval = opts.BackoffMax
	}
	eb.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(eb, uint64(attempts-1)), ctx)
}
