package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"echoplex/pkg/config"
	"echoplex/pkg/core/handoff"
	netstack "echoplex/pkg/core/netstack"
	"echoplex/pkg/observability"
	"echoplex/pkg/protocol/codec"
	"echoplex/pkg/relay"
	"echoplex/pkg/transcript"
	"echoplex/pkg/transport"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return session(ctx, opts, os.Stdin, os.Stdout, os.Stderr)
}

// session connects to the destination and relays between in/out and the
// endpoint until the transport fails or ctx is done.
func session(ctx context.Context, opts Options, in io.Reader, out, errOut io.Writer) int {
	fail := func(format string, args ...any) int {
		_, _ = fmt.Fprintf(errOut, format+"\n", args...)
		return 1
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fail("failed to load config: %v", err)
	}
	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		return fail("failed to setup logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	proto, err := transport.ParseProtocol(protocolName(opts.Protocol))
	if err != nil {
		return fail("the argument must be either 'tcp' ('t') or 'udp' ('u'): %v", err)
	}
	if opts.Host == "" || opts.Port == "" {
		return fail("usage: echoplex-cat [flags] <host> <port>")
	}
	port, err := config.ParsePort(opts.Port)
	if err != nil {
		return fail("invalid port: %v", err)
	}
	if opts.Format == "" {
		opts.Format = cfg.Client.Format
	}
	format, err := relay.ParseFormat(opts.Format)
	if err != nil {
		return fail("%v", err)
	}

	addr, err := transport.Resolve(ctx, opts.Host, port)
	if err != nil {
		return fail("%v", err)
	}
	ep, err := netstack.Connect(ctx, proto, addr, netstack.DialOptionsFromConfig(cfg.Net))
	if err != nil {
		return fail("error while connecting to endpoint: %v", err)
	}
	defer ep.Close()
	zap.L().Debug("connected", zap.String("protocol", proto.String()), zap.Stringer("raddr", ep.RemoteAddr()))

	q := handoff.New[relay.Chunk]()
	go func() {
		if err := relay.ReadInput(in, q); err != nil {
			zap.L().Error("input stopped", zap.Error(err))
		}
	}()

	r := relay.New(ep, q, relay.NewPrinter(out, format), relay.Options{
		ReadBuffer:  cfg.Client.ReadBuffer,
		ReadTimeout: cfg.Client.ReadTimeout,
	})

	path, codecName := cfg.Client.Transcript, cfg.Client.TranscriptFormat
	if opts.Transcript != "" {
		path = opts.Transcript
	}
	if opts.TranscriptFormat != "" {
		codecName = opts.TranscriptFormat
	}
	if path != "" {
		rec, closeFn, err := openTranscript(path, codecName)
		if err != nil {
			return fail("transcript: %v", err)
		}
		defer closeFn()
		r.WithTranscript(rec)
	}

	err = r.Run(ctx)
	switch {
	case errors.Is(err, io.EOF):
		zap.L().Info("remote closed the connection")
		return 0
	case errors.Is(err, context.Canceled):
		return 0
	default:
		return fail("error while relaying: %v", err)
	}
}

func openTranscript(path, codecName string) (*transcript.Recorder, func(), error) {
	reg, err := codec.NewRegistry()
	if err != nil {
		return nil, nil, err
	}
	c, err := reg.Lookup(codecName)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}
	rec := transcript.New(f, c)
	return rec, func() {
		_ = rec.Flush()
		_ = f.Close()
	}, nil
}
