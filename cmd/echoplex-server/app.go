package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"echoplex/pkg/config"
	netstack "echoplex/pkg/core/netstack"
	"echoplex/pkg/observability"
	"echoplex/pkg/transport"
)

// run is the main entry point after CLI parsing.
func run(opts Options) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return serve(ctx, opts)
}

// serve starts every requested port and blocks until all port loops have
// ended or ctx is done. It returns the process exit code.
func serve(ctx context.Context, opts Options) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, err := observability.SetupLogger(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("failed to setup logger: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	proto, err := transport.ParseProtocol(opts.Protocol)
	if err != nil {
		zap.L().Error("invalid protocol", zap.String("arg", opts.Protocol), zap.Error(err))
		return 1
	}
	ports, rejected := config.ParsePorts(opts.Ports)
	for _, arg := range rejected {
		zap.L().Warn("skipping argument, not a valid port", zap.String("arg", arg))
	}
	zap.L().Debug("effective configuration", zap.Any("config", cfg))

	nsopts, err := netstack.OptionsFromConfig(cfg.Server)
	if err != nil {
		zap.L().Error("invalid server configuration", zap.Error(err))
		return 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	srv := netstack.NewServer(nsopts, observability.NewMetrics(reg), nil)
	defer srv.Close()

	if cfg.Metrics.Listen != "" {
		h := observability.Handler(reg, srv.Status().Ready, cfg.Metrics.GoroutineLimit)
		addr, err := observability.Serve(ctx, cfg.Metrics.Listen, h)
		if err != nil {
			zap.L().Error("failed to start metrics listener", zap.String("listen", cfg.Metrics.Listen), zap.Error(err))
			return 1
		}
		zap.L().Info("metrics listening", zap.Stringer("addr", addr))
	}

	bindings, err := srv.Start(ctx, proto, ports)
	if err != nil {
		zap.L().Error("failed to start ports", zap.Error(err))
		return 1
	}
	if len(bindings) == 0 {
		zap.L().Error("no port is serving", zap.String("protocol", proto.String()))
		return 1
	}

	done := make(chan struct{})
	go func() {
		srv.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		zap.L().Info("shutting down")
		cancel()
		<-done
		return 0
	}

	for _, st := range srv.Status().Snapshot() {
		if st.State != netstack.StateFailed {
			return 0
		}
	}
	return 1
}
