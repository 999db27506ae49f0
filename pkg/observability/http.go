package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler serves /metrics from gatherer plus /live and /ready. ready is the
// readiness check; goroutineLimit bounds the liveness check.
func Handler(gatherer prometheus.Gatherer, ready healthcheck.Check, goroutineLimit int) http.Handler {
	health := healthcheck.NewHandler()
	if goroutineLimit > 0 {
		health.AddLivenessCheck("goroutines", healthcheck.GoroutineCountCheck(goroutineLimit))
	}
	if ready != nil {
		health.AddReadinessCheck("ports", ready)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	return mux
}

// Serve listens on addr and serves h until ctx is done. It returns the
// bound address once listening so callers can log it.
func Serve(ctx context.Context, addr string, h http.Handler) (net.Addr, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("metrics server stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	return l.Addr(), nil
}
