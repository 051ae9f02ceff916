package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// StartServer binds /metrics for service on port and serves it in the
// background. A port that cannot be bound is logged and metrics are not
// exposed; the returned function is safe to call either way.
func StartServer(service string, port int) (shutdown func(context.Context) error) {
	logger := slog.Default().With("component", "metrics-server", "service", service)
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", Handler())

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		logger.Error("metrics listener failed, metrics not exposed", "addr", server.Addr, "error", err)
		return func(context.Context) error { return nil }
	}

	go func() {
		logger.Info("metrics server listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", "error", err)
		}
	}()
	return server.Shutdown
}
