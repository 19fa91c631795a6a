package handler

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "opsgate.v1.Auth"

// Reporter keeps a grpc health.Server in sync with the readiness probes.
type Reporter struct {
	checker  *Checker
	server   *health.Server
	interval time.Duration
	logger   *slog.Logger
}

// NewReporter returns a Reporter; the health server starts NOT_SERVING until the first probe passes.
func NewReporter(checker *Checker, interval time.Duration, logger *slog.Logger) *Reporter {
	srv := health.NewServer()
	srv.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	srv.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Reporter{checker: checker, server: srv, interval: interval, logger: logger}
}

// Server returns the health server to register with a grpc.Server.
func (r *Reporter) Server() *health.Server { return r.server }

// Probe runs one readiness check and updates the serving status.
func (r *Reporter) Probe(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := r.checker.Ready(ctx); err != nil {
		r.logger.WarnContext(ctx, "grpc health probe failed", "error", err)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	r.server.SetServingStatus("", status)
	r.server.SetServingStatus(ServiceName, status)
}

// Run probes every interval until ctx is done, then marks everything NOT_SERVING.
func (r *Reporter) Run(ctx context.Context) error {
	r.Probe(ctx)
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			r.server.Shutdown()
			return nil
		case <-t.C:
			r.Probe(ctx)
		}
	}
}
