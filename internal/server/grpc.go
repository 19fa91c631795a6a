package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	healthhandler "opsgate/internal/health/handler"
)

// NewHealthGRPCServer returns a gRPC server exposing only the standard health service,
// instrumented with the global OpenTelemetry providers.
func NewHealthGRPCServer(reporter *healthhandler.Reporter) *grpc.Server {
	s := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(s, reporter.Server())
	return s
}
