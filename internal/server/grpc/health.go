package grpcserver

import (
	"context"

	"github.com/rzbill/evbus/internal/runtime"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// newHealth returns the standard health service, seeded from the runtime.
func newHealth(ctx context.Context, rt *runtime.Runtime) *health.Server {
	hs := health.NewServer()
	refreshHealth(ctx, rt, hs)
	return hs
}

// refreshHealth maps runtime health onto the overall and evbus.v1.Events
// serving status.
func refreshHealth(ctx context.Context, rt *runtime.Runtime, hs *health.Server) {
	status := healthpb.HealthCheckResponse_SERVING
	if err := rt.CheckHealth(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	hs.SetServingStatus("", status)
	hs.SetServingStatus(ServiceName, status)
}
