// Package grpcapi exposes the standard gRPC health service backed by the
// same readiness probe as /readyz.
package grpcapi

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"genaccess.org/internal/obs"
)

// ServiceName is the health service name clients can query besides "".
const ServiceName = "genaccess.v1.Identity"

// Probe reports whether backing stores are reachable.
type Probe interface {
	Ping(ctx context.Context) error
}

// Server tracks readiness and publishes it through grpc.health.v1.
type Server struct {
	health  *health.Server
	probe   Probe
	timeout time.Duration
}

func New(probe Probe) *Server {
	return &Server{health: health.NewServer(), probe: probe, timeout: 2 * time.Second}
}

// Register attaches the health and reflection services to gs.
func (s *Server) Register(gs *grpc.Server) {
	healthpb.RegisterHealthServer(gs, s.health)
	reflection.Register(gs)
}

// Refresh probes once and updates the published status.
func (s *Server) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if s.probe != nil {
		pctx, cancel := context.WithTimeout(ctx, s.timeout)
		err := s.probe.Ping(pctx)
		cancel()
		if err != nil {
			obs.Logger().WarnContext(ctx, "readiness probe failed", "component", "grpc", "error", err)
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
	return status
}

// Run refreshes the status every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Shutdown marks every service as not serving.
func (s *Server) Shutdown() { s.health.Shutdown() }
