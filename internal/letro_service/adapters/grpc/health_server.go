package grpc

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall status.
const ServiceName = "letro.LetroServer"

// Pinger is satisfied by the pairing request repositories.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthServer reports SERVING while the pairing request store answers pings.
type HealthServer struct {
	health *health.Server
	store  Pinger
	logger *slog.Logger

	lastStatus healthpb.HealthCheckResponse_ServingStatus
}

func NewHealthServer(store Pinger, logger *slog.Logger) *HealthServer {
	s := &HealthServer{
		health:     health.NewServer(),
		store:      store,
		logger:     logger.With("component", "grpc_health_server"),
		lastStatus: healthpb.HealthCheckResponse_UNKNOWN,
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the health service to srv.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// CheckOnce pings the store and updates the reported status.
func (s *HealthServer) CheckOnce(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	status := healthpb.HealthCheckResponse_SERVING
	if err := s.store.Ping(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		if s.lastStatus != status {
			s.logger.ErrorContext(ctx, "Pairing request store is unavailable", "error", err)
		}
	}
	s.setStatus(status)
	return status
}

// Run checks the store every interval until ctx is done, then reports NOT_SERVING.
func (s *HealthServer) Run(ctx context.Context, interval time.Duration) error {
	s.CheckOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return nil
		case <-ticker.C:
			s.CheckOnce(ctx)
		}
	}
}

func (s *HealthServer) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	if status == s.lastStatus {
		return
	}
	s.lastStatus = status
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
