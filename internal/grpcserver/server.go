// Package grpcserver exposes the internal gRPC surface: the standard health
// service, reporting readiness of the chat service's backing stores.
package grpcserver

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"chatline/internal/observability"
)

// ServiceName is the health entry for the chat service itself.
const ServiceName = "chatline.Chat"

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Server wraps a grpc.Server and its health registry.
type Server struct {
	grpc   *grpc.Server
	health *health.Server
	deps   Pinger
}

// New builds the gRPC server. deps may be nil, in which case the service is
// always reported as serving.
func New(deps Pinger) *Server {
	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(observability.GRPCServerMetricsUnaryInterceptor()),
	)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	s := &Server{grpc: srv, health: hs, deps: deps}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
	return s
}

// Serve blocks serving on lis until Stop is called.
func (s *Server) Serve(lis net.Listener) error {
	log.Info().Str("addr", lis.Addr().String()).Msg("grpc server listening")
	return s.grpc.Serve(lis)
}

// Watch re-checks dependencies every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	if s.deps == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		s.Check(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Check pings the dependencies once and updates the reported status.
func (s *Server) Check(ctx context.Context) {
	if s.deps == nil {
		return
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := s.deps.PingContext(pingCtx); err != nil {
		log.Warn().Err(err).Msg("dependency check failed")
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
		return
	}
	s.setStatus(healthpb.HealthCheckResponse_SERVING)
}

// Stop marks the service as not serving and drains in-flight calls.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) setStatus(status healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", status)
	s.health.SetServingStatus(ServiceName, status)
}
