// Package health publishes each sensor's lifecycle over the standard gRPC
// health checking protocol. A sensor's service name is its kind; it reports
// SERVING while the sensor has listeners, NOT_SERVING while idle and
// SERVICE_UNKNOWN when the device lacks it. The empty service name reports
// the process itself.
package health

import (
	"context"
	"errors"
	"fmt"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/banshee-data/sensorhub/internal/monitoring"
	"github.com/banshee-data/sensorhub/internal/sensormux"
)

// Tracked is a sensor whose state the health service reports.
type Tracked interface {
	Name() string
	IsSupported() bool
	State() sensormux.State
	SetStateHook(f func(name string, s sensormux.State))
}

// Server is a gRPC server carrying the health service.
type Server struct {
	health *health.Server
	grpc   *grpc.Server
}

// NewServer creates a server with the health service registered. The
// process reports SERVING until the server shuts down.
func NewServer(opts ...grpc.ServerOption) *Server {
	s := &Server{
		health: health.NewServer(),
		grpc:   grpc.NewServer(opts...),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return s
}

// Track publishes t's current state and follows its transitions. It
// replaces any state hook already installed on t.
func (s *Server) Track(t Tracked) {
	name := t.Name()
	if !t.IsSupported() {
		s.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVICE_UNKNOWN)
		return
	}
	t.SetStateHook(func(name string, state sensormux.State) {
		s.health.SetServingStatus(name, servingStatus(state))
	})
	s.health.SetServingStatus(name, servingStatus(t.State()))
}

func servingStatus(state sensormux.State) healthpb.HealthCheckResponse_ServingStatus {
	if state == sensormux.Active {
		return healthpb.HealthCheckResponse_SERVING
	}
	return healthpb.HealthCheckResponse_NOT_SERVING
}

// Health returns the health service, for in-process checks.
func (s *Server) Health() healthpb.HealthServer {
	return s.health
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("health: failed to listen: %w", err)
	}
	return s.Serve(ctx, lis)
}

// Serve serves on lis until ctx is cancelled, then marks every service
// NOT_SERVING and stops gracefully.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		monitoring.Opsf("health: gRPC server listening on %s", lis.Addr())
		errCh <- s.grpc.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		s.health.Shutdown()
		s.grpc.GracefulStop()
		<-errCh
		monitoring.Opsf("health: gRPC server stopped")
		return nil
	case err := <-errCh:
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return fmt.Errorf("health: %w", err)
	}
}
