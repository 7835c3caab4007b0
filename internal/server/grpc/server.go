// Package grpc serves the standard grpc.health.v1 service. A background
// loop pings the storage backends and flips the serving status.
package grpc

import (
	"context"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// ServiceName is the health service name clients ask about.
const ServiceName = "authkeeper"

// Check pings one dependency.
type Check func(ctx context.Context) error

type HealthServer struct {
	address  string
	interval time.Duration
	checks   map[string]Check
	health   *health.Server
	logger   logging.Logger
}

func NewHealthServer(address string, interval time.Duration, checks map[string]Check, l logging.Logger) *HealthServer {
	s := &HealthServer{
		address:  address,
		interval: interval,
		checks:   checks,
		health:   health.NewServer(),
		logger:   l.With("module", "grpc_server"),
	}
	s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

func (s *HealthServer) setStatus(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(ServiceName, st)
}

// CheckOnce runs every check and updates the serving status. It reports
// whether all checks passed.
func (s *HealthServer) CheckOnce(ctx context.Context) bool {
	timeout := s.interval
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ok := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			s.logger.Warn(ctx, "health check failed", "dependency", name, "error", err)
			ok = false
		}
	}

	if ok {
		s.setStatus(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.setStatus(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return ok
}

func (s *HealthServer) watch(ctx context.Context) {
	s.CheckOnce(ctx)
	if s.interval <= 0 {
		return
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CheckOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *HealthServer) Run(ctx context.Context) error {
	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on listen until ctx is done.
func (s *HealthServer) Serve(ctx context.Context, listen net.Listener) error {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, s.health)

	go s.watch(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
