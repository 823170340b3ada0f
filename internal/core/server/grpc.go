// Package server provides gRPC server lifecycle management.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/solatis/mario/internal/core/api"
	"github.com/solatis/mario/internal/core/auth"
	"github.com/solatis/mario/internal/core/config"
)

// shutdownTimeout bounds GracefulStop before in-flight calls are cut.
const shutdownTimeout = 30 * time.Second

// envelopeOverhead leaves room for the Struct framing around a payload of
// the maximum message size, base64 growth included.
const envelopeOverhead = 64 * 1024

// GRPCServer manages gRPC server lifecycle.
type GRPCServer struct {
	server   *grpc.Server
	health   *health.Server
	listener net.Listener
	config   config.ServeConfig
}

// NewGRPCServer creates gRPC server with auth interceptor and service registration.
func NewGRPCServer(cfg config.ServeConfig, service api.PlumberServer, authenticator *auth.Authenticator) (*GRPCServer, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if authenticator == nil {
		return nil, fmt.Errorf("authenticator cannot be nil")
	}

	opts := []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			authenticator.UnaryInterceptor(),
			timeoutInterceptor(cfg.RequestTimeout),
		),
		grpc.MaxRecvMsgSize(cfg.MaxMessageSize*4/3 + envelopeOverhead),
		grpc.MaxConcurrentStreams(uint32(cfg.MaxConnections)),
	}

	server := grpc.NewServer(opts...)
	api.RegisterPlumberServer(server, service)

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(api.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	return &GRPCServer{
		server: server,
		health: healthServer,
		config: cfg,
	}, nil
}

// timeoutInterceptor bounds every call by the configured request timeout.
func timeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if timeout <= 0 {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return handler(ctx, req)
	}
}

// Listen binds the configured address. Separate from Serve so callers can
// report the bound address (port 0 picks a free port).
func (s *GRPCServer) Listen() (net.Addr, error) {
	addr := net.JoinHostPort(s.config.Host, fmt.Sprint(s.config.Port))
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", addr, err)
	}
	s.listener = listener
	return listener.Addr(), nil
}

// Start serves gRPC requests, binding first when Listen was not called.
// Blocks until Shutdown is called.
func (s *GRPCServer) Start(ctx context.Context) error {
	if s.listener == nil {
		if _, err := s.Listen(); err != nil {
			return err
		}
	}
	return s.server.Serve(s.listener)
}

// Shutdown marks the service not serving and gracefully stops the server.
func (s *GRPCServer) Shutdown(ctx context.Context) error {
	s.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.server.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		s.server.Stop()
		return fmt.Errorf("shutdown cancelled by context: %w", ctx.Err())
	case <-time.After(shutdownTimeout):
		s.server.Stop()
		return fmt.Errorf("graceful shutdown timeout, forced stop")
	}
}
