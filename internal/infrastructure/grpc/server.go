package grpc

import (
	"context"
	"fmt"
	"net"

	"github.com/wxmarkets/billing-service/internal/config"
	pkglogger "github.com/wxmarkets/billing-service/pkg/logger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type Server struct {
	config   *config.Config
	logger   *zap.Logger
	server   *grpc.Server
	listener net.Listener
}

func NewServer(cfg *config.Config, logger *zap.Logger) *Server {
	return &Server{
		config: cfg,
		logger: logger,
	}
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.GRPC.Host, s.config.Server.GRPC.Port)

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}
	s.listener = listener

	s.server = grpc.NewServer(
		grpc.UnaryInterceptor(pkglogger.NewGrpcUnaryServerInterceptor(s.logger)),
		grpc.StreamInterceptor(pkglogger.NewGrpcStreamServerInterceptor(s.logger)),
	)

	// Liveness for the service mesh; billing has no RPC API beyond this.
	healthServer := health.NewServer()
	healthServer.SetServingStatus(s.config.Service.Name, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(s.server, healthServer)

	s.logger.Info("Starting gRPC server", zap.String("address", addr))

	return s.server.Serve(listener)
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		s.server.GracefulStop()
	}
	return nil
}
