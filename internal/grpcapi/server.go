package grpcapi

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/BrandonDHaskell/rollcall/internal/metrics"
)

// NewGRPCServer registers the attendance service and the standard health
// service on a new grpc.Server.
func NewGRPCServer(srv AttendanceServer, logger *slog.Logger) *grpc.Server {
	g := grpc.NewServer(grpc.ChainUnaryInterceptor(loggingInterceptor(logger.With("component", "grpc"))))
	g.RegisterService(&ServiceDesc, srv)

	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(g, hs)
	return g
}

func loggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)
		metrics.GRPCRequests.WithLabelValues(info.FullMethod, code.String()).Inc()
		logger.Info("rpc", "method", info.FullMethod, "code", code.String(), "from", peerIP(ctx), "dur", time.Since(start))
		return resp, err
	}
}
