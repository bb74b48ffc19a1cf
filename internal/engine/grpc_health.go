package engine

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// HealthService — имя сервиса в gRPC health протоколе.
const HealthService = "anticheat.Engine"

// NewGRPCServer поднимает gRPC сервер со стандартным health сервисом.
// Статус обновляет WatchHealth.
func NewGRPCServer(logger *zap.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer(grpc.UnaryInterceptor(UnaryLoggingInterceptor(logger)))
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return srv, hs
}

// WatchHealth периодически пингует хранилище и переключает статус сервиса.
// Без общего хранилища проверки бессмысленны, поэтому NOT_SERVING.
func WatchHealth(ctx context.Context, hs *health.Server, store Pinger, every time.Duration, logger *zap.Logger) {
	check := func() {
		pCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err := store.Ping(pCtx); err != nil {
			st = healthpb.HealthCheckResponse_NOT_SERVING
			logger.Warn("store ping failed", zap.Error(err))
		}
		hs.SetServingStatus(HealthService, st)
		hs.SetServingStatus("", st)
	}

	check()
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			hs.Shutdown()
			return
		case <-ticker.C:
			check()
		}
	}
}

// UnaryLoggingInterceptor пишет в лог неуспешные unary вызовы.
func UnaryLoggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Warn("grpc call failed",
				zap.String("method", info.FullMethod),
				zap.String("code", status.Code(err).String()),
				zap.Duration("took", time.Since(start)),
				zap.Error(err),
			)
		}
		return resp, err
	}
}
