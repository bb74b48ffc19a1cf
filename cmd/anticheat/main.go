package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/audit"
	"github.com/xela07ax/spaceai-anticheat/internal/engine"
	"github.com/xela07ax/spaceai-anticheat/internal/guard"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
	"github.com/xela07ax/spaceai-anticheat/internal/kvstore"
	"github.com/xela07ax/spaceai-anticheat/internal/repository/postgres"
	"github.com/xela07ax/spaceai-anticheat/internal/risk"
	"github.com/xela07ax/spaceai-anticheat/internal/traces"
)

func main() {
	// 0. Конфиг и логгер
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Контекст для управления жизненным циклом фоновых горутин
	// При SIGTERM cancel() остановит слушателей и health-монитор
	appCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := traces.Init(appCtx, cfg.Tracing.OTLPEndpoint, cfg.Tracing.ServiceName, logger)
	if err != nil {
		logger.Fatal("failed to init tracing", zap.Error(err))
	}

	// 1. Инфраструктура и ресурсы
	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	var store kvstore.Store
	switch cfg.Engine.StoreBackend {
	case infra.StoreBackendMemory:
		// Счетчики живут только в этом процессе, сигналы блокировок по-прежнему через Redis
		logger.Warn("using in-memory store, counters are not shared between instances")
		store = kvstore.NewMemoryStore()
	default:
		store = kvstore.NewRedisStore(rdb, kvstore.WithCASAttempts(cfg.Redis.CASAttempts))
	}

	db, err := postgres.Open(appCtx, cfg.Database)
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer db.Close()
	userRepo := postgres.NewUserRepo(db)
	violationRepo := postgres.NewViolationRepo(db)

	// Метрики
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := engine.NewMetrics(reg)

	// 2. Control Plane: кэш блокировок, синхронизированный между инстансами
	sm := engine.NewSuspensionManager(rdb, userRepo, logger)
	if err := sm.Init(appCtx); err != nil {
		logger.Fatal("failed to init suspension manager", zap.Error(err))
	}
	go sm.StartListener(appCtx)

	// 3. Архив нарушений (Postgres, пачками в фоне)
	archive := audit.NewArchive(violationRepo, logger,
		audit.WithBuffer(cfg.Engine.ArchiveBufferSize),
		audit.WithBatch(cfg.Engine.ArchiveBatchSize, cfg.Engine.ArchiveFlushInterval),
		audit.WithFillGauge(metrics.ArchiveBufferFill),
	)
	archive.Start()

	// 4. Санкции: Postgres (источник правды) -> Redis set + сигнал, под CB и rate limit
	statusUpdater := engine.NewReliableStatusUpdater(
		risk.MultiStatusUpdater{userRepo, sm},
		cfg.Engine, metrics, logger,
	)

	// 5. Ядро: риск-скоринг и проверки
	policy := cfg.Policy.ToDomain()
	scorer := risk.NewScorer(store, policy, statusUpdater, logger,
		risk.WithRecorder(metrics),
		risk.WithArchiver(archive),
		risk.WithSuspensionChecker(sm),
	)
	checks := guard.New(store, policy, scorer)

	gateway := engine.NewGateway(checks, scorer, store, sm, metrics, cfg.Engine.FailMode, logger)

	// 6. HTTP серверы: проверки и метрики
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      gateway.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	metricsSrv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: metricsMux,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	// 7. gRPC health для балансировщика
	grpcSrv, hs := engine.NewGRPCServer(logger)
	go engine.WatchHealth(appCtx, hs, store, 5*time.Second, logger)
	go func() {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.GRPC.Port))
		if err != nil {
			logger.Fatal("failed to listen gRPC", zap.Error(err))
		}
		logger.Info("gRPC health server started", zap.Int("port", cfg.GRPC.Port))
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("gRPC server stopped", zap.Error(err))
		}
	}()

	// 8. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("anti-cheat engine started",
			zap.String("addr", srv.Addr),
			zap.String("fail_mode", cfg.Engine.FailMode),
			zap.String("store", cfg.Engine.StoreBackend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop
	logger.Info("anti-cheat engine stopping...")

	// Даем 5 секунд на завершение запросов
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	grpcSrv.GracefulStop()
	cancel()

	// Архив останавливаем после HTTP: новых нарушений уже не будет, остаток сбрасываем в БД
	archive.Stop()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics shutdown failed", zap.Error(err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracing shutdown failed", zap.Error(err))
	}
	logger.Info("anti-cheat engine exited properly")
}
