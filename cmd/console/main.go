package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/console/handler"
	"github.com/xela07ax/spaceai-anticheat/internal/console/server"
	"github.com/xela07ax/spaceai-anticheat/internal/console/service"
	"github.com/xela07ax/spaceai-anticheat/internal/engine"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
	"github.com/xela07ax/spaceai-anticheat/internal/infra/auth"
	"github.com/xela07ax/spaceai-anticheat/internal/kvstore"
	"github.com/xela07ax/spaceai-anticheat/internal/repository/postgres"
	"github.com/xela07ax/spaceai-anticheat/internal/risk"
)

func main() {
	cfg, err := infra.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := infra.NewLogger(cfg.Logger)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// 1. Ключ подписи токенов (есть только у консоли)
	privateKey, err := auth.ParseRSAPrivateKey(cfg.Auth.PrivateKey)
	if err != nil {
		logger.Fatal("private key is required for console", zap.Error(err))
	}

	// 2. Инициализация ресурсов
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	db, err := postgres.Open(ctx, cfg.Database)
	cancel()
	if err != nil {
		logger.Fatal("database unreachable", zap.Error(err))
	}
	defer db.Close()

	rdb := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.Redis.Addr},
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	userRepo := postgres.NewUserRepo(db)
	violationRepo := postgres.NewViolationRepo(db)
	store := kvstore.NewRedisStore(rdb, kvstore.WithCASAttempts(cfg.Redis.CASAttempts))

	// Разблокировка идет тем же путем, что и блокировка движком:
	// Postgres -> Redis set + сигнал всем инстансам
	sm := engine.NewSuspensionManager(rdb, userRepo, logger)
	statusUpdater := engine.NewReliableStatusUpdater(
		risk.MultiStatusUpdater{userRepo, sm},
		cfg.Engine, engine.NewMetrics(nil), logger,
	)
	scorer := risk.NewScorer(store, cfg.Policy.ToDomain(), statusUpdater, logger)

	// 3. Слои (Dependency Injection)
	authService := service.NewAuthService(userRepo, privateKey, cfg.Auth.TokenTTL)
	riskService := service.NewRiskService(scorer, violationRepo, statusUpdater, logger)

	consoleSrv := server.NewConsoleServer(logger,
		authService,
		handler.NewAuthHandler(authService),
		handler.NewRiskHandler(riskService, logger),
	)

	// 4. Запуск сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Console.Port),
		Handler:      consoleSrv,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("console API started", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("console shutdown failed", zap.Error(err))
	}
	logger.Info("console API exited properly")
}
