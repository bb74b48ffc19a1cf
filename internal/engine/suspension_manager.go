package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
)

// SuspendedProvider — источник правды о заблокированных пользователях.
type SuspendedProvider interface {
	GetSuspendedUsers(ctx context.Context) ([]string, error)
}

// SuspensionManager держит локальный кэш заблокированных пользователей,
// синхронизированный между инстансами через Redis set и Pub/Sub.
type SuspensionManager struct {
	repo   SuspendedProvider
	rdb    redis.UniversalClient
	logger *zap.Logger

	mu        sync.RWMutex
	suspended map[string]struct{}
}

func NewSuspensionManager(rdb redis.UniversalClient, repo SuspendedProvider, logger *zap.Logger) *SuspensionManager {
	return &SuspensionManager{
		repo:      repo,
		rdb:       rdb,
		logger:    logger.With(zap.String("mod", "suspension")),
		suspended: make(map[string]struct{}),
	}
}

// Init загружает состояние блокировок при старте сервиса и после переподключения.
// Postgres прогревает пустой Redis, затем кэш целиком пересобирается из БД и Redis set,
// так что разблокировки, пропущенные за время обрыва, тоже применяются.
func (m *SuspensionManager) Init(ctx context.Context) error {
	ids, err := m.repo.GetSuspendedUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch suspended users from DB: %w", err)
	}

	stats, err := WarmupSet(ctx, m.rdb, infra.RedisKeySuspendedUsers, infra.GetWarmupLockKey("suspended"), ids)
	if err != nil {
		return err
	}
	m.logger.Info("suspension state warm-up",
		zap.Int("from_db", stats.FromDB),
		zap.Int("in_redis", stats.InRedis),
		zap.Int("seeded", stats.Seeded),
		zap.Bool("skipped", stats.Skipped),
	)

	members, err := m.rdb.SMembers(ctx, infra.RedisKeySuspendedUsers).Result()
	if err != nil {
		return fmt.Errorf("failed to read suspended set: %w", err)
	}
	m.replaceAll(append(ids, members...))
	return nil
}

func (m *SuspensionManager) replaceAll(ids []string) {
	next := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}
	m.mu.Lock()
	m.suspended = next
	m.mu.Unlock()
}

func (m *SuspensionManager) apply(userID string, suspended bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if suspended {
		m.suspended[userID] = struct{}{}
	} else {
		delete(m.suspended, userID)
	}
}

// StartListener подписывается на сигналы блокировки. Блокирует до отмены ctx.
func (m *SuspensionManager) StartListener(ctx context.Context) {
	ListenStateResilient(ctx, m.rdb, m.logger, infra.RedisChanSuspension,
		func() error { return m.Init(ctx) },
		func(id string, status bool) {
			m.apply(id, status)
			m.logger.Info("suspension signal applied", zap.String("user_id", id), zap.Bool("suspended", status))
		},
	)
}

// IsSuspended — быстрая проверка для горячего пути.
func (m *SuspensionManager) IsSuspended(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.suspended[userID]
	return ok
}

// SetUserStatus реализует risk.UserStatusUpdater: обновляет общий set и рассылает сигнал
// остальным инстансам. Локальный кэш обновляется сразу, не дожидаясь своего же сигнала.
func (m *SuspensionManager) SetUserStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	suspended := status == domain.UserStatusSuspended
	signal := "off"
	if suspended {
		signal = "on"
	}

	_, err := m.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if suspended {
			pipe.SAdd(ctx, infra.RedisKeySuspendedUsers, userID)
		} else {
			pipe.SRem(ctx, infra.RedisKeySuspendedUsers, userID)
		}
		pipe.Publish(ctx, infra.RedisChanSuspension, userID+":"+signal)
		return nil
	})
	if err != nil {
		return fmt.Errorf("propagate user status: %w", err)
	}

	m.apply(userID, suspended)
	return nil
}
