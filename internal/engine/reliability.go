package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
	"github.com/xela07ax/spaceai-anticheat/internal/risk"
)

// ErrStatusThrottled — очередь к лимитеру не дождалась слота до отмены контекста.
var ErrStatusThrottled = errors.New("user status update throttled")

// ReliableStatusUpdater защищает вызовы сервиса управления аккаунтами:
// лимитер, предохранитель и повторы с бэкоффом.
type ReliableStatusUpdater struct {
	next    risk.UserStatusUpdater
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
	retries uint
	delay   time.Duration
}

func NewReliableStatusUpdater(next risk.UserStatusUpdater, cfg infra.EngineConfig, metrics *Metrics, logger *zap.Logger) *ReliableStatusUpdater {
	const name = "user-status"
	logger = logger.Named("status-updater")

	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
			metrics.CircuitBreakerState.WithLabelValues(name).Set(breakerGauge(to))
		},
	})
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return &ReliableStatusUpdater{
		next:    next,
		cb:      cb,
		limiter: rate.NewLimiter(rate.Limit(cfg.StatusRPS), cfg.StatusBurst),
		timeout: 5 * time.Second,
		retries: 3,
		delay:   50 * time.Millisecond,
	}
}

func (u *ReliableStatusUpdater) SetUserStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	// 1. Rate Limiter: лавина санкций растягивается во времени, но не теряется
	if err := u.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: user %s: %w", ErrStatusThrottled, userID, err)
	}

	// 2. Circuit Breaker поверх повторов: одна серия повторов — одна попытка для CB
	_, err := u.cb.Execute(func() (interface{}, error) {
		return nil, retry.New(
			retry.Context(ctx),
			retry.Attempts(u.retries),
			retry.Delay(u.delay),
			retry.DelayType(retry.BackOffDelay),
			retry.LastErrorOnly(true),
		).Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, u.timeout)
			defer cancel()
			return u.next.SetUserStatus(tCtx, userID, status)
		})
	})
	if err != nil {
		return fmt.Errorf("set user status %s: %w", status, err)
	}
	return nil
}

func breakerGauge(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 0.5
	default:
		return 0
	}
}
