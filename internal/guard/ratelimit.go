package guard

import (
	"context"
	"fmt"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
	"github.com/xela07ax/spaceai-anticheat/internal/kvstore"
)

// RateLimiter — фиксированное окно на пару (пользователь, тип действия).
type RateLimiter struct {
	store    kvstore.Store
	policy   domain.Policy
	reporter Reporter
}

// Check увеличивает счетчик окна и сравнивает его с лимитом.
// Инкремент и TTL — одна атомарная операция: у каждого запроса свой номер в окне.
func (l *RateLimiter) Check(ctx context.Context, userID, actionType string) (bool, error) {
	count, err := l.store.IncrWindow(ctx, infra.RateKey(userID, actionType), l.policy.RateWindow)
	if err != nil {
		return false, fmt.Errorf("check action rate: %w", err)
	}

	limit := l.policy.RateLimit(actionType)
	if count > limit {
		l.reporter.Report(ctx, userID, domain.ViolationRateLimitExceeded, map[string]any{
			"actionType": actionType,
			"count":      count,
			"limit":      limit,
		})
		return false, nil
	}
	return true, nil
}
