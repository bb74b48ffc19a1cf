package guard

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
	"github.com/xela07ax/spaceai-anticheat/internal/kvstore"
)

// TemporalGate следит за минимальной паузой между повторами одного действия.
type TemporalGate struct {
	store    kvstore.Store
	policy   domain.Policy
	reporter Reporter
	now      func() time.Time
}

// Validate пропускает действие, если с прошлого принятого прошло не меньше кулдауна.
// Отклоненная попытка не сдвигает метку, иначе спам продлевал бы кулдаун бесконечно.
func (g *TemporalGate) Validate(ctx context.Context, userID, actionType string) (bool, error) {
	now := g.now()
	cooldown := g.policy.Cooldown(actionType)

	var (
		allowed bool
		elapsed time.Duration
	)
	err := g.store.Update(ctx, infra.LastActionKey(userID, actionType), func(cur string, exists bool) (string, bool, error) {
		allowed, elapsed = true, 0
		stamp := strconv.FormatInt(now.UnixMilli(), 10)
		if !exists {
			return stamp, true, nil
		}
		lastMs, err := strconv.ParseInt(cur, 10, 64)
		if err != nil {
			return "", false, fmt.Errorf("%w: last action timestamp %q", kvstore.ErrMalformedValue, cur)
		}
		last := time.UnixMilli(lastMs)
		elapsed = now.Sub(last)
		if cooldown > 0 && elapsed < cooldown {
			allowed = false
			return "", false, nil
		}
		// Метка не должна уменьшаться (разъехавшиеся часы инстансов)
		if now.Before(last) {
			return "", false, nil
		}
		return stamp, true, nil
	})
	if err != nil {
		return false, fmt.Errorf("validate time based action: %w", err)
	}

	if !allowed {
		g.reporter.Report(ctx, userID, domain.ViolationTimeBased, map[string]any{
			"actionType": actionType,
			"elapsedMs":  elapsed.Milliseconds(),
			"requiredMs": cooldown.Milliseconds(),
		})
	}
	return allowed, nil
}
