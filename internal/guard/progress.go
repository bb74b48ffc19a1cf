package guard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
	"github.com/xela07ax/spaceai-anticheat/internal/kvstore"
)

var ErrInvalidProgress = errors.New("progress must be a finite number")

// ProgressValidator ограничивает скорость роста прогресса по достижению.
type ProgressValidator struct {
	store    kvstore.Store
	policy   domain.Policy
	reporter Reporter
}

// maxAllowedIncrease = max(ProgressMinIncrease, previous*ProgressMaxRatio)
func maxAllowedIncrease(previous float64, p domain.Policy) float64 {
	return math.Max(p.ProgressMinIncrease, previous*p.ProgressMaxRatio)
}

// Validate принимает новое значение, если прирост не превышает допустимый.
// Уменьшение прогресса не проверяется (ограничена только верхняя граница).
// Отклоненное значение никогда не попадает в хранилище.
func (v *ProgressValidator) Validate(ctx context.Context, userID, achievementID string, newProgress float64, metadata map[string]any) (bool, error) {
	if math.IsNaN(newProgress) || math.IsInf(newProgress, 0) {
		return false, ErrInvalidProgress
	}

	var (
		accepted   bool
		previous   float64
		maxAllowed float64
	)
	next := strconv.FormatFloat(newProgress, 'f', -1, 64)

	err := v.store.Update(ctx, infra.ProgressKey(userID, achievementID), func(cur string, exists bool) (string, bool, error) {
		if !exists {
			accepted = true
			return next, true, nil
		}
		prev, err := strconv.ParseFloat(cur, 64)
		if err != nil {
			return "", false, fmt.Errorf("%w: progress marker %q", kvstore.ErrMalformedValue, cur)
		}
		previous = prev
		maxAllowed = maxAllowedIncrease(prev, v.policy)
		accepted = newProgress-prev <= maxAllowed
		return next, accepted, nil
	})
	if err != nil {
		return false, fmt.Errorf("validate progress update: %w", err)
	}

	if !accepted {
		details := map[string]any{
			"achievementId":      achievementID,
			"previousProgress":   previous,
			"newProgress":        newProgress,
			"maxAllowedIncrease": maxAllowed,
		}
		if len(metadata) > 0 {
			details["metadata"] = metadata
		}
		v.reporter.Report(ctx, userID, domain.ViolationAbnormalProgress, details)
	}
	return accepted, nil
}
