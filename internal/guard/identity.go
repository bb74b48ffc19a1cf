package guard

import (
	"context"
	"fmt"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
	"github.com/xela07ax/spaceai-anticheat/internal/kvstore"
)

// IdentityChecker ловит частую смену IP и слишком много параллельных сессий.
type IdentityChecker struct {
	store    kvstore.Store
	policy   domain.Policy
	reporter Reporter
}

// ValidateIP решает по списку, прочитанному до записи. Новый IP попадает в историю
// при любом исходе.
func (c *IdentityChecker) ValidateIP(ctx context.Context, userID, ip string) (bool, error) {
	key := infra.IPsKey(userID)
	recent, err := c.store.LRange(ctx, key, 0, c.policy.IPHistorySize-1)
	if err != nil {
		return false, fmt.Errorf("validate ip address: %w", err)
	}
	if err := c.store.PushTrim(ctx, key, ip, c.policy.IPHistorySize); err != nil {
		return false, fmt.Errorf("validate ip address: %w", err)
	}

	if len(recent) >= c.policy.IPDistinctThreshold && !contains(recent, ip) {
		c.reporter.Report(ctx, userID, domain.ViolationMultipleIPs, map[string]any{
			"ip":        ip,
			"recentIps": recent,
			"threshold": c.policy.IPDistinctThreshold,
		})
		return false, nil
	}
	return true, nil
}

// ValidateSession считает только живые сессии: каждая истекает через SessionTTL
// после последнего обращения. Повтор уже известной сессии продлевает ее.
func (c *IdentityChecker) ValidateSession(ctx context.Context, userID, sessionID string) (bool, error) {
	key := infra.SessionsKey(userID)
	active, err := c.store.LiveMembers(ctx, key)
	if err != nil {
		return false, fmt.Errorf("validate session: %w", err)
	}

	if len(active) > c.policy.MaxSessions && !contains(active, sessionID) {
		c.reporter.Report(ctx, userID, domain.ViolationMultipleSessions, map[string]any{
			"sessionId":      sessionID,
			"activeSessions": len(active),
			"maxSessions":    c.policy.MaxSessions,
		})
		return false, nil
	}

	if err := c.store.TouchMember(ctx, key, sessionID, c.policy.SessionTTL); err != nil {
		return false, fmt.Errorf("validate session: %w", err)
	}
	return true, nil
}
