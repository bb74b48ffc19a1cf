// Package guard — синхронные anti-cheat проверки горячего пути геймификации.
//
// Каждая проверка — это решение (allow/deny) над счетчиками в общем хранилище
// плюс обновление этих счетчиков. Нарушения уходят в Reporter; ошибки хранилища
// возвращаются вызывающему коду, который сам выбирает fail-open или fail-closed.
// Отказ проверки — это false, а не ошибка.
package guard

import (
	"context"
	"time"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/kvstore"
	"github.com/xela07ax/spaceai-anticheat/internal/traces"
)

// Reporter — единственная точка побочных эффектов при нарушении (лог, метрика, risk score).
// Не возвращает ошибку: сбой учета не должен менять результат проверки.
type Reporter interface {
	Report(ctx context.Context, userID string, t domain.ViolationType, details map[string]any)
}

// ReporterFunc позволяет передать функцию как Reporter.
type ReporterFunc func(ctx context.Context, userID string, t domain.ViolationType, details map[string]any)

func (f ReporterFunc) Report(ctx context.Context, userID string, t domain.ViolationType, details map[string]any) {
	f(ctx, userID, t, details)
}

type Option func(*Guard)

// WithClock подменяет часы для TemporalGate.
func WithClock(now func() time.Time) Option {
	return func(g *Guard) { g.now = now }
}

// Guard объединяет все проверки за одним фасадом.
type Guard struct {
	Rate     *RateLimiter
	Progress *ProgressValidator
	Temporal *TemporalGate
	Patterns *PatternDetector
	Identity *IdentityChecker

	now func() time.Time
}

func New(store kvstore.Store, policy domain.Policy, reporter Reporter, opts ...Option) *Guard {
	g := &Guard{now: time.Now}
	for _, opt := range opts {
		opt(g)
	}
	g.Rate = &RateLimiter{store: store, policy: policy, reporter: reporter}
	g.Progress = &ProgressValidator{store: store, policy: policy, reporter: reporter}
	g.Temporal = &TemporalGate{store: store, policy: policy, reporter: reporter, now: g.now}
	g.Patterns = &PatternDetector{store: store, policy: policy, reporter: reporter}
	g.Identity = &IdentityChecker{store: store, policy: policy, reporter: reporter}
	return g
}

func (g *Guard) CheckActionRate(ctx context.Context, userID, actionType string) (allowed bool, err error) {
	ctx, span := traces.StartSpan(ctx, "guard.CheckActionRate", traces.UserID(userID), traces.ActionType(actionType))
	defer func() { traces.EndCheck(span, allowed, err) }()
	return g.Rate.Check(ctx, userID, actionType)
}

func (g *Guard) ValidateProgressUpdate(ctx context.Context, userID, achievementID string, newProgress float64, metadata map[string]any) (accepted bool, err error) {
	ctx, span := traces.StartSpan(ctx, "guard.ValidateProgressUpdate", traces.UserID(userID))
	defer func() { traces.EndCheck(span, accepted, err) }()
	return g.Progress.Validate(ctx, userID, achievementID, newProgress, metadata)
}

func (g *Guard) ValidateTimeBasedAction(ctx context.Context, userID, actionType string) (allowed bool, err error) {
	ctx, span := traces.StartSpan(ctx, "guard.ValidateTimeBasedAction", traces.UserID(userID), traces.ActionType(actionType))
	defer func() { traces.EndCheck(span, allowed, err) }()
	return g.Temporal.Validate(ctx, userID, actionType)
}

// DetectSuspiciousPatterns возвращает true, если найден подозрительный паттерн.
func (g *Guard) DetectSuspiciousPatterns(ctx context.Context, userID string) (suspicious bool, err error) {
	ctx, span := traces.StartSpan(ctx, "guard.DetectSuspiciousPatterns", traces.UserID(userID))
	defer func() { traces.EndCheck(span, !suspicious, err) }()
	return g.Patterns.Detect(ctx, userID)
}

func (g *Guard) RecordAction(ctx context.Context, userID, action string) error {
	return g.Patterns.Record(ctx, userID, action)
}

func (g *Guard) ValidateIPAddress(ctx context.Context, userID, ip string) (allowed bool, err error) {
	ctx, span := traces.StartSpan(ctx, "guard.ValidateIPAddress", traces.UserID(userID))
	defer func() { traces.EndCheck(span, allowed, err) }()
	return g.Identity.ValidateIP(ctx, userID, ip)
}

func (g *Guard) ValidateSession(ctx context.Context, userID, sessionID string) (allowed bool, err error) {
	ctx, span := traces.StartSpan(ctx, "guard.ValidateSession", traces.UserID(userID))
	defer func() { traces.EndCheck(span, allowed, err) }()
	return g.Identity.ValidateSession(ctx, userID, sessionID)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
