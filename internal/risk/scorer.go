// Package risk — журнал нарушений, накопительный risk score и автоматические санкции.
package risk

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
	"github.com/xela07ax/spaceai-anticheat/internal/kvstore"
)

// Действия санкций для метрик и логов.
const (
	EnforcementMonitoring = "monitoring"
	EnforcementSuspension = "suspension"
)

// UserStatusUpdater — внешний сервис управления аккаунтами.
type UserStatusUpdater interface {
	SetUserStatus(ctx context.Context, userID string, status domain.UserStatus) error
}

// Recorder описывает метрики, которые пишет скорер.
// Реализует engine.Metrics.
type Recorder interface {
	ObserveViolation(t domain.ViolationType)
	ObserveEnforcement(action string)
	ObserveRiskScore(score int)
}

// Archiver принимает копию нарушения для долговременного хранения. Не блокирует.
type Archiver interface {
	Enqueue(v domain.Violation) bool
}

// SuspensionChecker — локальный кэш блокировок, синхронизированный между инстансами.
type SuspensionChecker interface {
	IsSuspended(userID string) bool
}

type Option func(*Scorer)

func WithRecorder(r Recorder) Option { return func(s *Scorer) { s.metrics = r } }

func WithArchiver(a Archiver) Option { return func(s *Scorer) { s.archive = a } }

func WithClock(now func() time.Time) Option { return func(s *Scorer) { s.now = now } }

// WithSuspensionChecker берет флаг блокировки для Profile из кэша, а не из хранилища.
func WithSuspensionChecker(c SuspensionChecker) Option { return func(s *Scorer) { s.suspended = c } }

type Scorer struct {
	store   kvstore.Store
	policy  domain.Policy
	users   UserStatusUpdater
	metrics Recorder
	archive Archiver
	logger  *zap.Logger
	// nil — флаг читается из общего set
	suspended SuspensionChecker
	now       func() time.Time
}

func NewScorer(store kvstore.Store, policy domain.Policy, users UserStatusUpdater, logger *zap.Logger, opts ...Option) *Scorer {
	s := &Scorer{
		store:   store,
		policy:  policy,
		users:   users,
		metrics: nopRecorder{},
		logger:  logger.Named("risk"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Report — точка входа для проверок. Ошибки учета только логируются:
// решение проверки уже принято и от журнала не зависит.
func (s *Scorer) Report(ctx context.Context, userID string, t domain.ViolationType, details map[string]any) {
	if err := s.LogSuspiciousActivity(ctx, userID, t, details); err != nil {
		s.logger.Error("failed to account violation",
			zap.String("user_id", userID),
			zap.String("type", string(t)),
			zap.Error(err),
		)
	}
}

// LogSuspiciousActivity по порядку: лог и метрика, запись в общий журнал,
// обновление risk score и санкции.
func (s *Scorer) LogSuspiciousActivity(ctx context.Context, userID string, t domain.ViolationType, details map[string]any) error {
	v := domain.Violation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      t,
		Details:   details,
		Timestamp: s.now().UTC(),
	}

	s.logger.Warn("suspicious activity detected",
		zap.String("user_id", userID),
		zap.String("type", string(t)),
		zap.Any("details", details),
	)
	s.metrics.ObserveViolation(t)

	var errs []error
	raw, err := json.Marshal(v)
	if err != nil {
		errs = append(errs, fmt.Errorf("marshal violation: %w", err))
	} else if err := s.store.PushTrim(ctx, infra.RedisKeySuspiciousActivities, string(raw), s.policy.ActivityLogSize); err != nil {
		errs = append(errs, fmt.Errorf("append activity log: %w", err))
	}

	// Переполнение буфера логирует и считает сам архив
	if s.archive != nil {
		s.archive.Enqueue(v)
	}

	if _, err := s.UpdateRiskScore(ctx, userID, t); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// UpdateRiskScore добавляет вес нарушения к счету (с ограничением [0, MaxRiskScore])
// и применяет санкции по новому значению.
func (s *Scorer) UpdateRiskScore(ctx context.Context, userID string, t domain.ViolationType) (int, error) {
	weight := s.policy.Weight(t)

	var score int
	err := s.store.Update(ctx, infra.RiskKey(userID), func(cur string, exists bool) (string, bool, error) {
		prev := 0
		if exists {
			n, err := strconv.Atoi(cur)
			if err != nil {
				return "", false, fmt.Errorf("%w: risk score %q", kvstore.ErrMalformedValue, cur)
			}
			prev = n
		}
		score = clamp(prev+weight, 0, s.policy.MaxRiskScore)
		return strconv.Itoa(score), true, nil
	})
	if err != nil {
		return 0, fmt.Errorf("update risk score: %w", err)
	}
	s.metrics.ObserveRiskScore(score)

	if err := s.enforce(ctx, userID, score); err != nil {
		return score, err
	}
	return score, nil
}

// enforce применяет санкции. Пороги проверяются на каждом обновлении,
// обе санкции идемпотентны.
func (s *Scorer) enforce(ctx context.Context, userID string, score int) error {
	switch {
	case score >= s.policy.SuspensionThreshold:
		s.logger.Warn("risk score above suspension threshold, suspending user",
			zap.String("user_id", userID), zap.Int("score", score))
		s.metrics.ObserveEnforcement(EnforcementSuspension)
		if err := s.users.SetUserStatus(ctx, userID, domain.UserStatusSuspended); err != nil {
			return fmt.Errorf("suspend user %s: %w", userID, err)
		}
	case score >= s.policy.MonitoringThreshold:
		s.logger.Warn("risk score above monitoring threshold, enabling enhanced monitoring",
			zap.String("user_id", userID), zap.Int("score", score))
		s.metrics.ObserveEnforcement(EnforcementMonitoring)
		if err := s.store.Set(ctx, infra.MonitoringKey(userID), domain.MonitoringEnhanced, 0); err != nil {
			return fmt.Errorf("set monitoring flag: %w", err)
		}
	}
	return nil
}

// Profile собирает текущее состояние пользователя из общего хранилища.
func (s *Scorer) Profile(ctx context.Context, userID string) (domain.RiskProfile, error) {
	p := domain.RiskProfile{UserID: userID}

	raw, ok, err := s.store.Get(ctx, infra.RiskKey(userID))
	if err != nil {
		return p, err
	}
	if ok {
		if p.Score, err = strconv.Atoi(raw); err != nil {
			return p, fmt.Errorf("%w: risk score %q", kvstore.ErrMalformedValue, raw)
		}
	}

	if p.Monitoring, _, err = s.store.Get(ctx, infra.MonitoringKey(userID)); err != nil {
		return p, err
	}
	if s.suspended != nil {
		p.Suspended = s.suspended.IsSuspended(userID)
		return p, nil
	}
	if p.Suspended, err = s.store.SIsMember(ctx, infra.RedisKeySuspendedUsers, userID); err != nil {
		return p, err
	}
	return p, nil
}

// Reset обнуляет счет и снимает флаг наблюдения. Автоматического снижения счета нет,
// это единственный путь назад. Статус аккаунта меняется отдельно.
func (s *Scorer) Reset(ctx context.Context, userID string) error {
	if err := s.store.Del(ctx, infra.RiskKey(userID), infra.MonitoringKey(userID)); err != nil {
		return fmt.Errorf("reset risk for %s: %w", userID, err)
	}
	s.logger.Info("risk score reset", zap.String("user_id", userID))
	return nil
}

// RecentViolations читает последние limit записей общего журнала. Битые записи пропускаются.
func (s *Scorer) RecentViolations(ctx context.Context, limit int64) ([]domain.Violation, error) {
	if limit <= 0 || limit > s.policy.ActivityLogSize {
		limit = s.policy.ActivityLogSize
	}
	items, err := s.store.LRange(ctx, infra.RedisKeySuspiciousActivities, 0, limit-1)
	if err != nil {
		return nil, err
	}

	out := make([]domain.Violation, 0, len(items))
	for _, raw := range items {
		var v domain.Violation
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			s.logger.Debug("skipping malformed activity record", zap.Error(err))
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

type nopRecorder struct{}

func (nopRecorder) ObserveViolation(domain.ViolationType) {}
func (nopRecorder) ObserveEnforcement(string)             {}
func (nopRecorder) ObserveRiskScore(int)                  {}
