package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/risk"
)

// RiskStore — состояние риска в общем хранилище (реализует risk.Scorer).
type RiskStore interface {
	Profile(ctx context.Context, userID string) (domain.RiskProfile, error)
	Reset(ctx context.Context, userID string) error
	RecentViolations(ctx context.Context, limit int64) ([]domain.Violation, error)
}

// ArchiveReader — долговременный архив нарушений (Postgres).
type ArchiveReader interface {
	FetchViolations(ctx context.Context, userID string, limit int) ([]domain.Violation, error)
}

type RiskService struct {
	risk    RiskStore
	archive ArchiveReader
	users   risk.UserStatusUpdater
	logger  *zap.Logger
}

func NewRiskService(store RiskStore, archive ArchiveReader, users risk.UserStatusUpdater, logger *zap.Logger) *RiskService {
	return &RiskService{
		risk:    store,
		archive: archive,
		users:   users,
		logger:  logger.Named("risk-service"),
	}
}

func (s *RiskService) GetProfile(ctx context.Context, userID string) (domain.RiskProfile, error) {
	return s.risk.Profile(ctx, userID)
}

// ResetUser — ручной откат санкций: счет в ноль, флаг наблюдения снят, аккаунт активен.
// operatorID пишется в лог для подотчетности.
func (s *RiskService) ResetUser(ctx context.Context, userID, operatorID string) error {
	if err := s.risk.Reset(ctx, userID); err != nil {
		s.logger.Error("failed to reset risk score",
			zap.String("user_id", userID), zap.String("operator_id", operatorID), zap.Error(err))
		return fmt.Errorf("reset risk: %w", err)
	}

	if err := s.users.SetUserStatus(ctx, userID, domain.UserStatusActive); err != nil {
		s.logger.Error("risk reset but user status not restored",
			zap.String("user_id", userID), zap.String("operator_id", operatorID), zap.Error(err))
		return fmt.Errorf("restore user status: %w", err)
	}

	s.logger.Info("user risk reset by operator",
		zap.String("user_id", userID), zap.String("operator_id", operatorID))
	return nil
}

func (s *RiskService) RecentViolations(ctx context.Context, limit int) ([]domain.Violation, error) {
	return s.risk.RecentViolations(ctx, int64(limit))
}

func (s *RiskService) ArchivedViolations(ctx context.Context, userID string, limit int) ([]domain.Violation, error) {
	items, err := s.archive.FetchViolations(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("risk_service: failed to fetch archive: %w", err)
	}
	return items, nil
}
