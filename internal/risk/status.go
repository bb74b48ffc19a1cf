package risk

import (
	"context"
	"errors"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
)

// MultiStatusUpdater рассылает смену статуса всем получателям (БД, кэш блокировок).
// Ошибка одного получателя не останавливает остальных.
type MultiStatusUpdater []UserStatusUpdater

func (m MultiStatusUpdater) SetUserStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	var errs []error
	for _, u := range m {
		if err := u.SetUserStatus(ctx, userID, status); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// StatusUpdaterFunc позволяет передать функцию как UserStatusUpdater.
type StatusUpdaterFunc func(ctx context.Context, userID string, status domain.UserStatus) error

func (f StatusUpdaterFunc) SetUserStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	return f(ctx, userID, status)
}
