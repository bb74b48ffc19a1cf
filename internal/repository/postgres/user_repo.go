package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
)

var ErrNotFound = errors.New("postgres: not found")

type UserRepo struct {
	db *sql.DB
}

func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{db: db}
}

// SetUserStatus меняет статус аккаунта. Неизвестный пользователь создается сразу
// с нужным статусом: учетные записи живут в геймификационном сервисе, здесь только зеркало статуса.
func (r *UserRepo) SetUserStatus(ctx context.Context, userID string, status domain.UserStatus) error {
	query := `
		INSERT INTO users (id, status, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, updated_at = NOW()`

	if _, err := r.db.ExecContext(ctx, query, userID, string(status)); err != nil {
		return fmt.Errorf("postgres: failed to update user status: %w", err)
	}
	return nil
}

// GetSuspendedUsers возвращает ID всех заблокированных пользователей.
// Используется для прогрева кэша блокировок при старте.
func (r *UserRepo) GetSuspendedUsers(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM users WHERE status = $1`, string(domain.UserStatusSuspended))
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to fetch suspended users: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan user id error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return ids, nil
}

// GetOperatorByUsername ищет оператора консоли. ErrNotFound, если такого нет.
func (r *UserRepo) GetOperatorByUsername(ctx context.Context, username string) (*domain.Operator, error) {
	query := `SELECT id, username, password_hash, scopes, created_at FROM operators WHERE username = $1`

	var (
		op     domain.Operator
		scopes string
	)
	err := r.db.QueryRowContext(ctx, query, username).Scan(&op.ID, &op.Username, &op.PasswordHash, &scopes, &op.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to get operator: %w", err)
	}
	op.Scopes = splitScopes(scopes)
	return &op, nil
}

// Ping проверяет доступность базы
func (r *UserRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// splitScopes разбирает колонку scopes ("a,b") в набор.
func splitScopes(raw string) map[string]bool {
	scopes := make(map[string]bool)
	for _, sc := range strings.Split(raw, ",") {
		if sc = strings.TrimSpace(sc); sc != "" {
			scopes[sc] = true
		}
	}
	return scopes
}
