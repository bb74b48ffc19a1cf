package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
)

// violationColumns — порядок колонок в пакетной вставке.
const violationColumns = 5

type ViolationRepo struct {
	db *sql.DB
}

func NewViolationRepo(db *sql.DB) *ViolationRepo {
	return &ViolationRepo{db: db}
}

// WriteBatch сохраняет пачку нарушений одним INSERT. Повторная запись того же id игнорируется.
func (r *ViolationRepo) WriteBatch(ctx context.Context, items []domain.Violation) error {
	if len(items) == 0 {
		return nil
	}

	vals := make([]interface{}, 0, len(items)*violationColumns)
	for _, v := range items {
		details, err := json.Marshal(v.Details)
		if err != nil {
			return fmt.Errorf("postgres: marshal details of %s: %w", v.ID, err)
		}
		vals = append(vals, v.ID, v.UserID, string(v.Type), string(details), v.Timestamp)
	}

	query := fmt.Sprintf(
		"INSERT INTO violations (id, user_id, type, details, created_at) VALUES %s ON CONFLICT (id) DO NOTHING",
		placeholders(len(items), violationColumns),
	)
	if _, err := r.db.ExecContext(ctx, query, vals...); err != nil {
		return fmt.Errorf("postgres: write violations batch: %w", err)
	}
	return nil
}

// FetchViolations возвращает архив нарушений, свежие первыми. Пустой userID — по всем пользователям.
func (r *ViolationRepo) FetchViolations(ctx context.Context, userID string, limit int) ([]domain.Violation, error) {
	query := `SELECT id, user_id, type, details, created_at FROM violations`

	var args []interface{}
	if userID != "" {
		query += " WHERE user_id = $1"
		args = append(args, userID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d", limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to query violations: %w", err)
	}
	defer rows.Close()

	// Пустой слайс, чтобы в JSON был [] вместо null
	results := make([]domain.Violation, 0)
	for rows.Next() {
		var (
			v       domain.Violation
			vType   string
			details []byte
		)
		if err := rows.Scan(&v.ID, &v.UserID, &vType, &details, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("postgres: failed to scan violation: %w", err)
		}
		v.Type = domain.ViolationType(vType)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &v.Details); err != nil {
				return nil, fmt.Errorf("postgres: bad details of %s: %w", v.ID, err)
			}
		}
		results = append(results, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: rows iteration error: %w", err)
	}
	return results, nil
}

// placeholders строит "($1, $2), ($3, $4)" для rows строк по cols колонок.
func placeholders(rows, cols int) string {
	var b strings.Builder
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := 0; j < cols; j++ {
			if j > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*cols+j+1)
		}
		b.WriteByte(')')
	}
	return b.String()
}
