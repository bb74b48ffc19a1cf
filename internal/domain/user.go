package domain

import "errors"

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended" // Автоматическая блокировка по risk score
)

// MonitoringEnhanced — значение флага monitoring:{user} для усиленного наблюдения.
const MonitoringEnhanced = "enhanced"

var ErrUnknownStatus = errors.New("unknown user status")

// ParseUserStatus проверяет статус, пришедший снаружи (API, сигнал Redis).
func ParseUserStatus(s string) (UserStatus, error) {
	switch UserStatus(s) {
	case UserStatusActive, UserStatusSuspended:
		return UserStatus(s), nil
	}
	return "", ErrUnknownStatus
}

// RiskProfile — сводка по пользователю для API и консоли.
type RiskProfile struct {
	UserID     string `json:"user_id"`
	Score      int    `json:"score"`
	Monitoring string `json:"monitoring,omitempty"`
	Suspended  bool   `json:"suspended"`
}
