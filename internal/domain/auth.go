package domain

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// ScopeAdmin — право на ручные операции консоли (сброс риска, разблокировка).
	ScopeAdmin = "anticheat.admin"
	// ScopeRead — просмотр профилей и журнала нарушений.
	ScopeRead = "anticheat.read"

	// TokenIssuer — издатель токенов консоли.
	TokenIssuer = "spaceai-anticheat-console"
)

type CustomClaims struct {
	UserID string          `json:"user_id"`
	Scopes map[string]bool `json:"scopes"` // "anticheat.admin": true, "anticheat.read": true
	jwt.RegisteredClaims
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}

// Operator — сотрудник Trust & Safety с доступом к консоли.
type Operator struct {
	ID           string          `json:"id"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"-"` // Никогда не отдаем наружу
	Scopes       map[string]bool `json:"scopes"`
	CreatedAt    time.Time       `json:"created_at"`
}
