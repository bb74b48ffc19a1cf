package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
)

var (
	ErrTokenMissing = errors.New("operator token is missing")
	ErrTokenInvalid = errors.New("operator token is invalid")
)

type ValidatorOption func(*BaseValidator)

// WithLeeway допускает расхождение часов консоли и движка.
func WithLeeway(d time.Duration) ValidatorOption {
	return func(v *BaseValidator) { v.leeway = d }
}

// BaseValidator проверяет операторские токены консоли: только RS256,
// издатель консоли, обязательные exp и идентификатор оператора.
type BaseValidator struct {
	publicKey *rsa.PublicKey
	leeway    time.Duration
	parser    *jwt.Parser
}

func NewBaseValidator(pubKey *rsa.PublicKey, opts ...ValidatorOption) *BaseValidator {
	v := &BaseValidator{publicKey: pubKey}
	for _, opt := range opts {
		opt(v)
	}
	v.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithIssuer(domain.TokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(v.leeway),
	)
	return v
}

func (v *BaseValidator) VerifyToken(header string) (*domain.CustomClaims, error) {
	raw := strings.TrimSpace(header)
	if after, ok := strings.CutPrefix(raw, "Bearer "); ok {
		raw = strings.TrimSpace(after)
	}
	if raw == "" {
		return nil, ErrTokenMissing
	}

	claims := &domain.CustomClaims{}
	if _, err := v.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return v.publicKey, nil
	}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	// Ручные операции пишутся в аудит от имени оператора
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: operator id is empty", ErrTokenInvalid)
	}
	return claims, nil
}

// ParseRSAPublicKey разбирает PEM ключ проверки подписи
func ParseRSAPublicKey(data []byte) (*rsa.PublicKey, error) {
	return parsePEM(data, "public", jwt.ParseRSAPublicKeyFromPEM)
}

// ParseRSAPrivateKey разбирает PEM ключ подписи (только для консоли)
func ParseRSAPrivateKey(data []byte) (*rsa.PrivateKey, error) {
	return parsePEM(data, "private", jwt.ParseRSAPrivateKeyFromPEM)
}

func parsePEM[K any](data []byte, kind string, parse func([]byte) (K, error)) (K, error) {
	var zero K
	if len(data) == 0 {
		return zero, fmt.Errorf("%s key data is empty", kind)
	}
	key, err := parse(data)
	if err != nil {
		return zero, fmt.Errorf("failed to parse %s key: %w", kind, err)
	}
	return key, nil
}
