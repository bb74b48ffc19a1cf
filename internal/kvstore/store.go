// Package kvstore — адаптер общего key-value хранилища, в котором живут
// счетчики anti-cheat проверок. Основная реализация — Redis, in-memory версия
// нужна тестам и локальному запуску без инфраструктуры.
package kvstore

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMalformedValue — в ключе лежит значение, которое не удалось разобрать.
	ErrMalformedValue = errors.New("kvstore: malformed stored value")
	// ErrConflict — оптимистичная транзакция так и не прошла за отведенные попытки.
	ErrConflict = errors.New("kvstore: concurrent modification")
)

// UpdateFunc получает текущее значение ключа и решает, что записать.
// Может быть вызвана несколько раз при конфликте, поэтому не должна иметь побочных эффектов.
type UpdateFunc func(current string, exists bool) (next string, write bool, err error)

// Store — контракт хранилища. Реализации безопасны для конкурентного использования.
type Store interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	// Set записывает значение; ttl == 0 — без срока жизни.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) error

	LPush(ctx context.Context, key string, values ...string) error
	LTrim(ctx context.Context, key string, start, stop int64) error
	LRange(ctx context.Context, key string, start, stop int64) ([]string, error)

	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
	SRem(ctx context.Context, key string, members ...string) error
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// IncrWindow атомарно увеличивает счетчик и ставит TTL при первом инкременте окна.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, error)
	// PushTrim атомарно добавляет значение в голову списка и обрезает его до maxLen.
	PushTrim(ctx context.Context, key, value string, maxLen int64) error
	// Update — compare-and-swap: чтение и запись выполняются как одна операция.
	Update(ctx context.Context, key string, fn UpdateFunc) error

	// TouchMember добавляет (или продлевает) элемент множества с индивидуальным TTL.
	TouchMember(ctx context.Context, key, member string, ttl time.Duration) error
	// LiveMembers возвращает неистекшие элементы, попутно вычищая истекшие.
	LiveMembers(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
}
