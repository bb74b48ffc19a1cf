package infra

import "fmt"

const (
	// RedisNamespace Базовый префикс для служебных ключей сервиса (не для счетчиков проверок)
	RedisNamespace = "anticheat"
)

// Ключи счетчиков. Формат ключей — общий контракт с геймификационным сервисом,
// который сам пишет историю действий, поэтому namespace здесь не добавляется.
const (
	// RedisKeySuspiciousActivities Глобальный журнал нарушений (последние N записей)
	RedisKeySuspiciousActivities = "suspicious_activities"
)

// Ключи для Sets (состояние)
const (
	RedisKeySuspendedUsers = RedisNamespace + ":users:suspended_set"
)

// Каналы Pub/Sub (события)
const (
	// RedisChanSuspension — сигнал "user_id:on|off" о блокировке/разблокировке пользователя.
	RedisChanSuspension = RedisNamespace + ":users:suspension-signal"
)

func RateKey(userID, actionType string) string {
	return fmt.Sprintf("rate:%s:%s", userID, actionType)
}

func ProgressKey(userID, achievementID string) string {
	return fmt.Sprintf("progress:%s:%s", userID, achievementID)
}

func LastActionKey(userID, actionType string) string {
	return fmt.Sprintf("last:%s:%s", userID, actionType)
}

func ActionsKey(userID string) string  { return "actions:" + userID }
func IPsKey(userID string) string      { return "ips:" + userID }
func SessionsKey(userID string) string { return "sessions:" + userID }
func RiskKey(userID string) string     { return "risk:" + userID }

func MonitoringKey(userID string) string {
	return "monitoring:" + userID
}

// GetWarmupLockKey Генератор ключей для блокировок (если нужны динамические)
func GetWarmupLockKey(resource string) string {
	return fmt.Sprintf("%s:lock:warmup:%s", RedisNamespace, resource)
}
