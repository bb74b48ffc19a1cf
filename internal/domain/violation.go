package domain

import "time"

// ViolationType — тип нарушения, зафиксированного одной из проверок.
type ViolationType string

const (
	ViolationRateLimitExceeded  ViolationType = "rate_limit_exceeded"
	ViolationAbnormalProgress   ViolationType = "abnormal_progress"
	ViolationTimeBased          ViolationType = "time_based_violation"
	ViolationRepetitivePattern  ViolationType = "repetitive_pattern"
	ViolationImpossibleSequence ViolationType = "impossible_sequence"
	ViolationMultipleIPs        ViolationType = "multiple_ips"
	ViolationMultipleSessions   ViolationType = "multiple_sessions"
)

// Violation — запись в журнале подозрительной активности.
// Формат JSON совпадает с тем, что кладется в список suspicious_activities.
type Violation struct {
	ID        string         `json:"id,omitempty"`
	UserID    string         `json:"userId"`
	Type      ViolationType  `json:"type"`
	Details   map[string]any `json:"details"`
	Timestamp time.Time      `json:"timestamp"`
}

// Типы действий геймификации, для которых в политике по умолчанию заданы лимиты.
const (
	ActionAchievementProgress = "achievement_progress"
	ActionQuestProgress       = "quest_progress"
	ActionRewardClaim         = "reward_claim"
	ActionQuestComplete       = "quest_complete"
	ActionAchievementUnlock   = "achievement_unlock"
)
