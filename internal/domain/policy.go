package domain

import (
	"errors"
	"fmt"
	"time"
)

// Policy — настраиваемая политика anti-cheat движка.
// Все лимиты, кулдауны и веса передаются при сборке, а не зашиты в код проверок.
type Policy struct {
	// RateWindow — длина фиксированного окна счетчика действий.
	RateWindow       time.Duration
	RateLimits       map[string]int64 // actionType -> лимит на окно
	DefaultRateLimit int64

	Cooldowns map[string]time.Duration // actionType -> минимальная пауза

	// Прогресс: maxAllowedIncrease = max(ProgressMinIncrease, previous*ProgressMaxRatio)
	ProgressMinIncrease float64
	ProgressMaxRatio    float64

	RepetitionWindow    int
	RepetitionThreshold int
	MinSequenceLength   int
	// IllegalSequences — запрещенные последовательности в хронологическом порядке, "a,b".
	IllegalSequences  []string
	ActionHistorySize int64

	IPHistorySize       int64
	IPDistinctThreshold int
	MaxSessions         int
	SessionTTL          time.Duration

	ActivityLogSize int64

	ViolationWeights    map[ViolationType]int
	DefaultWeight       int
	MaxRiskScore        int
	MonitoringThreshold int
	SuspensionThreshold int
}

// DefaultPolicy возвращает политику, на которой работает продовый геймификационный сервис.
func DefaultPolicy() Policy {
	return Policy{
		RateWindow: time.Minute,
		RateLimits: map[string]int64{
			ActionAchievementProgress: 10,
			ActionQuestProgress:       5,
			ActionRewardClaim:         3,
		},
		DefaultRateLimit: 1,
		Cooldowns: map[string]time.Duration{
			ActionQuestComplete:     60 * time.Second,
			ActionRewardClaim:       300 * time.Second,
			ActionAchievementUnlock: 30 * time.Second,
		},
		ProgressMinIncrease: 10,
		ProgressMaxRatio:    0.2,
		RepetitionWindow:    10,
		RepetitionThreshold: 8,
		MinSequenceLength:   3,
		IllegalSequences: []string{
			"quest_complete,quest_start",
			"achievement_complete,achievement_start",
		},
		ActionHistorySize:   100,
		IPHistorySize:       5,
		IPDistinctThreshold: 3,
		MaxSessions:         3,
		SessionTTL:          24 * time.Hour,
		ActivityLogSize:     1000,
		ViolationWeights: map[ViolationType]int{
			ViolationRateLimitExceeded:  1,
			ViolationAbnormalProgress:   2,
			ViolationTimeBased:          2,
			ViolationRepetitivePattern:  3,
			ViolationImpossibleSequence: 4,
			ViolationMultipleIPs:        3,
			ViolationMultipleSessions:   2,
		},
		DefaultWeight:       1,
		MaxRiskScore:        100,
		MonitoringThreshold: 50,
		SuspensionThreshold: 80,
	}
}

// RateLimit возвращает лимит для типа действия (неизвестные типы — DefaultRateLimit).
func (p Policy) RateLimit(actionType string) int64 {
	if limit, ok := p.RateLimits[actionType]; ok {
		return limit
	}
	return p.DefaultRateLimit
}

// Cooldown возвращает минимальный интервал между действиями. Для неизвестных типов 0.
func (p Policy) Cooldown(actionType string) time.Duration {
	return p.Cooldowns[actionType]
}

func (p Policy) Weight(t ViolationType) int {
	if w, ok := p.ViolationWeights[t]; ok {
		return w
	}
	return p.DefaultWeight
}

// Validate ловит конфигурации, с которыми проверки теряют смысл.
func (p Policy) Validate() error {
	var errs []error
	if p.RateWindow <= 0 {
		errs = append(errs, errors.New("rate window must be positive"))
	}
	if p.DefaultRateLimit < 0 {
		errs = append(errs, errors.New("default rate limit must not be negative"))
	}
	if p.ProgressMaxRatio < 0 || p.ProgressMinIncrease < 0 {
		errs = append(errs, errors.New("progress bounds must not be negative"))
	}
	if p.RepetitionThreshold > p.RepetitionWindow {
		errs = append(errs, fmt.Errorf("repetition threshold %d exceeds window %d", p.RepetitionThreshold, p.RepetitionWindow))
	}
	if p.IPHistorySize <= 0 || p.ActivityLogSize <= 0 || p.ActionHistorySize <= 0 {
		errs = append(errs, errors.New("list sizes must be positive"))
	}
	if p.MaxRiskScore <= 0 {
		errs = append(errs, errors.New("max risk score must be positive"))
	}
	if p.MonitoringThreshold > p.SuspensionThreshold {
		errs = append(errs, fmt.Errorf("monitoring threshold %d above suspension threshold %d", p.MonitoringThreshold, p.SuspensionThreshold))
	}
	if p.SuspensionThreshold > p.MaxRiskScore {
		errs = append(errs, fmt.Errorf("suspension threshold %d unreachable with max score %d", p.SuspensionThreshold, p.MaxRiskScore))
	}
	return errors.Join(errs...)
}
