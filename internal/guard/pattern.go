package guard

import (
	"context"
	"fmt"
	"strings"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
	"github.com/xela07ax/spaceai-anticheat/internal/kvstore"
)

// PatternDetector ищет повторы и невозможные последовательности в истории действий.
// Это только сигнал: действие не блокируется, решение за вызывающим.
type PatternDetector struct {
	store    kvstore.Store
	policy   domain.Policy
	reporter Reporter
}

// Record добавляет действие в историю (самое свежее первым) и обрезает ее.
func (d *PatternDetector) Record(ctx context.Context, userID, action string) error {
	if err := d.store.PushTrim(ctx, infra.ActionsKey(userID), action, d.policy.ActionHistorySize); err != nil {
		return fmt.Errorf("record action: %w", err)
	}
	return nil
}

// Detect проверяет обе эвристики независимо; каждая сработавшая пишет свое нарушение.
func (d *PatternDetector) Detect(ctx context.Context, userID string) (bool, error) {
	actions, err := d.store.LRange(ctx, infra.ActionsKey(userID), 0, -1)
	if err != nil {
		return false, fmt.Errorf("detect suspicious patterns: %w", err)
	}

	suspicious := false
	if action, count, ok := repetition(actions, d.policy.RepetitionWindow, d.policy.RepetitionThreshold); ok {
		d.reporter.Report(ctx, userID, domain.ViolationRepetitivePattern, map[string]any{
			"action": action,
			"count":  count,
			"window": d.policy.RepetitionWindow,
		})
		suspicious = true
	}
	if len(actions) >= d.policy.MinSequenceLength {
		if seq, ok := illegalSequence(chronological(actions), d.policy.IllegalSequences); ok {
			d.reporter.Report(ctx, userID, domain.ViolationImpossibleSequence, map[string]any{
				"sequence": seq,
			})
			suspicious = true
		}
	}
	return suspicious, nil
}

// repetition считает, сколько из window последних действий совпадает с самым свежим.
// История короче окна не проверяется.
func repetition(recentFirst []string, window, threshold int) (string, int, bool) {
	if window <= 0 || len(recentFirst) < window {
		return "", 0, false
	}
	last := recentFirst[0]
	count := 0
	for _, a := range recentFirst[:window] {
		if a == last {
			count++
		}
	}
	return last, count, count >= threshold
}

// chronological разворачивает историю "свежее первым" в порядок совершения действий.
func chronological(recentFirst []string) []string {
	out := make([]string, len(recentFirst))
	for i, a := range recentFirst {
		out[len(recentFirst)-1-i] = a
	}
	return out
}

// illegalSequence ищет запрещенную последовательность как непрерывный подсписок.
// Сравнение поэлементное: "quest_complete,quest_start" не совпадет с "side_quest_complete,quest_start".
func illegalSequence(actions []string, sequences []string) (string, bool) {
	for _, seq := range sequences {
		want := strings.Split(seq, ",")
		if containsRun(actions, want) {
			return seq, true
		}
	}
	return "", false
}

func containsRun(actions, want []string) bool {
	if len(want) == 0 || len(want) > len(actions) {
		return false
	}
outer:
	for i := 0; i+len(want) <= len(actions); i++ {
		for j, w := range want {
			if actions[i+j] != strings.TrimSpace(w) {
				continue outer
			}
		}
		return true
	}
	return false
}
