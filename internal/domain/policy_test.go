package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicyIsValid(t *testing.T) {
	require.NoError(t, DefaultPolicy().Validate())
}

func TestPolicyLookups(t *testing.T) {
	p := DefaultPolicy()

	assert.Equal(t, int64(10), p.RateLimit(ActionAchievementProgress))
	assert.Equal(t, int64(5), p.RateLimit(ActionQuestProgress))
	assert.Equal(t, int64(3), p.RateLimit(ActionRewardClaim))
	assert.Equal(t, int64(1), p.RateLimit("daily_login"))

	assert.Equal(t, 300*time.Second, p.Cooldown(ActionRewardClaim))
	assert.Zero(t, p.Cooldown("daily_login"))

	assert.Equal(t, 4, p.Weight(ViolationImpossibleSequence))
	assert.Equal(t, 1, p.Weight(ViolationType("something_new")))
}

func TestPolicyValidateRejectsInvertedThresholds(t *testing.T) {
	p := DefaultPolicy()
	p.MonitoringThreshold = 90
	p.SuspensionThreshold = 80

	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "monitoring threshold")
}

func TestPolicyValidateCollectsAllProblems(t *testing.T) {
	p := DefaultPolicy()
	p.RateWindow = 0
	p.IPHistorySize = 0

	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate window")
	assert.Contains(t, err.Error(), "list sizes")
}

func TestParseUserStatus(t *testing.T) {
	s, err := ParseUserStatus("suspended")
	require.NoError(t, err)
	assert.Equal(t, UserStatusSuspended, s)

	_, err = ParseUserStatus("banned")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}
