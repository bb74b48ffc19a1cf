package infra

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/spaceai-anticheat/internal/domain"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, FailModeClosed, cfg.Engine.FailMode)
	assert.Equal(t, StoreBackendRedis, cfg.Engine.StoreBackend)
	assert.Equal(t, "info", cfg.Logger.Level)

	p := cfg.Policy.ToDomain()
	def := domain.DefaultPolicy()
	assert.Equal(t, def.RateLimits, p.RateLimits)
	assert.Equal(t, def.Cooldowns, p.Cooldowns)
	assert.Equal(t, def.ViolationWeights, p.ViolationWeights)
	assert.Equal(t, time.Minute, p.RateWindow)
	assert.Equal(t, 80, p.SuspensionThreshold)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("ENGINE_FAIL_MODE", "open")
	t.Setenv("POLICY_SUSPENSION_THRESHOLD", "90")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, FailModeOpen, cfg.Engine.FailMode)
	assert.Equal(t, 90, cfg.Policy.SuspensionThreshold)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
}

func TestLoadConfigRejectsUnknownFailMode(t *testing.T) {
	t.Setenv("ENGINE_FAIL_MODE", "maybe")

	_, err := LoadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.fail_mode")
}

func TestLoadKeyResourcePrefersEnv(t *testing.T) {
	t.Setenv("TEST_KEY_DATA", "-----BEGIN PUBLIC KEY-----")
	assert.Equal(t, []byte("-----BEGIN PUBLIC KEY-----"), loadKeyResource("/does/not/exist", "TEST_KEY_DATA"))
	assert.Nil(t, loadKeyResource("/does/not/exist", "TEST_KEY_MISSING"))
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(LoggerConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, l)

	_, err = NewLogger(LoggerConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestRedisKeys(t *testing.T) {
	assert.Equal(t, "rate:u1:reward_claim", RateKey("u1", "reward_claim"))
	assert.Equal(t, "progress:u1:ach-7", ProgressKey("u1", "ach-7"))
	assert.Equal(t, "last:u1:quest_complete", LastActionKey("u1", "quest_complete"))
	assert.Equal(t, "actions:u1", ActionsKey("u1"))
	assert.Equal(t, "ips:u1", IPsKey("u1"))
	assert.Equal(t, "sessions:u1", SessionsKey("u1"))
	assert.Equal(t, "risk:u1", RiskKey("u1"))
	assert.Equal(t, "monitoring:u1", MonitoringKey("u1"))
	assert.Equal(t, "anticheat:lock:warmup:suspended", GetWarmupLockKey("suspended"))
}
