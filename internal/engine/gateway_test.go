package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/guard"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
	"github.com/xela07ax/spaceai-anticheat/internal/kvstore"
)

type fakeRisk struct {
	profile domain.RiskProfile
	err     error
}

func (f *fakeRisk) Profile(_ context.Context, userID string) (domain.RiskProfile, error) {
	p := f.profile
	p.UserID = userID
	return p, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(context.Context) error { return f.err }

type gatewayFixture struct {
	handler http.Handler
	store   *kvstore.MemoryStore
	reports *int
}

func newGatewayFixture(t *testing.T, failMode string) *gatewayFixture {
	t.Helper()
	store := kvstore.NewMemoryStore()
	reports := 0
	g := guard.New(store, domain.DefaultPolicy(), guard.ReporterFunc(
		func(context.Context, string, domain.ViolationType, map[string]any) { reports++ },
	))
	gw := NewGateway(g, &fakeRisk{profile: domain.RiskProfile{Score: 12}}, fakePinger{}, nil, NewMetrics(nil), failMode, zap.NewNop())
	return &gatewayFixture{handler: gw.Handler(), store: store, reports: &reports}
}

func (f *gatewayFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	out := map[string]any{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &out)
	}
	return rec, out
}

func TestGateway_RateCheck(t *testing.T) {
	f := newGatewayFixture(t, infra.FailModeClosed)
	body := map[string]any{"userId": "u1", "actionType": domain.ActionRewardClaim}

	for i := 0; i < 3; i++ {
		rec, out := f.do(t, http.MethodPost, "/v1/checks/rate", body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, out["allowed"])
		assert.NotEmpty(t, rec.Header().Get(HeaderTraceID))
	}

	rec, out := f.do(t, http.MethodPost, "/v1/checks/rate", body)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, out["allowed"])
	assert.Equal(t, 1, *f.reports)
}

func TestGateway_Validation(t *testing.T) {
	f := newGatewayFixture(t, infra.FailModeClosed)

	tests := []struct {
		name string
		path string
		body any
	}{
		{"no user", "/v1/checks/rate", map[string]any{"actionType": "x"}},
		{"no action", "/v1/checks/timed", map[string]any{"userId": "u1"}},
		{"no progress", "/v1/checks/progress", map[string]any{"userId": "u1", "achievementId": "a1"}},
		{"no session", "/v1/checks/session", map[string]any{"userId": "u1"}},
		{"not json", "/v1/checks/rate", "plain"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := f.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGateway_ProgressAndSession(t *testing.T) {
	f := newGatewayFixture(t, infra.FailModeClosed)

	_, out := f.do(t, http.MethodPost, "/v1/checks/progress", map[string]any{"userId": "u1", "achievementId": "a1", "progress": 0})
	assert.Equal(t, true, out["allowed"])
	_, out = f.do(t, http.MethodPost, "/v1/checks/progress", map[string]any{"userId": "u1", "achievementId": "a1", "progress": 50})
	assert.Equal(t, false, out["allowed"])

	_, out = f.do(t, http.MethodPost, "/v1/checks/session", map[string]any{"userId": "u1", "sessionId": "s1"})
	assert.Equal(t, true, out["allowed"])
}

func TestGateway_IPFallsBackToRemoteAddr(t *testing.T) {
	f := newGatewayFixture(t, infra.FailModeClosed)

	rec, out := f.do(t, http.MethodPost, "/v1/checks/ip", map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["allowed"])

	ips, err := f.store.LRange(context.Background(), "ips:u1", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"192.0.2.1"}, ips) // адрес httptest.NewRequest
}

func TestGateway_ActionsAndPatterns(t *testing.T) {
	f := newGatewayFixture(t, infra.FailModeClosed)

	for _, a := range []string{"login", "quest_complete", "quest_start"} {
		rec, _ := f.do(t, http.MethodPost, "/v1/actions", map[string]any{"userId": "u1", "actionType": a})
		require.Equal(t, http.StatusNoContent, rec.Code)
	}

	rec, out := f.do(t, http.MethodPost, "/v1/checks/patterns", map[string]any{"userId": "u1"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["suspicious"])
}

func TestGateway_FailMode(t *testing.T) {
	ctx := context.Background()

	t.Run("closed", func(t *testing.T) {
		f := newGatewayFixture(t, infra.FailModeClosed)
		require.NoError(t, f.store.Set(ctx, "rate:u1:login", "broken", 0))

		rec, out := f.do(t, http.MethodPost, "/v1/checks/rate", map[string]any{"userId": "u1", "actionType": "login"})
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Equal(t, false, out["allowed"])
		assert.Equal(t, "store_unavailable", out["error"])
	})

	t.Run("open", func(t *testing.T) {
		f := newGatewayFixture(t, infra.FailModeOpen)
		require.NoError(t, f.store.Set(ctx, "rate:u1:login", "broken", 0))

		rec, out := f.do(t, http.MethodPost, "/v1/checks/rate", map[string]any{"userId": "u1", "actionType": "login"})
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, true, out["allowed"])
		assert.Equal(t, true, out["degraded"])
	})
}

func TestGateway_UserRiskAndHealth(t *testing.T) {
	f := newGatewayFixture(t, infra.FailModeClosed)

	rec, out := f.do(t, http.MethodGet, "/v1/users/u7/risk", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u7", out["user_id"])
	assert.EqualValues(t, 12, out["score"])

	rec, _ = f.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	gw := NewGateway(guard.New(kvstore.NewMemoryStore(), domain.DefaultPolicy(), guard.ReporterFunc(
		func(context.Context, string, domain.ViolationType, map[string]any) {},
	)), &fakeRisk{err: errors.New("down")}, fakePinger{err: errors.New("down")}, nil, NewMetrics(nil), infra.FailModeClosed, zap.NewNop())
	h := gw.Handler()

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/users/u1/risk", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
