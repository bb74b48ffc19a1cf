package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/console/handler"
	"github.com/xela07ax/spaceai-anticheat/internal/domain"
)

// fakeValidator принимает токены "admin" и "reader".
type fakeValidator struct{}

func (fakeValidator) VerifyToken(tokenStr string) (*domain.CustomClaims, error) {
	switch strings.TrimPrefix(tokenStr, "Bearer ") {
	case "admin":
		return &domain.CustomClaims{UserID: "op-admin", Scopes: map[string]bool{domain.ScopeAdmin: true, domain.ScopeRead: true}}, nil
	case "reader":
		return &domain.CustomClaims{UserID: "op-reader", Scopes: map[string]bool{domain.ScopeRead: true}}, nil
	}
	return nil, errors.New("invalid token")
}

type fakeIssuer struct{}

func (fakeIssuer) GenerateToken(_ context.Context, username, password string) (*domain.TokenResponse, error) {
	if username == "alice" && password == "pw" {
		return &domain.TokenResponse{AccessToken: "admin", TokenType: "Bearer", ExpiresIn: 60}, nil
	}
	return nil, errors.New("invalid credentials")
}

type fakeRiskService struct {
	resetBy    string
	archiveFor string
	limit      int
}

func (f *fakeRiskService) GetProfile(_ context.Context, userID string) (domain.RiskProfile, error) {
	return domain.RiskProfile{UserID: userID, Score: 70, Monitoring: domain.MonitoringEnhanced}, nil
}

func (f *fakeRiskService) ResetUser(_ context.Context, _ string, operatorID string) error {
	f.resetBy = operatorID
	return nil
}

func (f *fakeRiskService) RecentViolations(_ context.Context, limit int) ([]domain.Violation, error) {
	f.limit = limit
	return []domain.Violation{}, nil
}

func (f *fakeRiskService) ArchivedViolations(_ context.Context, userID string, limit int) ([]domain.Violation, error) {
	f.archiveFor, f.limit = userID, limit
	return []domain.Violation{{UserID: userID}}, nil
}

func newTestServer() (*ConsoleServer, *fakeRiskService) {
	rs := &fakeRiskService{}
	logger := zap.NewNop()
	return NewConsoleServer(logger, fakeValidator{},
		handler.NewAuthHandler(fakeIssuer{}),
		handler.NewRiskHandler(rs, logger),
	), rs
}

func do(s http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

func TestConsole_Login(t *testing.T) {
	s, _ := newTestServer()

	rec := do(s, http.MethodPost, "/auth/token", "", `{"username":"alice","password":"pw"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.TokenResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "admin", resp.AccessToken)

	rec = do(s, http.MethodPost, "/auth/token", "", `{"username":"alice","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(s, http.MethodPost, "/auth/token", "", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsole_ProfileRequiresToken(t *testing.T) {
	s, _ := newTestServer()

	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/v1/users/u1/risk", "", "").Code)
	assert.Equal(t, http.StatusUnauthorized, do(s, http.MethodGet, "/v1/users/u1/risk", "garbage", "").Code)

	rec := do(s, http.MethodGet, "/v1/users/u1/risk", "reader", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var p domain.RiskProfile
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&p))
	assert.Equal(t, "u1", p.UserID)
	assert.Equal(t, 70, p.Score)
}

func TestConsole_ResetRequiresAdmin(t *testing.T) {
	s, rs := newTestServer()

	rec := do(s, http.MethodPost, "/v1/users/u1/risk/reset", "reader", "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rs.resetBy)

	rec = do(s, http.MethodPost, "/v1/users/u1/risk/reset", "admin", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "op-admin", rs.resetBy)
}

func TestConsole_ViolationLimits(t *testing.T) {
	s, rs := newTestServer()

	require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/v1/violations", "reader", "").Code)
	assert.Equal(t, 100, rs.limit)

	require.Equal(t, http.StatusOK, do(s, http.MethodGet, "/v1/violations?limit=5000", "reader", "").Code)
	assert.Equal(t, 1000, rs.limit)

	assert.Equal(t, http.StatusBadRequest, do(s, http.MethodGet, "/v1/violations?limit=-1", "reader", "").Code)

	rec := do(s, http.MethodGet, "/v1/violations/archive?user_id=u9&limit=7", "reader", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "u9", rs.archiveFor)
	assert.Equal(t, 7, rs.limit)
}

func TestConsole_Health(t *testing.T) {
	s, _ := newTestServer()
	assert.Equal(t, http.StatusOK, do(s, http.MethodGet, "/health", "", "").Code)
}
