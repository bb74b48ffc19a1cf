package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/infra/auth"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

type RiskService interface {
	GetProfile(ctx context.Context, userID string) (domain.RiskProfile, error)
	ResetUser(ctx context.Context, userID, operatorID string) error
	RecentViolations(ctx context.Context, limit int) ([]domain.Violation, error)
	ArchivedViolations(ctx context.Context, userID string, limit int) ([]domain.Violation, error)
}

type RiskHandler struct {
	service RiskService
	logger  *zap.Logger
}

func NewRiskHandler(s RiskService, logger *zap.Logger) *RiskHandler {
	return &RiskHandler{service: s, logger: logger.Named("risk-handler")}
}

// GetProfile GET /v1/users/{id}/risk
func (h *RiskHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	p, err := h.service.GetProfile(r.Context(), userID)
	if err != nil {
		h.logger.Error("failed to load risk profile", zap.String("user_id", userID), zap.Error(err))
		http.Error(w, "Failed to load risk profile", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// Reset POST /v1/users/{id}/risk/reset
func (h *RiskHandler) Reset(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")

	operatorID := ""
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		operatorID = claims.UserID
	}

	if err := h.service.ResetUser(r.Context(), userID, operatorID); err != nil {
		http.Error(w, "Failed to reset user", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Recent GET /v1/violations?limit=
func (h *RiskHandler) Recent(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, err := h.service.RecentViolations(r.Context(), limit)
	if err != nil {
		h.logger.Error("failed to read activity log", zap.Error(err))
		http.Error(w, "Failed to fetch violations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// Archive GET /v1/violations/archive?user_id=&limit=
func (h *RiskHandler) Archive(w http.ResponseWriter, r *http.Request) {
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, err := h.service.ArchivedViolations(r.Context(), r.URL.Query().Get("user_id"), limit)
	if err != nil {
		h.logger.Error("failed to read archive", zap.Error(err))
		http.Error(w, "Failed to fetch violations", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
		return 0, false
	}
	return min(n, maxLimit), true
}
