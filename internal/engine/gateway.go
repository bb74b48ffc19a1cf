package engine

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/guard"
	"github.com/xela07ax/spaceai-anticheat/internal/infra"
)

// Имена проверок в метриках и логах.
const (
	CheckRate     = "rate"
	CheckProgress = "progress"
	CheckTimed    = "timed"
	CheckPatterns = "patterns"
	CheckIP       = "ip"
	CheckSession  = "session"
)

// RiskReader отдает сводку по пользователю.
type RiskReader interface {
	Profile(ctx context.Context, userID string) (domain.RiskProfile, error)
}

// Pinger — проверка доступности зависимостей для /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Gateway — HTTP фасад над проверками для геймификационного сервиса.
// Отказ хранилища обрабатывается по fail mode: open пропускает действие,
// closed отклоняет с 503.
type Gateway struct {
	guard      *guard.Guard
	risk       RiskReader
	store      Pinger
	suspension *SuspensionManager
	metrics    *Metrics
	failMode   string
	logger     *zap.Logger
}

func NewGateway(g *guard.Guard, risk RiskReader, store Pinger, sm *SuspensionManager, metrics *Metrics, failMode string, logger *zap.Logger) *Gateway {
	return &Gateway{
		guard:      g,
		risk:       risk,
		store:      store,
		suspension: sm,
		metrics:    metrics,
		failMode:   failMode,
		logger:     logger.Named("gateway"),
	}
}

// Handler собирает роутер. Порядок middleware: RequestID -> RealIP -> Trace -> Recoverer.
func (g *Gateway) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TracingMiddleware)
	r.Use(middleware.Recoverer)

	r.Get("/health", g.health)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			// Заблокированные пользователи отсекаются до любых счетчиков
			if g.suspension != nil {
				r.Use(g.suspension.Middleware)
			}
			r.Post("/checks/rate", g.checkRate)
			r.Post("/checks/progress", g.checkProgress)
			r.Post("/checks/timed", g.checkTimed)
			r.Post("/checks/ip", g.checkIP)
			r.Post("/checks/session", g.checkSession)
		})
		r.Post("/checks/patterns", g.checkPatterns)
		r.Post("/actions", g.recordAction)
		r.Get("/users/{id}/risk", g.userRisk)
	})
	return r
}

type checkRequest struct {
	UserID        string         `json:"userId"`
	ActionType    string         `json:"actionType,omitempty"`
	AchievementID string         `json:"achievementId,omitempty"`
	Progress      *float64       `json:"progress,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	IP            string         `json:"ip,omitempty"`
	SessionID     string         `json:"sessionId,omitempty"`
}

type checkResponse struct {
	Allowed  bool   `json:"allowed"`
	Degraded bool   `json:"degraded,omitempty"` // решение принято без хранилища (fail-open)
	Error    string `json:"error,omitempty"`
}

type patternResponse struct {
	Suspicious bool   `json:"suspicious"`
	Degraded   bool   `json:"degraded,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (g *Gateway) checkRate(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r, func(c checkRequest) bool { return c.ActionType != "" })
	if !ok {
		return
	}
	g.decide(w, r, CheckRate, req, func(ctx context.Context) (bool, error) {
		return g.guard.CheckActionRate(ctx, req.UserID, req.ActionType)
	})
}

func (g *Gateway) checkProgress(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r, func(c checkRequest) bool { return c.AchievementID != "" && c.Progress != nil })
	if !ok {
		return
	}
	g.decide(w, r, CheckProgress, req, func(ctx context.Context) (bool, error) {
		return g.guard.ValidateProgressUpdate(ctx, req.UserID, req.AchievementID, *req.Progress, req.Metadata)
	})
}

func (g *Gateway) checkTimed(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r, func(c checkRequest) bool { return c.ActionType != "" })
	if !ok {
		return
	}
	g.decide(w, r, CheckTimed, req, func(ctx context.Context) (bool, error) {
		return g.guard.ValidateTimeBasedAction(ctx, req.UserID, req.ActionType)
	})
}

func (g *Gateway) checkIP(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r, nil)
	if !ok {
		return
	}
	// Без явного ip берем адрес клиента (после RealIP)
	if req.IP == "" {
		req.IP = clientIP(r)
	}
	g.decide(w, r, CheckIP, req, func(ctx context.Context) (bool, error) {
		return g.guard.ValidateIPAddress(ctx, req.UserID, req.IP)
	})
}

func (g *Gateway) checkSession(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r, func(c checkRequest) bool { return c.SessionID != "" })
	if !ok {
		return
	}
	g.decide(w, r, CheckSession, req, func(ctx context.Context) (bool, error) {
		return g.guard.ValidateSession(ctx, req.UserID, req.SessionID)
	})
}

// checkPatterns — только сигнал, действие им не блокируется.
func (g *Gateway) checkPatterns(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r, nil)
	if !ok {
		return
	}

	start := time.Now()
	suspicious, err := g.guard.DetectSuspiciousPatterns(r.Context(), req.UserID)
	if err != nil {
		g.metrics.ObserveCheck(CheckPatterns, ResultError, start)
		g.logStoreError(r, CheckPatterns, req.UserID, err)
		if g.failMode == infra.FailModeOpen {
			writeJSON(w, http.StatusOK, patternResponse{Degraded: true})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, patternResponse{Error: "store_unavailable"})
		return
	}

	result := ResultAllowed
	if suspicious {
		result = ResultRejected
	}
	g.metrics.ObserveCheck(CheckPatterns, result, start)
	writeJSON(w, http.StatusOK, patternResponse{Suspicious: suspicious})
}

func (g *Gateway) recordAction(w http.ResponseWriter, r *http.Request) {
	req, ok := g.decode(w, r, func(c checkRequest) bool { return c.ActionType != "" })
	if !ok {
		return
	}
	if err := g.guard.RecordAction(r.Context(), req.UserID, req.ActionType); err != nil {
		g.logStoreError(r, "record_action", req.UserID, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store_unavailable"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (g *Gateway) userRisk(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	p, err := g.risk.Profile(r.Context(), userID)
	if err != nil {
		g.logStoreError(r, "risk_profile", userID, err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "store_unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (g *Gateway) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()
	if err := g.store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "store": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decode читает тело и проверяет обязательные поля. userId обязателен всегда.
func (g *Gateway) decode(w http.ResponseWriter, r *http.Request, valid func(checkRequest) bool) (checkRequest, bool) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, checkResponse{Error: "invalid_body"})
		return req, false
	}
	if req.UserID == "" || (valid != nil && !valid(req)) {
		writeJSON(w, http.StatusBadRequest, checkResponse{Error: "missing_fields"})
		return req, false
	}
	return req, true
}

// decide выполняет проверку и переводит результат в HTTP ответ.
// Отказ политики — 200 с allowed=false, это не ошибка.
func (g *Gateway) decide(w http.ResponseWriter, r *http.Request, check string, req checkRequest, fn func(ctx context.Context) (bool, error)) {
	start := time.Now()
	allowed, err := fn(r.Context())

	switch {
	case errors.Is(err, guard.ErrInvalidProgress):
		g.metrics.ObserveCheck(check, ResultRejected, start)
		writeJSON(w, http.StatusBadRequest, checkResponse{Error: "invalid_progress"})

	case err != nil:
		g.metrics.ObserveCheck(check, ResultError, start)
		g.logStoreError(r, check, req.UserID, err)
		if g.failMode == infra.FailModeOpen {
			writeJSON(w, http.StatusOK, checkResponse{Allowed: true, Degraded: true})
			return
		}
		writeJSON(w, http.StatusServiceUnavailable, checkResponse{Error: "store_unavailable"})

	case !allowed:
		g.metrics.ObserveCheck(check, ResultRejected, start)
		writeJSON(w, http.StatusOK, checkResponse{Allowed: false})

	default:
		g.metrics.ObserveCheck(check, ResultAllowed, start)
		writeJSON(w, http.StatusOK, checkResponse{Allowed: true})
	}
}

func (g *Gateway) logStoreError(r *http.Request, check, userID string, err error) {
	g.logger.Warn("check failed on store",
		zap.String("check", check),
		zap.String("user_id", userID),
		zap.String("fail_mode", g.failMode),
		zap.String("trace_id", extractTraceID(r.Context())),
		zap.Error(err),
	)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
