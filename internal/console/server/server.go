package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/console/handler"
	"github.com/xela07ax/spaceai-anticheat/internal/domain"
	"github.com/xela07ax/spaceai-anticheat/internal/infra/auth"
)

type ConsoleServer struct {
	router *chi.Mux
	logger *zap.Logger

	// Проверка токенов (RS256), реализуется AuthService через embedding BaseValidator
	authValidator auth.TokenValidator

	authHandler *handler.AuthHandler // /auth/token
	riskHandler *handler.RiskHandler // /v1/users, /v1/violations
}

// NewConsoleServer инициализирует сервер консоли Trust & Safety
func NewConsoleServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	riskH *handler.RiskHandler,
) *ConsoleServer {
	s := &ConsoleServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("console-api"),
		authValidator: validator,
		authHandler:   authH,
		riskHandler:   riskH,
	}

	s.routes()
	return s
}

func (s *ConsoleServer) routes() {
	r := s.router

	// --- 1. Глобальные инфраструктурные Middleware (для всех) ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// --- 2. ПУБЛИЧНЫЕ РОУТЫ ---
	r.Group(func(r chi.Router) {
		r.Post("/auth/token", s.authHandler.Login)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// --- 3. ЧТЕНИЕ (любой валидный токен оператора) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, "", s.logger))

		r.Get("/v1/users/{id}/risk", s.riskHandler.GetProfile)
		r.Get("/v1/violations", s.riskHandler.Recent)
		r.Get("/v1/violations/archive", s.riskHandler.Archive)
	})

	// --- 4. РУЧНЫЕ ОПЕРАЦИИ (нужен scope администратора) ---
	r.Group(func(r chi.Router) {
		r.Use(auth.NewMiddleware(s.authValidator, domain.ScopeAdmin, s.logger))

		r.Post("/v1/users/{id}/risk/reset", s.riskHandler.Reset)
	})
}

// ServeHTTP позволяет использовать ConsoleServer как стандартный http.Handler
func (s *ConsoleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
