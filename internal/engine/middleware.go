package engine

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Тип для ключа в контексте (избегаем коллизий)
type ctxKey string

const traceIDKey ctxKey = "trace_id"

// Заголовки, которыми геймификационный сервис сопровождает запросы.
const (
	HeaderTraceID = "X-Trace-ID"
	HeaderUserID  = "X-User-ID"
)

// TracingMiddleware инициализирует Trace-ID для каждого запроса
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 1. Пытаемся достать ID из заголовка (если пришел от вызывающего сервиса)
		traceID := r.Header.Get(HeaderTraceID)

		// 2. Если его нет — генерируем новый
		if traceID == "" {
			traceID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), traceIDKey, traceID)

		// 3. Возвращаем в ответе, чтобы клиент тоже знал ID своего запроса
		w.Header().Set(HeaderTraceID, traceID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// extractTraceID помогает безопасно достать ID в любом месте кода
func extractTraceID(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return "00000000-0000-0000-0000-000000000000" // Fallback
}

// Middleware не пускает в проверки заблокированных пользователей.
// Пользователь берется из X-User-ID; запросы без заголовка проходят дальше.
func (m *SuspensionManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(HeaderUserID)
		if userID == "" || !m.IsSuspended(userID) {
			next.ServeHTTP(w, r)
			return
		}

		m.logger.Info("intercepted request from suspended user",
			zap.String("user_id", userID),
			zap.String("trace_id", extractTraceID(r.Context())),
		)
		writeJSON(w, http.StatusForbidden, map[string]any{
			"allowed": false,
			"error":   "user_suspended",
		})
	})
}
