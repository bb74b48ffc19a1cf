package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
)

// Результаты проверок для метрик.
const (
	ResultAllowed  = "allowed"
	ResultRejected = "rejected"
	ResultError    = "error"
)

type Metrics struct {
	// Latency: сколько времени заняла проверка (включая round-trip в Redis)
	CheckDuration *prometheus.HistogramVec

	// Traffic: общее кол-во проверок по результату
	ChecksTotal *prometheus.CounterVec

	// Нарушения и санкции
	ViolationsTotal   *prometheus.CounterVec
	EnforcementsTotal *prometheus.CounterVec
	RiskScore         prometheus.Histogram

	// Errors: недоступность хранилища по проверкам
	StoreErrors *prometheus.CounterVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило, 0.5 - пробуем)
	CircuitBreakerState *prometheus.GaugeVec

	// Archive: заполненность буфера (backpressure)
	ArchiveBufferFill prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern - Если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		CheckDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "anticheat_check_duration_seconds",
			Help:    "Histogram of check latencies.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"check", "result"}),

		ChecksTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "anticheat_checks_total",
			Help: "Total number of checks by outcome.",
		}, []string{"check", "result"}),

		ViolationsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "anticheat_violations_total",
			Help: "Total number of recorded violations by type.",
		}, []string{"type"}),

		EnforcementsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "anticheat_enforcements_total",
			Help: "Total number of automated enforcement actions.",
		}, []string{"action"}), // monitoring, suspension

		RiskScore: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "anticheat_risk_score",
			Help:    "Distribution of risk scores after each update.",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),

		StoreErrors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "anticheat_store_errors_total",
			Help: "Total number of checks failed on the shared store.",
		}, []string{"check"}),

		CircuitBreakerState: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "anticheat_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 0.5=half-open, 1=open).",
		}, []string{"name"}),

		ArchiveBufferFill: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "anticheat_archive_buffer_utilization",
			Help: "Current number of violations waiting in the archive buffer.",
		}),
	}
}

// ObserveCheck фиксирует исход и длительность одной проверки.
func (m *Metrics) ObserveCheck(check, result string, started time.Time) {
	m.ChecksTotal.WithLabelValues(check, result).Inc()
	m.CheckDuration.WithLabelValues(check, result).Observe(time.Since(started).Seconds())
	if result == ResultError {
		m.StoreErrors.WithLabelValues(check).Inc()
	}
}

// ObserveViolation реализует risk.Recorder.
func (m *Metrics) ObserveViolation(t domain.ViolationType) {
	m.ViolationsTotal.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) ObserveEnforcement(action string) {
	m.EnforcementsTotal.WithLabelValues(action).Inc()
}

func (m *Metrics) ObserveRiskScore(score int) {
	m.RiskScore.Observe(float64(score))
}
