package audit

/*
Файл archive.go — асинхронный архив нарушений в PostgreSQL.

Журнал suspicious_activities в Redis ограничен последними записями, архив хранит
всю историю для разборов в консоли:
- Non-blocking: Enqueue никогда не ждет, при переполнении буфера запись отбрасывается
  (Load Shedding), горячий путь проверок от БД не зависит.
- Batching: пакетная запись по таймеру или при достижении размера пачки.
- Drain: Stop закрывает вход, воркер дочитывает буфер и делает финальный flush.
*/

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
)

// Storage определяет, куда физически сохраняются нарушения.
type Storage interface {
	WriteBatch(ctx context.Context, items []domain.Violation) error
}

type Option func(*Archive)

// WithBuffer задает емкость очереди.
func WithBuffer(n int) Option {
	return func(a *Archive) {
		if n > 0 {
			a.bufSize = n
		}
	}
}

// WithBatch задает размер пачки и период принудительного сброса.
func WithBatch(size int, every time.Duration) Option {
	return func(a *Archive) {
		if size > 0 {
			a.batchSize = size
		}
		if every > 0 {
			a.flushEvery = every
		}
	}
}

// WithFillGauge публикует текущую заполненность буфера.
func WithFillGauge(g prometheus.Gauge) Option {
	return func(a *Archive) { a.fill = g }
}

type Archive struct {
	ch     chan domain.Violation
	repo   Storage
	logger *zap.Logger
	fill   prometheus.Gauge

	bufSize    int
	batchSize  int
	flushEvery time.Duration

	mu     sync.RWMutex // защищает закрытие ch от параллельных Enqueue
	closed bool
	wg     sync.WaitGroup
}

func NewArchive(repo Storage, logger *zap.Logger, opts ...Option) *Archive {
	a := &Archive{
		repo:       repo,
		logger:     logger.With(zap.String("mod", "archive")),
		bufSize:    10000,
		batchSize:  100,
		flushEvery: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.ch = make(chan domain.Violation, a.bufSize)
	return a
}

func (a *Archive) Start() {
	a.wg.Add(1)
	go a.worker()
}

// Stop закрывает вход и ждет, пока воркер допишет остатки.
func (a *Archive) Stop() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.ch)
	a.mu.Unlock()

	a.logger.Info("stopping archive: flushing buffer...")
	a.wg.Wait()
	a.logger.Info("archive stopped gracefully")
}

// Enqueue ставит нарушение в очередь. false — запись отброшена (остановка или переполнение).
func (a *Archive) Enqueue(v domain.Violation) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		a.logger.Warn("violation dropped: archive is stopping", zap.String("id", v.ID))
		return false
	}

	select {
	case a.ch <- v:
		if a.fill != nil {
			a.fill.Set(float64(len(a.ch)))
		}
		return true
	default:
		a.logger.Error("archive_buffer_overflow",
			zap.String("id", v.ID),
			zap.String("user_id", v.UserID),
		)
		return false
	}
}

func (a *Archive) worker() {
	defer a.wg.Done()

	batch := make([]domain.Violation, 0, a.batchSize)
	ticker := time.NewTicker(a.flushEvery)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// Background: к финальному flush основной контекст уже отменен
		if err := a.repo.WriteBatch(context.Background(), batch); err != nil {
			a.logger.Error("archive flush failed", zap.Int("size", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		if a.fill != nil {
			a.fill.Set(float64(len(a.ch)))
		}
	}

	for {
		select {
		case v, ok := <-a.ch:
			if !ok {
				flush()
				a.logger.Info("archive worker finished")
				return
			}
			batch = append(batch, v)
			if len(batch) >= a.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
