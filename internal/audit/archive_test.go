package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xela07ax/spaceai-anticheat/internal/domain"
)

type memStorage struct {
	mu      sync.Mutex
	batches [][]domain.Violation
	err     error
}

func (m *memStorage) WriteBatch(_ context.Context, items []domain.Violation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]domain.Violation(nil), items...))
	return m.err
}

func (m *memStorage) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func violation(i int) domain.Violation {
	return domain.Violation{ID: fmt.Sprintf("v%d", i), UserID: "u1", Type: domain.ViolationMultipleIPs}
}

func TestArchive_StopFlushesEverything(t *testing.T) {
	repo := &memStorage{}
	a := NewArchive(repo, zap.NewNop(), WithBatch(10, time.Hour))
	a.Start()

	for i := 0; i < 25; i++ {
		require.True(t, a.Enqueue(violation(i)))
	}
	a.Stop()

	assert.Equal(t, 25, repo.total())
	require.Len(t, repo.batches, 3)
	assert.Len(t, repo.batches[0], 10)
	assert.Len(t, repo.batches[2], 5)
}

func TestArchive_TickerFlush(t *testing.T) {
	repo := &memStorage{}
	a := NewArchive(repo, zap.NewNop(), WithBatch(100, 10*time.Millisecond))
	a.Start()
	defer a.Stop()

	require.True(t, a.Enqueue(violation(1)))
	assert.Eventually(t, func() bool { return repo.total() == 1 }, time.Second, 5*time.Millisecond)
}

func TestArchive_DropsAfterStop(t *testing.T) {
	repo := &memStorage{}
	a := NewArchive(repo, zap.NewNop())
	a.Start()
	a.Stop()
	a.Stop()

	assert.False(t, a.Enqueue(violation(1)))
	assert.Zero(t, repo.total())
}

func TestArchive_Overflow(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_fill"})
	core, logs := observer.New(zap.WarnLevel)
	a := NewArchive(&memStorage{}, zap.New(core), WithBuffer(2), WithFillGauge(gauge))
	// воркер не запущен: буфер никто не читает

	assert.True(t, a.Enqueue(violation(1)))
	assert.True(t, a.Enqueue(violation(2)))
	assert.False(t, a.Enqueue(violation(3)))
	assert.Equal(t, 2.0, testutil.ToFloat64(gauge))

	dropped := logs.FilterMessage("archive_buffer_overflow").All()
	require.Len(t, dropped, 1)
	assert.Equal(t, "v3", dropped[0].ContextMap()["id"])
}

func TestArchive_WriteErrorKeepsWorking(t *testing.T) {
	repo := &memStorage{err: errors.New("db down")}
	a := NewArchive(repo, zap.NewNop(), WithBatch(1, time.Hour))
	a.Start()

	require.True(t, a.Enqueue(violation(1)))
	require.True(t, a.Enqueue(violation(2)))
	a.Stop()

	assert.Equal(t, 2, repo.total())
}
