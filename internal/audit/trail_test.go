package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memRepo struct {
	mu      sync.Mutex
	events  []Event
	batches int
}

func (r *memRepo) WriteBatch(_ context.Context, events []Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, events...)
	r.batches++
	return nil
}

func (r *memRepo) snapshot() ([]Event, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event{}, r.events...), r.batches
}

func TestTrailDrainsOnStop(t *testing.T) {
	repo := &memRepo{}
	trail := NewTrail(repo, 100, time.Hour, zap.NewNop()) // тикер не сработает: всё уедет финальным flush'ем
	trail.Start()

	for i := 0; i < 25; i++ {
		trail.Log(Event{ID: fmt.Sprintf("event-%d", i), Decision: "approved"})
	}
	trail.Stop()

	events, _ := repo.snapshot()
	require.Len(t, events, 25)
	assert.Equal(t, "event-0", events[0].ID)
	assert.False(t, events[0].Timestamp.IsZero(), "timestamp is backfilled")
}

func TestTrailDropsAfterStop(t *testing.T) {
	repo := &memRepo{}
	trail := NewTrail(repo, 100, time.Hour, zap.NewNop())
	trail.Start()
	trail.Stop()

	// Не паникует и не пишет
	trail.Log(Event{ID: "late"})

	events, _ := repo.snapshot()
	assert.Empty(t, events)
}

func TestTrailPeriodicFlush(t *testing.T) {
	repo := &memRepo{}
	trail := NewTrail(repo, 100, 20*time.Millisecond, zap.NewNop())
	trail.Start()
	defer trail.Stop()

	trail.Log(Event{ID: "a"})
	trail.Log(Event{ID: "b"})

	assert.Eventually(t, func() bool {
		events, _ := repo.snapshot()
		return len(events) == 2
	}, time.Second, 10*time.Millisecond, "ticker flushes a partial batch")
}

func TestTrailBatchBySize(t *testing.T) {
	repo := &memRepo{}
	trail := NewTrail(repo, 1000, time.Hour, zap.NewNop())
	trail.Start()

	for i := 0; i < 250; i++ {
		trail.Log(Event{ID: fmt.Sprintf("event-%d", i)})
	}
	trail.Stop()

	events, batches := repo.snapshot()
	assert.Len(t, events, 250)
	assert.GreaterOrEqual(t, batches, 3, "size-triggered flushes plus the final one")
}

func TestTrailConcurrentLogDuringStop(t *testing.T) {
	repo := &memRepo{}
	trail := NewTrail(repo, 1000, time.Hour, zap.NewNop())
	trail.Start()

	// Шквал Log параллельно с остановкой: событие либо записано,
	// либо отброшено, но send в закрытый канал невозможен.
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				trail.Log(Event{ID: fmt.Sprintf("g%d-%d", g, i)})
			}
		}(g)
	}
	trail.Stop()
	wg.Wait()

	// Повторный Stop — no-op, без паники на двойном close
	trail.Stop()

	events, _ := repo.snapshot()
	assert.LessOrEqual(t, len(events), 800)
}
