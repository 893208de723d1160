package approval

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/joe-reitz/oss-moperator/internal/domain"
)

// MemoryStore — реализация Store в памяти процесса: для CLI-режима и тестов.
// Переживать рестарты она, разумеется, не умеет, поэтому в серверном режиме
// используется только RedisStore.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]memEntry
	ttl   time.Duration
	now   func() time.Time // подменяется в тестах для детерминированного TTL
}

type memEntry struct {
	data      []byte
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		items: make(map[string]memEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// WithClock подменяет источник времени. Только для тестов.
func (s *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	s.now = now
	return s
}

func (s *MemoryStore) Available() bool { return true }

func (s *MemoryStore) Put(_ context.Context, app *domain.PendingApproval) error {
	data, err := json.Marshal(app)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[app.ID] = memEntry{data: data, expiresAt: s.now().Add(s.ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*domain.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return decodeApproval(entry.data)
}

func (s *MemoryStore) Claim(_ context.Context, id string) (*domain.PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	// Удаление под тем же локом = единственный победитель.
	delete(s.items, id)
	return decodeApproval(entry.data)
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.items, id)
	return nil
}

func (s *MemoryStore) SetPromptRef(ctx context.Context, id, promptTS string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.liveLocked(id)
	if !ok {
		return domain.ErrNotFound
	}
	app, err := decodeApproval(entry.data)
	if err != nil {
		return err
	}
	app.PromptTS = promptTS
	data, err := json.Marshal(app)
	if err != nil {
		return err
	}
	// TTL не трогаем — дедлайн абсолютный.
	s.items[id] = memEntry{data: data, expiresAt: entry.expiresAt}
	return nil
}

func (s *MemoryStore) ScanAll(_ context.Context, fn func(*domain.PendingApproval) bool) error {
	// Снимаем срез под локом, декодируем и отдаем без него:
	// семантика best-effort допускает гонки с параллельными мутациями.
	s.mu.Lock()
	snapshot := make([][]byte, 0, len(s.items))
	for id := range s.items {
		if entry, ok := s.liveLocked(id); ok {
			snapshot = append(snapshot, entry.data)
		}
	}
	s.mu.Unlock()

	for _, data := range snapshot {
		app, err := decodeApproval(data)
		if err != nil {
			continue
		}
		if !fn(app) {
			return nil
		}
	}
	return nil
}

// liveLocked возвращает запись, если она есть и не истекла.
// Истекшие удаляет на месте: ленивый аналог редисовского TTL-реапера.
func (s *MemoryStore) liveLocked(id string) (memEntry, bool) {
	entry, ok := s.items[id]
	if !ok {
		return memEntry{}, false
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.items, id)
		return memEntry{}, false
	}
	return entry, true
}
