package cache

import (
	"context"
	"slices"
	"sync"
	"time"
)

// Memory — кэш в памяти процесса.
//
// Видим только внутри одного процесса: подходит для тестов и локального
// запуска одной реплики. TTL проверяется лениво при чтении.
type Memory struct {
	mu   sync.RWMutex
	maps map[string]map[string]memoryEntry
	now  func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt *time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return e.expiresAt != nil && !now.Before(*e.expiresAt)
}

var _ Client = (*Memory)(nil)

// NewMemory создаёт пустой кэш в памяти.
func NewMemory() *Memory {
	return &Memory{
		maps: make(map[string]map[string]memoryEntry),
		now:  time.Now,
	}
}

// Get возвращает копию значения.
func (m *Memory) Get(_ context.Context, mapName, key string) ([]byte, bool, error) {
	if err := validate(mapName, key); err != nil {
		return nil, false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.lookup(mapName, key)
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(e.value), true, nil
}

// Set записывает копию значения.
func (m *Memory) Set(_ context.Context, mapName, key string, value []byte, ttl time.Duration) error {
	if err := validate(mapName, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.store(mapName, key, value, ttl)
	return nil
}

// SetIfAbsent атомарно (под write-lock) записывает значение, если ключа нет.
func (m *Memory) SetIfAbsent(_ context.Context, mapName, key string, value []byte, ttl time.Duration) ([]byte, bool, error) {
	if err := validate(mapName, key); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if e, ok := m.lookup(mapName, key); ok {
		return slices.Clone(e.value), true, nil
	}
	m.store(mapName, key, value, ttl)
	return nil, false, nil
}

// Exists проверяет наличие неистёкшего ключа.
func (m *Memory) Exists(_ context.Context, mapName, key string) (bool, error) {
	if err := validate(mapName, key); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.lookup(mapName, key)
	return ok, nil
}

// Remove удаляет ключ.
func (m *Memory) Remove(_ context.Context, mapName, key string) error {
	if err := validate(mapName, key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.maps[mapName], key)
	return nil
}

// Purge удаляет истёкшие записи и возвращает их количество.
func (m *Memory) Purge(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var n int64
	for _, entries := range m.maps {
		for k, e := range entries {
			if e.expired(now) {
				delete(entries, k)
				n++
			}
		}
	}
	return n, nil
}

// lookup вызывается под блокировкой.
func (m *Memory) lookup(mapName, key string) (memoryEntry, bool) {
	e, ok := m.maps[mapName][key]
	if !ok || e.expired(m.now()) {
		return memoryEntry{}, false
	}
	return e, true
}

// store вызывается под write-lock.
func (m *Memory) store(mapName, key string, value []byte, ttl time.Duration) {
	entries, ok := m.maps[mapName]
	if !ok {
		entries = make(map[string]memoryEntry)
		m.maps[mapName] = entries
	}
	entries[key] = memoryEntry{
		value:     slices.Clone(value),
		expiresAt: expiresAt(m.now(), ttl),
	}
}
