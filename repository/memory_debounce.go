package repository

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-crm/domains/debounce"
)

// MemoryDebounceStore implementa debounce.IDebounceStore con maps en
// memoria. No sobrevive reinicios, así que el supervisor nunca encuentra
// colas huérfanas tras un crash, pero el contrato observable del worker
// (una cola y un flag por chat, con TTL) es el mismo que en Valkey.
type MemoryDebounceStore struct {
	mu      sync.Mutex
	queues  map[string]debounce.Entry
	workers map[string]time.Time
}

// NewMemoryDebounceStore crea el store en memoria.
func NewMemoryDebounceStore() *MemoryDebounceStore {
	return &MemoryDebounceStore{
		queues:  make(map[string]debounce.Entry),
		workers: make(map[string]time.Time),
	}
}

func (s *MemoryDebounceStore) SetContext(ctx context.Context, chatID string, entry debounce.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queues[chatID] = entry
	return nil
}

func (s *MemoryDebounceStore) GetContext(ctx context.Context, chatID string) (*debounce.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.queues[chatID]
	if !ok {
		return nil, nil
	}
	out := entry
	return &out, nil
}

func (s *MemoryDebounceStore) ClaimWorker(ctx context.Context, chatID string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expireAt, ok := s.workers[chatID]; ok && time.Now().Before(expireAt) {
		return false, nil
	}
	s.workers[chatID] = time.Now().Add(ttl)
	return true, nil
}

func (s *MemoryDebounceStore) Heartbeat(ctx context.Context, chatID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Igual que EXPIRE: renovar un flag inexistente es un no-op
	if _, ok := s.workers[chatID]; ok {
		s.workers[chatID] = time.Now().Add(ttl)
	}
	return nil
}

func (s *MemoryDebounceStore) Clear(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.queues, chatID)
	delete(s.workers, chatID)
	return nil
}

func (s *MemoryDebounceStore) PendingChats(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chats := make([]string, 0, len(s.queues))
	for chatID := range s.queues {
		chats = append(chats, chatID)
	}
	return chats, nil
}

func (s *MemoryDebounceStore) WorkerAlive(ctx context.Context, chatID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expireAt, ok := s.workers[chatID]
	return ok && time.Now().Before(expireAt), nil
}
