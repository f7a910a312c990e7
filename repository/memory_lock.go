package repository

import (
	"context"
	"sync"
	"time"

	"github.com/AzielCF/az-crm/domains/lock"
	pkgError "github.com/AzielCF/az-crm/pkg/error"
	"github.com/google/uuid"
)

// MemoryLockService implementa lock.ILockService con un map en memoria.
// Solo garantiza exclusión dentro del proceso; es la implementación usada
// cuando Valkey está deshabilitado (modo desarrollo o tests).
type MemoryLockService struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

type memoryLock struct {
	token    string
	expireAt time.Time
}

// NewMemoryLockService crea un lock service en memoria.
// Las entradas expiradas se reciclan en el próximo intento de adquisición.
func NewMemoryLockService() *MemoryLockService {
	return &MemoryLockService{locks: make(map[string]memoryLock)}
}

func (s *MemoryLockService) tryAcquire(key, token string, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.locks[key]; ok && time.Now().Before(held.expireAt) {
		return false
	}
	s.locks[key] = memoryLock{token: token, expireAt: time.Now().Add(ttl)}
	return true
}

// Acquire reintenta en el mismo intervalo que la variante distribuida para
// mantener el mismo comportamiento observable.
func (s *MemoryLockService) Acquire(ctx context.Context, key string, ttl, maxWait time.Duration) (*lock.Lease, error) {
	token := uuid.New().String()
	deadline := time.Now().Add(maxWait)

	for {
		if s.tryAcquire(key, token, ttl) {
			return &lock.Lease{Key: key, Token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, pkgError.LockTimeoutError("lock not acquired within wait window: " + key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(lockRetryInterval):
			continue
		}
	}
}

// Release elimina el lock solo si el token coincide.
func (s *MemoryLockService) Release(ctx context.Context, lease *lock.Lease) error {
	if lease == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.locks[lease.Key]; ok && held.token == lease.Token {
		delete(s.locks, lease.Key)
	}
	return nil
}

// Extend renueva el TTL solo si el token coincide.
func (s *MemoryLockService) Extend(ctx context.Context, lease *lock.Lease, ttl time.Duration) error {
	if lease == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if held, ok := s.locks[lease.Key]; ok && held.token == lease.Token {
		held.expireAt = time.Now().Add(ttl)
		s.locks[lease.Key] = held
	}
	return nil
}
