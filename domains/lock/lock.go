package lock

import (
	"context"
	"time"
)

// Lease is proof of lock ownership. The token is random per acquisition so
// a holder can never release a lock that was re-acquired after TTL expiry.
type Lease struct {
	Key   string
	Token string
}

// ILockService provides per-key mutual exclusion with TTL and bounded wait,
// backed by a shared KV so it holds across process instances.
type ILockService interface {
	// Acquire blocks up to maxWait for the lock. When the wait window
	// elapses it returns a LockTimeoutError and no side effects remain.
	Acquire(ctx context.Context, key string, ttl, maxWait time.Duration) (*Lease, error)
	// Release deletes the lock only while the lease token still matches.
	// Releasing an expired or stolen lease is a no-op, never an error.
	Release(ctx context.Context, lease *Lease) error
	// Extend renews the TTL while the lease token still matches.
	Extend(ctx context.Context, lease *Lease, ttl time.Duration) error
}
