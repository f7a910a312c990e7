package repository

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/AzielCF/az-crm/domains/lock"
	"github.com/AzielCF/az-crm/infrastructure/valkey"
	pkgError "github.com/AzielCF/az-crm/pkg/error"
	"github.com/google/uuid"
)

// lockRetryInterval is the time between lock acquisition attempts
const lockRetryInterval = 100 * time.Millisecond

// Lua script for atomic lock release (only delete if token matches)
const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Lua script for atomic TTL renewal (only extend if token matches)
const extendLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("expire", KEYS[1], ARGV[2])
else
	return 0
end
`

// ValkeyLockService implements lock.ILockService on a shared Valkey
// instance. Crashed holders are recovered by TTL expiry, so a lease can
// only outlive its process for at most the configured TTL.
type ValkeyLockService struct {
	client *valkey.Client
}

// NewValkeyLockService creates a distributed lock service.
// The client should be created via valkey.NewClient and passed here.
func NewValkeyLockService(client *valkey.Client) *ValkeyLockService {
	return &ValkeyLockService{client: client}
}

func (s *ValkeyLockService) lockKey(key string) string {
	return s.client.Key("lock", key)
}

func (s *ValkeyLockService) inner() valkeylib.Client {
	return s.client.Inner()
}

// Acquire attempts SET NX EX in a spinloop until maxWait elapses.
// The lease value is a random token so only the owner can release it.
func (s *ValkeyLockService) Acquire(ctx context.Context, key string, ttl, maxWait time.Duration) (*lock.Lease, error) {
	lockKey := s.lockKey(key)
	token := uuid.New().String()
	deadline := time.Now().Add(maxWait)

	for {
		// SET key token NX EX ttl
		// NX: Only set if not exists
		// EX: Expire after ttl
		cmd := s.inner().B().Set().
			Key(lockKey).
			Value(token).
			Nx().
			Ex(ttl).
			Build()

		err := s.inner().Do(ctx, cmd).Error()
		if err == nil {
			return &lock.Lease{Key: key, Token: token}, nil
		}

		if !valkeylib.IsValkeyNil(err) {
			// Real error (connection, etc), log but continue retrying
			logrus.Debugf("[Lock] Acquire attempt failed for %s: %v", key, err)
		}

		if time.Now().After(deadline) {
			return nil, pkgError.LockTimeoutError("lock not acquired within wait window: " + key)
		}

		// Wait with random jitter to avoid thundering herd
		sleepDuration := lockRetryInterval + time.Duration(rand.Intn(20))*time.Millisecond
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleepDuration):
			continue
		}
	}
}

// Release releases the distributed lock ONLY if the token matches.
// This prevents deleting a lock that was already re-acquired by someone
// else after TTL expiry. Uses a Lua script for atomicity.
func (s *ValkeyLockService) Release(ctx context.Context, lease *lock.Lease) error {
	if lease == nil {
		return nil
	}

	cmd := s.inner().B().Eval().
		Script(releaseLockScript).
		Numkeys(1).
		Key(s.lockKey(lease.Key)).
		Arg(lease.Token).
		Build()

	if err := s.inner().Do(ctx, cmd).Error(); err != nil {
		return err
	}
	return nil
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatInt(int64(d.Seconds()), 10)
}

// Extend renews the TTL of a held lock while the token still matches.
// A lease that already expired returns without error; the caller finds out
// on the next Extend or at Release time.
func (s *ValkeyLockService) Extend(ctx context.Context, lease *lock.Lease, ttl time.Duration) error {
	if lease == nil {
		return nil
	}

	cmd := s.inner().B().Eval().
		Script(extendLockScript).
		Numkeys(1).
		Key(s.lockKey(lease.Key)).
		Arg(lease.Token, formatSeconds(ttl)).
		Build()

	if err := s.inner().Do(ctx, cmd).Error(); err != nil {
		return err
	}
	return nil
}
