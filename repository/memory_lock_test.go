package repository

import (
	"context"
	"testing"
	"time"

	pkgError "github.com/AzielCF/az-crm/pkg/error"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockAcquireAndRelease(t *testing.T) {
	svc := NewMemoryLockService()
	ctx := context.Background()

	lease, err := svc.Acquire(ctx, "router:t1:628111:false", time.Second, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, lease)
	assert.Equal(t, "router:t1:628111:false", lease.Key)
	assert.NotEmpty(t, lease.Token)

	// Second holder cannot enter while the lease is alive
	_, err = svc.Acquire(ctx, "router:t1:628111:false", time.Second, 50*time.Millisecond)
	var timeoutErr pkgError.LockTimeoutError
	assert.ErrorAs(t, err, &timeoutErr)

	require.NoError(t, svc.Release(ctx, lease))

	lease2, err := svc.Acquire(ctx, "router:t1:628111:false", time.Second, 100*time.Millisecond)
	require.NoError(t, err)
	assert.NotEqual(t, lease.Token, lease2.Token)
}

func TestMemoryLockWaitsForRelease(t *testing.T) {
	svc := NewMemoryLockService()
	ctx := context.Background()

	lease, err := svc.Acquire(ctx, "chat-1", time.Second, 100*time.Millisecond)
	require.NoError(t, err)

	go func() {
		time.Sleep(150 * time.Millisecond)
		_ = svc.Release(ctx, lease)
	}()

	start := time.Now()
	lease2, err := svc.Acquire(ctx, "chat-1", time.Second, time.Second)
	require.NoError(t, err)
	require.NotNil(t, lease2)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
}

func TestMemoryLockRecoversAfterTTL(t *testing.T) {
	svc := NewMemoryLockService()
	ctx := context.Background()

	_, err := svc.Acquire(ctx, "chat-2", 40*time.Millisecond, 100*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	// The holder vanished; TTL expiry lets the next caller in
	lease, err := svc.Acquire(ctx, "chat-2", time.Second, 100*time.Millisecond)
	require.NoError(t, err)
	require.NotNil(t, lease)
}

func TestMemoryLockReleaseIgnoresStaleToken(t *testing.T) {
	svc := NewMemoryLockService()
	ctx := context.Background()

	lease, err := svc.Acquire(ctx, "chat-3", time.Second, 100*time.Millisecond)
	require.NoError(t, err)

	stale := *lease
	stale.Token = "someone-elses-token"
	require.NoError(t, svc.Release(ctx, &stale))

	// Still held by the original lease
	_, err = svc.Acquire(ctx, "chat-3", time.Second, 50*time.Millisecond)
	assert.Error(t, err)
}

func TestMemoryLockExtend(t *testing.T) {
	svc := NewMemoryLockService()
	ctx := context.Background()

	lease, err := svc.Acquire(ctx, "chat-4", 50*time.Millisecond, 100*time.Millisecond)
	require.NoError(t, err)

	require.NoError(t, svc.Extend(ctx, lease, time.Second))
	time.Sleep(80 * time.Millisecond)

	// The original TTL already passed, but the extension keeps it held
	_, err = svc.Acquire(ctx, "chat-4", time.Second, 50*time.Millisecond)
	assert.Error(t, err)
}

func TestMemoryLockAcquireHonorsContext(t *testing.T) {
	svc := NewMemoryLockService()
	ctx, cancel := context.WithCancel(context.Background())

	_, err := svc.Acquire(ctx, "chat-5", time.Second, 100*time.Millisecond)
	require.NoError(t, err)

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	_, err = svc.Acquire(ctx, "chat-5", time.Second, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryLockNilLeaseIsNoop(t *testing.T) {
	svc := NewMemoryLockService()
	ctx := context.Background()

	assert.NoError(t, svc.Release(ctx, nil))
	assert.NoError(t, svc.Extend(ctx, nil, time.Second))
}
