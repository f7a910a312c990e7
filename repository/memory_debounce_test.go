package repository

import (
	"context"
	"testing"
	"time"

	"github.com/AzielCF/az-crm/domains/debounce"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryDebounceContextRoundTrip(t *testing.T) {
	store := NewMemoryDebounceStore()
	ctx := context.Background()

	entry, err := store.GetContext(ctx, "chat-1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	require.NoError(t, store.SetContext(ctx, "chat-1", debounce.Entry{
		RunAt:     1700000000.5,
		MessageID: "msg-1",
		Priority:  "normal",
	}))

	entry, err = store.GetContext(ctx, "chat-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "msg-1", entry.MessageID)
	assert.Equal(t, "normal", entry.Priority)
	assert.InDelta(t, 1700000000.5, entry.RunAt, 0.001)

	// A newer message overwrites the pending entry
	require.NoError(t, store.SetContext(ctx, "chat-1", debounce.Entry{
		RunAt:     1700000005.0,
		MessageID: "msg-2",
		Priority:  "high",
	}))

	entry, err = store.GetContext(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "msg-2", entry.MessageID)
}

func TestMemoryDebounceClaimWorkerOnce(t *testing.T) {
	store := NewMemoryDebounceStore()
	ctx := context.Background()

	claimed, err := store.ClaimWorker(ctx, "chat-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)

	claimed, err = store.ClaimWorker(ctx, "chat-1", time.Minute)
	require.NoError(t, err)
	assert.False(t, claimed)

	alive, err := store.WorkerAlive(ctx, "chat-1")
	require.NoError(t, err)
	assert.True(t, alive)
}

func TestMemoryDebounceWorkerFlagExpires(t *testing.T) {
	store := NewMemoryDebounceStore()
	ctx := context.Background()

	claimed, err := store.ClaimWorker(ctx, "chat-1", 30*time.Millisecond)
	require.NoError(t, err)
	require.True(t, claimed)

	time.Sleep(50 * time.Millisecond)

	alive, err := store.WorkerAlive(ctx, "chat-1")
	require.NoError(t, err)
	assert.False(t, alive)

	// The dead flag can be reclaimed, which is how crash recovery works
	claimed, err = store.ClaimWorker(ctx, "chat-1", time.Minute)
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryDebounceHeartbeatExtendsFlag(t *testing.T) {
	store := NewMemoryDebounceStore()
	ctx := context.Background()

	_, err := store.ClaimWorker(ctx, "chat-1", 40*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, store.Heartbeat(ctx, "chat-1", time.Minute))
	time.Sleep(40 * time.Millisecond)

	alive, err := store.WorkerAlive(ctx, "chat-1")
	require.NoError(t, err)
	assert.True(t, alive)

	// Heartbeat on a chat without a flag must not create one
	require.NoError(t, store.Heartbeat(ctx, "chat-2", time.Minute))
	alive, err = store.WorkerAlive(ctx, "chat-2")
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestMemoryDebounceClearDropsBoth(t *testing.T) {
	store := NewMemoryDebounceStore()
	ctx := context.Background()

	require.NoError(t, store.SetContext(ctx, "chat-1", debounce.Entry{RunAt: 1, MessageID: "m"}))
	_, err := store.ClaimWorker(ctx, "chat-1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, store.Clear(ctx, "chat-1"))

	entry, err := store.GetContext(ctx, "chat-1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	alive, err := store.WorkerAlive(ctx, "chat-1")
	require.NoError(t, err)
	assert.False(t, alive)
}

func TestMemoryDebouncePendingChats(t *testing.T) {
	store := NewMemoryDebounceStore()
	ctx := context.Background()

	chats, err := store.PendingChats(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)

	require.NoError(t, store.SetContext(ctx, "chat-a", debounce.Entry{RunAt: 1, MessageID: "m1"}))
	require.NoError(t, store.SetContext(ctx, "chat-b", debounce.Entry{RunAt: 2, MessageID: "m2"}))

	chats, err = store.PendingChats(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"chat-a", "chat-b"}, chats)
}
