package debounce

import (
	"context"
	"time"
)

// Entry is the pending trigger context for one chat. A later message for the
// same chat overwrites the entry, pushing RunAt forward.
type Entry struct {
	RunAt     float64 `json:"run_at"` // unix seconds
	MessageID string  `json:"msg_id"`
	Priority  string  `json:"priority"`
}

// IDebounceStore is the KV surface the worker loop runs against. The Valkey
// implementation maps it onto queue:ctx:{chat_id} hashes plus a
// worker:active:{chat_id} TTL flag; a local fallback keeps single-process
// deployments working without Valkey.
type IDebounceStore interface {
	// SetContext upserts the pending entry for a chat.
	SetContext(ctx context.Context, chatID string, entry Entry) error
	// GetContext returns the pending entry, or nil when the queue is empty.
	GetContext(ctx context.Context, chatID string) (*Entry, error)
	// ClaimWorker sets the worker-alive flag iff absent (SET NX EX).
	ClaimWorker(ctx context.Context, chatID string, ttl time.Duration) (bool, error)
	// Heartbeat refreshes the worker flag's TTL.
	Heartbeat(ctx context.Context, chatID string, ttl time.Duration) error
	// Clear removes the pending entry and the worker flag, in that order.
	Clear(ctx context.Context, chatID string) error
	// PendingChats lists chat ids with a queued entry (supervisor scan).
	PendingChats(ctx context.Context) ([]string, error)
	// WorkerAlive reports whether a worker flag exists for the chat.
	WorkerAlive(ctx context.Context, chatID string) (bool, error)
}

// Trigger is invoked exactly once per debounce cycle, after the window
// elapses, with the last message id and priority observed for the chat.
type Trigger func(ctx context.Context, chatID, messageID, priority string)

// IDebounceUsecase coalesces message bursts per chat.
type IDebounceUsecase interface {
	// Enqueue pushes the chat's trigger time to now+window and spawns a
	// worker when none is alive.
	Enqueue(ctx context.Context, chatID, messageID, priority string) error
	// Supervise respawns workers for queues orphaned by a crash.
	Supervise(ctx context.Context) error
}
