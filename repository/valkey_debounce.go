package repository

import (
	"context"
	"strconv"
	"time"

	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/AzielCF/az-crm/domains/debounce"
	"github.com/AzielCF/az-crm/infrastructure/valkey"
)

// ValkeyDebounceStore implements debounce.IDebounceStore over the shared KV.
// Queue entries survive process crashes, so the supervisor can respawn
// workers for chats that were mid-window when the process died.
type ValkeyDebounceStore struct {
	client *valkey.Client
}

// NewValkeyDebounceStore creates the KV-backed debounce store.
func NewValkeyDebounceStore(client *valkey.Client) *ValkeyDebounceStore {
	return &ValkeyDebounceStore{client: client}
}

func (s *ValkeyDebounceStore) queueKey(chatID string) string {
	return s.client.Key("queue", "ctx", chatID)
}

func (s *ValkeyDebounceStore) workerKey(chatID string) string {
	return s.client.Key("worker", "active", chatID)
}

func (s *ValkeyDebounceStore) inner() valkeylib.Client {
	return s.client.Inner()
}

// SetContext upserts the {run_at, msg_id, priority} hash for a chat.
func (s *ValkeyDebounceStore) SetContext(ctx context.Context, chatID string, entry debounce.Entry) error {
	cmd := s.inner().B().Hset().
		Key(s.queueKey(chatID)).
		FieldValue().
		FieldValue("run_at", strconv.FormatFloat(entry.RunAt, 'f', -1, 64)).
		FieldValue("msg_id", entry.MessageID).
		FieldValue("priority", entry.Priority).
		Build()

	return s.inner().Do(ctx, cmd).Error()
}

// GetContext returns nil when the queue hash is gone, which is the worker's
// signal to exit its loop.
func (s *ValkeyDebounceStore) GetContext(ctx context.Context, chatID string) (*debounce.Entry, error) {
	cmd := s.inner().B().Hgetall().Key(s.queueKey(chatID)).Build()
	fields, err := s.inner().Do(ctx, cmd).AsStrMap()
	if err != nil {
		if valkeylib.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}

	runAt, _ := strconv.ParseFloat(fields["run_at"], 64)
	return &debounce.Entry{
		RunAt:     runAt,
		MessageID: fields["msg_id"],
		Priority:  fields["priority"],
	}, nil
}

// ClaimWorker sets the worker-alive flag iff absent.
// Returns false when another worker already owns the chat.
func (s *ValkeyDebounceStore) ClaimWorker(ctx context.Context, chatID string, ttl time.Duration) (bool, error) {
	cmd := s.inner().B().Set().
		Key(s.workerKey(chatID)).
		Value("1").
		Nx().
		Ex(ttl).
		Build()

	err := s.inner().Do(ctx, cmd).Error()
	if err == nil {
		return true, nil
	}
	if valkeylib.IsValkeyNil(err) {
		return false, nil
	}
	return false, err
}

// Heartbeat refreshes the worker flag's TTL while the worker sleeps.
func (s *ValkeyDebounceStore) Heartbeat(ctx context.Context, chatID string, ttl time.Duration) error {
	cmd := s.inner().B().Expire().
		Key(s.workerKey(chatID)).
		Seconds(int64(ttl.Seconds())).
		Build()

	return s.inner().Do(ctx, cmd).Error()
}

// Clear drops the queue entry first, then the worker flag. Keeping that
// order means a concurrent enqueue that lands in between spawns a fresh
// worker instead of feeding one that is about to exit.
func (s *ValkeyDebounceStore) Clear(ctx context.Context, chatID string) error {
	delQueue := s.inner().B().Del().Key(s.queueKey(chatID)).Build()
	if err := s.inner().Do(ctx, delQueue).Error(); err != nil {
		return err
	}

	delWorker := s.inner().B().Del().Key(s.workerKey(chatID)).Build()
	return s.inner().Do(ctx, delWorker).Error()
}

// PendingChats lists chat ids that still have a queued entry.
// Uses SCAN for production safety (non-blocking).
func (s *ValkeyDebounceStore) PendingChats(ctx context.Context) ([]string, error) {
	prefix := s.client.Key("queue", "ctx") + ":"
	pattern := prefix + "*"

	var chats []string
	var cursor uint64

	for {
		cmd := s.inner().B().Scan().Cursor(cursor).Match(pattern).Count(100).Build()
		result, err := s.inner().Do(ctx, cmd).AsScanEntry()
		if err != nil {
			return nil, err
		}

		for _, k := range result.Elements {
			if len(k) > len(prefix) {
				chats = append(chats, k[len(prefix):])
			}
		}

		cursor = result.Cursor
		if cursor == 0 {
			break
		}
	}

	return chats, nil
}

// WorkerAlive reports whether a worker flag exists for the chat.
func (s *ValkeyDebounceStore) WorkerAlive(ctx context.Context, chatID string) (bool, error) {
	cmd := s.inner().B().Exists().Key(s.workerKey(chatID)).Build()
	count, err := s.inner().Do(ctx, cmd).AsInt64()
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
