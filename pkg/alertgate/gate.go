package alertgate

import (
	"strings"
	"sync"
	"time"
)

type entry struct {
	sentAt time.Time
}

var (
	mu    sync.Mutex
	store = map[string]entry{}
)

func key(tenantID, chatID string) string {
	return tenantID + "|" + chatID
}

// Allow reports whether a system alert may be sent to the chat right now.
// The first call for a chat always succeeds and starts the cooldown window;
// further calls within the window are rejected so a burst of failures does
// not spam the customer with identical apologies.
func Allow(tenantID, chatID string, cooldown time.Duration) bool {
	tenantID = strings.TrimSpace(tenantID)
	chatID = strings.TrimSpace(chatID)
	if tenantID == "" || chatID == "" {
		return false
	}
	if cooldown <= 0 {
		return true
	}

	mu.Lock()
	e, ok := store[key(tenantID, chatID)]
	if ok && time.Since(e.sentAt) < cooldown {
		mu.Unlock()
		return false
	}
	store[key(tenantID, chatID)] = entry{sentAt: time.Now()}
	mu.Unlock()
	return true
}

// Clear drops the cooldown for a chat, e.g. after a successful AI reply
// proves the upstream recovered.
func Clear(tenantID, chatID string) {
	tenantID = strings.TrimSpace(tenantID)
	chatID = strings.TrimSpace(chatID)
	if tenantID == "" || chatID == "" {
		return
	}

	mu.Lock()
	delete(store, key(tenantID, chatID))
	mu.Unlock()
}

// Sweep removes entries older than maxAge. Callers run it periodically so
// the map does not grow with one entry per chat that ever failed.
func Sweep(maxAge time.Duration) {
	if maxAge <= 0 {
		return
	}

	mu.Lock()
	for k, e := range store {
		if time.Since(e.sentAt) > maxAge {
			delete(store, k)
		}
	}
	mu.Unlock()
}
