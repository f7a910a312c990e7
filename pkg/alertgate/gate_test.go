package alertgate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowFirstCall(t *testing.T) {
	Clear("org-a", "chat-1")

	assert.True(t, Allow("org-a", "chat-1", 15*time.Second), "first alert should pass")
	assert.False(t, Allow("org-a", "chat-1", 15*time.Second), "second alert inside the window should be rejected")
}

func TestAllowAfterCooldown(t *testing.T) {
	Clear("org-a", "chat-2")

	assert.True(t, Allow("org-a", "chat-2", 30*time.Millisecond))
	assert.False(t, Allow("org-a", "chat-2", 30*time.Millisecond))

	time.Sleep(50 * time.Millisecond)
	assert.True(t, Allow("org-a", "chat-2", 30*time.Millisecond), "window elapsed, alert should pass again")
}

func TestAllowIsPerChat(t *testing.T) {
	Clear("org-a", "chat-3")
	Clear("org-a", "chat-4")

	assert.True(t, Allow("org-a", "chat-3", 15*time.Second))
	assert.True(t, Allow("org-a", "chat-4", 15*time.Second), "cooldown must not leak across chats")
}

func TestAllowIsPerTenant(t *testing.T) {
	Clear("org-a", "chat-5")
	Clear("org-b", "chat-5")

	assert.True(t, Allow("org-a", "chat-5", 15*time.Second))
	assert.True(t, Allow("org-b", "chat-5", 15*time.Second), "same chat id under another tenant is a separate gate")
}

func TestAllowRejectsEmptyKeys(t *testing.T) {
	assert.False(t, Allow("", "chat-6", 15*time.Second))
	assert.False(t, Allow("org-a", "", 15*time.Second))
	assert.False(t, Allow("  ", "  ", 15*time.Second))
}

func TestAllowZeroCooldown(t *testing.T) {
	Clear("org-a", "chat-7")

	assert.True(t, Allow("org-a", "chat-7", 0))
	assert.True(t, Allow("org-a", "chat-7", 0), "zero cooldown disables the gate")
}

func TestClearResetsWindow(t *testing.T) {
	Clear("org-a", "chat-8")

	assert.True(t, Allow("org-a", "chat-8", 15*time.Second))
	Clear("org-a", "chat-8")
	assert.True(t, Allow("org-a", "chat-8", 15*time.Second), "clear should reopen the gate immediately")
}

func TestSweepDropsStaleEntries(t *testing.T) {
	Clear("org-a", "chat-9")

	assert.True(t, Allow("org-a", "chat-9", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	Sweep(10 * time.Millisecond)

	mu.Lock()
	_, ok := store[key("org-a", "chat-9")]
	mu.Unlock()
	assert.False(t, ok, "stale entry should be removed")
}
