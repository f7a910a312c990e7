package pipemonitor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordCounters(t *testing.T) {
	m := New(8)

	m.Record(Event{TenantID: "org-a", ChatID: "chat-1", Stage: "inbound", Status: "ok"})
	m.Record(Event{TenantID: "org-a", ChatID: "chat-1", Stage: "ai_request", Status: "ok"})
	m.Record(Event{TenantID: "org-a", ChatID: "chat-1", Stage: "ai_response", Status: "ok", DurationMs: 420})
	m.Record(Event{TenantID: "org-a", ChatID: "chat-1", Stage: "outbound", Status: "ok"})

	stats := m.GetStats()
	assert.Equal(t, int64(1), stats.TotalInbound)
	assert.Equal(t, int64(1), stats.TotalAIRequests)
	assert.Equal(t, int64(1), stats.TotalAIReplies)
	assert.Equal(t, int64(1), stats.TotalOutbound)
	assert.Zero(t, stats.TotalErrors)
	assert.Len(t, stats.RecentEvents, 4)
}

func TestRecordErrorsDoNotCountAsDeliveries(t *testing.T) {
	m := New(8)

	m.Record(Event{TenantID: "org-a", ChatID: "chat-1", Stage: "ai_response", Status: "error", Error: "proxy 502"})
	m.Record(Event{TenantID: "org-a", ChatID: "chat-1", Stage: "outbound", Status: "error", Error: "gateway down"})

	stats := m.GetStats()
	assert.Zero(t, stats.TotalAIReplies)
	assert.Zero(t, stats.TotalOutbound)
	assert.Equal(t, int64(2), stats.TotalErrors)
}

func TestRingBufferKeepsNewest(t *testing.T) {
	m := New(3)

	for i := 0; i < 5; i++ {
		m.Record(Event{TenantID: "org-a", ChatID: "chat-1", Stage: "ai_request", Status: "ok", TraceID: string(rune('a' + i))})
	}

	stats := m.GetStats()
	assert.Equal(t, int64(5), stats.TotalAIRequests)
	assert.Len(t, stats.RecentEvents, 3)
	assert.Equal(t, "c", stats.RecentEvents[0].TraceID, "oldest surviving event")
	assert.Equal(t, "e", stats.RecentEvents[2].TraceID, "newest event")
}

func TestRecordStampsTimestamp(t *testing.T) {
	m := New(2)

	m.Record(Event{TenantID: "org-a", ChatID: "chat-1", Stage: "inbound", Status: "ok"})

	stats := m.GetStats()
	assert.False(t, stats.RecentEvents[0].Timestamp.IsZero())
}
