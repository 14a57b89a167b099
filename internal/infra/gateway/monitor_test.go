package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitor_LatencyAndCounts(t *testing.T) {
	m := NewMonitor()

	m.RecordRequest("http://a/", 100*time.Millisecond)
	m.RecordRequest("http://a", 300*time.Millisecond)
	m.RecordFailure("http://a")

	stats := m.Snapshot()["http://a"]
	assert.Equal(t, 3, stats.Requests)
	assert.Equal(t, 1, stats.Failures)
	assert.Equal(t, 200*time.Millisecond, stats.AverageLatency)
	assert.Equal(t, "healthy", stats.Status)
}

func TestMonitor_ThrottleWindows(t *testing.T) {
	m := NewMonitor()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	m.RecordThrottle("http://a", 429, "")
	assert.Equal(t, StatusThrottled, m.Status("http://a"))
	assert.Equal(t, time.Minute, m.RetryAfter("http://a"))

	now = now.Add(2 * time.Minute)
	assert.Equal(t, StatusHealthy, m.Status("http://a"))
	assert.Zero(t, m.RetryAfter("http://a"))

	m.RecordThrottle("http://b", 403, "")
	assert.Equal(t, StatusBlocked, m.Status("http://b"))
	assert.Equal(t, 10*time.Minute, m.RetryAfter("http://b"))
}

func TestMonitor_DegradedOnErrorRate(t *testing.T) {
	m := NewMonitor()
	for i := 0; i < 6; i++ {
		m.RecordRequest("http://a", time.Millisecond)
	}
	for i := 0; i < 4; i++ {
		m.RecordFailure("http://a")
	}
	assert.Equal(t, StatusDegraded, m.Status("http://a"))
	assert.Equal(t, StatusHealthy, m.Status("http://unknown"))
}
