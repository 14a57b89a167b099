package gateway

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// EndpointStatus is the observed state of one endpoint.
type EndpointStatus int

const (
	StatusHealthy   EndpointStatus = iota // working normally
	StatusDegraded                        // slow or failing often
	StatusThrottled                       // rate limiting (429)
	StatusBlocked                         // refusing this client (403)
)

func (s EndpointStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// EndpointStats is a snapshot of one endpoint.
type EndpointStats struct {
	Status           string        `json:"status"`
	AverageLatency   time.Duration `json:"averageLatency"`
	Requests         int           `json:"requests"`
	Failures         int           `json:"failures"`
	ThrottleCount429 int           `json:"throttle429"`
	ThrottleCount403 int           `json:"throttle403"`
	RetryAfter       time.Duration `json:"retryAfter"`
}

const (
	latencyWindow         = 100
	slowResponseThreshold = 3 * time.Second
	degradedErrorRate     = 0.3
	defaultThrottleWait   = time.Minute
	blockedWait           = 10 * time.Minute
)

type endpointState struct {
	latencies    []time.Duration
	requests     int
	failures     int
	count429     int
	count403     int
	lastThrottle time.Time
	retryAfter   time.Duration
}

// Monitor tracks latency and throttling per base URL.
type Monitor struct {
	mu        sync.RWMutex
	endpoints map[string]*endpointState
	now       func() time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{
		endpoints: make(map[string]*endpointState),
		now:       time.Now,
	}
}

func (m *Monitor) state(baseURL string) *endpointState {
	key := strings.TrimRight(baseURL, "/")
	st, ok := m.endpoints[key]
	if !ok {
		st = &endpointState{latencies: make([]time.Duration, 0, latencyWindow)}
		m.endpoints[key] = st
	}
	return st
}

// RecordRequest records a completed request and its latency.
func (m *Monitor) RecordRequest(baseURL string, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(baseURL)
	st.requests++
	st.latencies = append(st.latencies, latency)
	if len(st.latencies) > latencyWindow {
		st.latencies = st.latencies[1:]
	}
}

// RecordFailure records a transport failure or 5xx.
func (m *Monitor) RecordFailure(baseURL string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(baseURL)
	st.requests++
	st.failures++
}

// RecordThrottle records a 429 or 403. retryAfter is the raw Retry-After header.
func (m *Monitor) RecordThrottle(baseURL string, statusCode int, retryAfter string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st := m.state(baseURL)
	st.requests++
	st.lastThrottle = m.now()

	switch statusCode {
	case 429:
		st.count429++
		st.retryAfter = defaultThrottleWait
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs > 0 {
			st.retryAfter = time.Duration(secs) * time.Second
		}
	case 403:
		st.count403++
		st.retryAfter = blockedWait
	}
}

// Status returns the current status of baseURL.
func (m *Monitor) Status(baseURL string) EndpointStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.endpoints[strings.TrimRight(baseURL, "/")]
	if !ok {
		return StatusHealthy
	}
	return m.statusLocked(st)
}

func (m *Monitor) statusLocked(st *endpointState) EndpointStatus {
	inWindow := m.now().Sub(st.lastThrottle) < st.retryAfter

	if st.count403 > 0 && inWindow {
		return StatusBlocked
	}
	if st.count429 > 0 && inWindow {
		return StatusThrottled
	}
	if len(st.latencies) > 10 && average(st.latencies) > slowResponseThreshold {
		return StatusDegraded
	}
	if st.requests >= 10 && float64(st.failures)/float64(st.requests) > degradedErrorRate {
		return StatusDegraded
	}
	return StatusHealthy
}

// RetryAfter returns how long until baseURL leaves its throttle window.
func (m *Monitor) RetryAfter(baseURL string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.endpoints[strings.TrimRight(baseURL, "/")]
	if !ok {
		return 0
	}
	return m.remainingLocked(st)
}

func (m *Monitor) remainingLocked(st *endpointState) time.Duration {
	if st.retryAfter <= 0 {
		return 0
	}
	remaining := st.retryAfter - m.now().Sub(st.lastThrottle)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Snapshot returns stats for every endpoint seen so far.
func (m *Monitor) Snapshot() map[string]EndpointStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]EndpointStats, len(m.endpoints))
	for url, st := range m.endpoints {
		out[url] = EndpointStats{
			Status:           m.statusLocked(st).String(),
			AverageLatency:   average(st.latencies),
			Requests:         st.requests,
			Failures:         st.failures,
			ThrottleCount429: st.count429,
			ThrottleCount403: st.count403,
			RetryAfter:       m.remainingLocked(st),
		}
	}
	return out
}

func average(latencies []time.Duration) time.Duration {
	if len(latencies) == 0 {
		return 0
	}
	var total time.Duration
	for _, l := range latencies {
		total += l
	}
	return total / time.Duration(len(latencies))
}
