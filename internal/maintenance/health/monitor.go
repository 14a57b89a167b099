package health

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/librarian/internal/core/domain"
	"github.com/vietddude/librarian/internal/infra/gateway"
	"github.com/vietddude/librarian/internal/infra/quota"
	"github.com/vietddude/librarian/internal/maintenance/batch"
)

const checkInterval = 10 * time.Second

// TaskSource exposes the state of a maintenance task.
type TaskSource interface {
	Task() string
	Status() batch.Status
}

// Integration is an external service whose reachability is reported.
type Integration struct {
	Name     string
	Enabled  bool
	URLs     []string
	Selector gateway.EndpointSelector
	Monitor  *gateway.Monitor
}

// Pinger checks a backing dependency such as the database.
type Pinger func(ctx context.Context) error

// Monitor aggregates health status from various system components.
type Monitor struct {
	tasks        []TaskSource
	integrations []Integration
	quota        *quota.State
	deps         map[string]Pinger

	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
	log        *slog.Logger
}

// NewMonitor creates a new health monitor. quotaState may be nil.
func NewMonitor(tasks []TaskSource, integrations []Integration, quotaState *quota.State) *Monitor {
	return &Monitor{
		tasks:        tasks,
		integrations: integrations,
		quota:        quotaState,
		deps:         make(map[string]Pinger),
		log:          slog.Default().With("component", "health"),
	}
}

// AddDependency registers a named dependency check.
func (m *Monitor) AddDependency(name string, ping Pinger) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deps[name] = ping
}

// CheckHealth builds a report. Results are reused for a short interval so
// frequent polling does not probe providers on every request.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < checkInterval {
		return *m.lastReport
	}

	report := HealthReport{
		SystemStatus: StatusHealthy,
		Tasks:        make(map[string]TaskHealth),
		Integrations: make(map[string]IntegrationHealth),
		Dependencies: make(map[string]SystemStatus),
		CheckedAt:    time.Now().UTC(),
	}

	for _, t := range m.tasks {
		th := taskHealth(t.Task(), t.Status())
		report.Tasks[th.Task] = th
		report.SystemStatus = worse(report.SystemStatus, th.Status)
	}

	for _, in := range m.integrations {
		ih := m.integrationHealth(ctx, in)
		report.Integrations[in.Name] = ih
		report.SystemStatus = worse(report.SystemStatus, ih.Status)
	}

	report.Quota = m.quotaHealth()
	report.SystemStatus = worse(report.SystemStatus, report.Quota.Status)

	for name, ping := range m.deps {
		status := StatusHealthy
		if err := ping(ctx); err != nil {
			m.log.Warn("Dependency check failed", "dependency", name, "error", err)
			status = StatusCritical
		}
		report.Dependencies[name] = status
		report.SystemStatus = worse(report.SystemStatus, status)
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

func taskHealth(task string, st batch.Status) TaskHealth {
	th := TaskHealth{
		Task:     task,
		Status:   StatusHealthy,
		Running:  st.Running,
		Progress: st.Progress,
	}
	if st.Last != nil {
		th.LastStatus = string(st.Last.Status)
		th.LastRunAt = st.Last.FinishedAt
		th.LastFailed = st.Last.Failed
		if st.Last.Status == domain.RunStatusAborted {
			th.Status = StatusDegraded
		}
	}
	return th
}

func (m *Monitor) integrationHealth(ctx context.Context, in Integration) IntegrationHealth {
	ih := IntegrationHealth{Name: in.Name, Status: StatusDisabled}
	if !in.Enabled || in.Selector == nil {
		return ih
	}

	url, ok := in.Selector.SelectWorking(ctx, in.URLs)
	ih.Connected = ok
	ih.ServerURL = url
	ih.Status = StatusHealthy
	if !ok {
		ih.Status = StatusDegraded
	}

	if in.Monitor != nil {
		ih.Endpoints = make(map[string]EndpointHealth)
		for endpoint, stats := range in.Monitor.Snapshot() {
			ih.Endpoints[endpoint] = EndpointHealth{
				Status:         stats.Status,
				AverageLatency: stats.AverageLatency,
				Throttle429:    stats.ThrottleCount429,
				Throttle403:    stats.ThrottleCount403,
			}
			if stats.Status == gateway.StatusBlocked.String() {
				ih.Status = worse(ih.Status, StatusDegraded)
			}
		}
	}
	return ih
}

func (m *Monitor) quotaHealth() QuotaHealth {
	qh := QuotaHealth{Status: StatusHealthy}
	if m.quota == nil {
		return qh
	}

	if m.quota.IsImageDailyLimitActive() {
		qh.ImageLimitActive = true
		if resets := m.quota.ImageLimitResetsAt(); !resets.IsZero() {
			qh.ImageLimitResetsAt = &resets
		}
		qh.Status = StatusDegraded
	}
	if m.quota.IsMetadataDailyLimitActive() {
		qh.MetadataLimitActive = true
		qh.Status = StatusDegraded
	}
	if until := m.quota.LockedOutUntil(); !until.IsZero() {
		qh.LockedOutUntil = &until
		qh.Status = StatusDegraded
	}
	return qh
}
