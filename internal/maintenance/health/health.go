// Package health provides system health monitoring and status reporting.
package health

import "time"

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
	StatusDisabled SystemStatus = "disabled"
)

// worse returns the more severe of a and b. Disabled never raises severity.
func worse(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusDisabled: 0, StatusHealthy: 1, StatusDegraded: 2, StatusCritical: 3}
	if rank[b] > rank[a] {
		return b
	}
	return a
}

// TaskHealth describes a maintenance task.
type TaskHealth struct {
	Task       string       `json:"task"`
	Status     SystemStatus `json:"status"`
	Running    bool         `json:"running"`
	Progress   float64      `json:"progress"`
	LastStatus string       `json:"last_status,omitempty"`
	LastRunAt  *time.Time   `json:"last_run_at,omitempty"`
	LastFailed int          `json:"last_failed"`
}

// EndpointHealth describes one configured endpoint of an integration.
type EndpointHealth struct {
	Status         string        `json:"status"`
	AverageLatency time.Duration `json:"average_latency"`
	Throttle429    int           `json:"throttle_429"`
	Throttle403    int           `json:"throttle_403"`
}

// IntegrationHealth describes an external service integration.
type IntegrationHealth struct {
	Name      string                    `json:"name"`
	Status    SystemStatus              `json:"status"`
	Connected bool                      `json:"connected"`
	ServerURL string                    `json:"server_url,omitempty"`
	Endpoints map[string]EndpointHealth `json:"endpoints,omitempty"`
}

// QuotaHealth reports provider quota windows.
type QuotaHealth struct {
	Status              SystemStatus `json:"status"`
	ImageLimitActive    bool         `json:"image_limit_active"`
	ImageLimitResetsAt  *time.Time   `json:"image_limit_resets_at,omitempty"`
	MetadataLimitActive bool         `json:"metadata_limit_active"`
	LockedOutUntil      *time.Time   `json:"locked_out_until,omitempty"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                 `json:"system_status"`
	Tasks        map[string]TaskHealth        `json:"tasks"`
	Integrations map[string]IntegrationHealth `json:"integrations"`
	Quota        QuotaHealth                  `json:"quota"`
	Dependencies map[string]SystemStatus      `json:"dependencies"`
	CheckedAt    time.Time                    `json:"checked_at"`
}
