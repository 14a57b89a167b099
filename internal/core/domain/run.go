package domain

import "time"

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusCancelled RunStatus = "cancelled"
	RunStatusAborted   RunStatus = "aborted"
)

// Terminal reports whether the run has finished in any way.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusCancelled || s == RunStatusAborted
}

// Run is the persisted record of one maintenance pass.
type Run struct {
	ID         string     `json:"id"          db:"id"`
	Task       string     `json:"task"        db:"task"`
	Status     RunStatus  `json:"status"      db:"status"`
	Total      int        `json:"total"       db:"total"`
	Processed  int        `json:"processed"   db:"processed"`
	Failed     int        `json:"failed"      db:"failed"`
	Skipped    int        `json:"skipped"     db:"skipped"`
	Progress   float64    `json:"progress"    db:"progress"`
	Error      string     `json:"error,omitempty" db:"error_msg"`
	StartedAt  time.Time  `json:"started_at"  db:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty" db:"finished_at"`
}
