// Package jobs runs deferred flatten and related-set tasks from a database-backed queue.
package jobs

import "time"

// Task names accepted by the queue.
const (
	TaskFlattenVariant   = "flattenVariant"
	TaskRecomputeRelated = "recomputeRelated"
)

// Job states.
const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Job is one unit of deferred work keyed by source variant id.
type Job struct {
	ID        string    `gorm:"column:id;primaryKey;size:64" json:"id"`
	Task      string    `gorm:"column:task;size:64;not null;index:idx_jobs_task_variant_status,priority:1" json:"task"`
	VariantID string    `gorm:"column:variant_id;size:64;not null;index:idx_jobs_task_variant_status,priority:2" json:"variantId"`
	Status    string    `gorm:"column:status;size:16;not null;index:idx_jobs_task_variant_status,priority:3;index:idx_jobs_status_run_after,priority:1" json:"status"`
	Attempts  int       `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LastError string    `gorm:"column:last_error;type:text" json:"lastError,omitempty"`
	RunAfter  time.Time `gorm:"column:run_after;not null;index:idx_jobs_status_run_after,priority:2" json:"runAfter"`
	CreatedAt time.Time `gorm:"column:created_at;not null" json:"createdAt"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null" json:"updatedAt"`
}

// TableName provides the explicit table binding for GORM.
func (Job) TableName() string {
	return "jobs"
}

// Models lists the queue tables for schema migration.
func Models() []any {
	return []any{&Job{}}
}
