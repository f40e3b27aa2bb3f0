// Package models provides data model definitions for the dispatch driver core.
package models

import "time"

// Job status values used by the driver-facing flow.
const (
	JobStatusScheduled = "scheduled"
	JobStatusInTransit = "in_transit"
	JobStatusDelivered = "delivered"
)

// CachedJob is a read-only local mirror of a remote job record.
// The collection is replaced wholesale on each successful cache refresh,
// never merged.
type CachedJob struct {
	ID              string   `db:"id" json:"id"`
	CustomerName    string   `db:"customer_name" json:"customer_name"`
	DeliveryAddress string   `db:"delivery_address" json:"delivery_address"`
	Status          string   `db:"status" json:"status"`
	ScheduledDate   string   `db:"scheduled_date" json:"scheduled_date"`
	DriverName      string   `db:"driver_name" json:"driver_name"`
	PODFiles        []string `json:"pod_files"` // stored as a JSON array column
	Notes           string   `db:"notes" json:"notes,omitempty"`
	CachedAt        int64    `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for CachedJob.
func (CachedJob) TableName() string {
	return "cached_jobs"
}

// CachedAtTime returns CachedAt as time.Time.
func (j *CachedJob) CachedAtTime() time.Time {
	return time.Unix(j.CachedAt, 0)
}

// Snapshot captures the job context an outbox item carries so a later sync
// pass can finish server-side work without re-fetching the job.
func (j *CachedJob) Snapshot() JobSnapshot {
	files := make([]string, len(j.PODFiles))
	copy(files, j.PODFiles)
	return JobSnapshot{
		CustomerName:    j.CustomerName,
		DeliveryAddress: j.DeliveryAddress,
		DriverName:      j.DriverName,
		PODFiles:        files,
	}
}

// JobUpdate is the partial field set sent to the remote job store when a
// delivery is completed.
type JobUpdate struct {
	PODFiles []string `json:"pod_files,omitempty"`
	Notes    string   `json:"notes,omitempty"`
	Status   string   `json:"status,omitempty"`
}
