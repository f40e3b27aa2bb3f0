// Package models provides data model definitions for the dispatch driver core.
package models

import "time"

// CachedAssignment is a read-only local mirror of a remote scheduling
// assignment. Like CachedJob, the collection is replaced wholesale on each
// refresh.
type CachedAssignment struct {
	ID         string `db:"id" json:"id"`
	JobID      string `db:"job_id" json:"job_id"` // weak reference, no ownership
	DriverID   string `db:"driver_id" json:"driver_id"`
	DriverName string `db:"driver_name" json:"driver_name"`
	SlotDate   string `db:"slot_date" json:"slot_date"`
	SlotWindow string `db:"slot_window" json:"slot_window"`
	CachedAt   int64  `db:"cached_at" json:"cached_at"`
}

// TableName returns the table name for CachedAssignment.
func (CachedAssignment) TableName() string {
	return "cached_assignments"
}

// CachedAtTime returns CachedAt as time.Time.
func (a *CachedAssignment) CachedAtTime() time.Time {
	return time.Unix(a.CachedAt, 0)
}
