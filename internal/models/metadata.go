// Package models provides data model definitions for the dispatch driver core.
package models

// Metadata keys stored in the sync_metadata collection.
const (
	// MetaLastSync is the timestamp of the last successful cache refresh,
	// stored as Unix seconds in decimal form.
	MetaLastSync = "last_sync"
)

// SyncMetadata is a single key/value record in the metadata collection.
type SyncMetadata struct {
	Key   string `db:"key" json:"key"`
	Value string `db:"value" json:"value"`
}

// TableName returns the table name for SyncMetadata.
func (SyncMetadata) TableName() string {
	return "sync_metadata"
}
