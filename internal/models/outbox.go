// Package models provides data model definitions for the dispatch driver core.
package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// PayloadType discriminates outbox item payloads. Only one variant exists
// today; the tag keeps the queue open to new operation kinds.
type PayloadType string

const (
	// PayloadPODUpload is a queued proof-of-delivery submission.
	PayloadPODUpload PayloadType = "POD_UPLOAD"
)

// EncodedPhoto is a compressed, transmission-ready delivery photo. Data is
// bounded by the compression pipeline; the unbounded original is never
// stored.
type EncodedPhoto struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
	Size     int    `json:"size"`
}

// JobSnapshot is the job context frozen into an outbox item at enqueue time
// so the sync pass does not need to re-fetch the job before acting.
type JobSnapshot struct {
	CustomerName    string   `json:"customer_name"`
	DeliveryAddress string   `json:"delivery_address"`
	DriverName      string   `json:"driver_name"`
	PODFiles        []string `json:"pod_files"` // existing POD list to append to
}

// PODUploadPayload is the data carried by a POD_UPLOAD outbox item.
type PODUploadPayload struct {
	Photos []EncodedPhoto `json:"photos"`
	Notes  string         `json:"notes,omitempty"`
	Job    JobSnapshot    `json:"job"`
}

// OutboxItem is the unit of durable work. An item is removed only after the
// remote job store confirms the corresponding update; retry_count only ever
// grows until then.
type OutboxItem struct {
	QueueID    int64           `db:"queue_id" json:"queue_id"`
	JobID      string          `db:"job_id" json:"job_id"`
	Type       PayloadType     `db:"type" json:"type"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	Timestamp  int64           `db:"timestamp" json:"timestamp"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
}

// TableName returns the table name for OutboxItem.
func (OutboxItem) TableName() string {
	return "outbox"
}

// Time returns the enqueue timestamp as time.Time.
func (i *OutboxItem) Time() time.Time {
	return time.Unix(i.Timestamp, 0)
}

// NewPODUpload builds a POD_UPLOAD outbox item from a payload. QueueID is
// assigned by the store on insert.
func NewPODUpload(jobID string, payload *PODUploadPayload) (*OutboxItem, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal POD payload: %w", err)
	}
	return &OutboxItem{
		JobID:     jobID,
		Type:      PayloadPODUpload,
		Payload:   data,
		Timestamp: time.Now().Unix(),
	}, nil
}

// PODPayload decodes the payload of a POD_UPLOAD item.
func (i *OutboxItem) PODPayload() (*PODUploadPayload, error) {
	if i.Type != PayloadPODUpload {
		return nil, fmt.Errorf("item %d is %s, not %s", i.QueueID, i.Type, PayloadPODUpload)
	}
	var p PODUploadPayload
	if err := json.Unmarshal(i.Payload, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal POD payload: %w", err)
	}
	return &p, nil
}
