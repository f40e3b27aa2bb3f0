// Package outbox provides the durable queue of not-yet-acknowledged
// submissions, drained opportunistically when connectivity allows.
package outbox

import (
	"github.com/routeleaf/dispatch/backend/internal/db"
	"github.com/routeleaf/dispatch/backend/internal/logging"
	"github.com/routeleaf/dispatch/backend/internal/models"
)

// Outbox wraps the durable store's outbox collection. Items are retried on
// every sync pass until the remote store acknowledges them; there is no
// backoff schedule and no retry cap. retry_count is persisted so a cutoff
// can be added later without a schema change.
type Outbox struct {
	repo *db.Repository
}

// New creates an Outbox over the repository.
func New(repo *db.Repository) *Outbox {
	return &Outbox{repo: repo}
}

// EnqueuePOD durably stores a proof-of-delivery submission and returns the
// stored item with its assigned queue id.
func (o *Outbox) EnqueuePOD(jobID string, payload *models.PODUploadPayload) (*models.OutboxItem, error) {
	item, err := models.NewPODUpload(jobID, payload)
	if err != nil {
		return nil, err
	}
	if err := o.repo.CreateOutboxItem(item); err != nil {
		return nil, err
	}

	logging.Info("outbox item enqueued", map[string]interface{}{
		"queue_id": item.QueueID,
		"job_id":   item.JobID,
		"type":     string(item.Type),
		"photos":   len(payload.Photos),
	})
	return item, nil
}

// Pending returns every queued item in enqueue order.
func (o *Outbox) Pending() ([]*models.OutboxItem, error) {
	return o.repo.ListOutbox()
}

// PendingForJob returns the queued items referencing one job.
func (o *Outbox) PendingForJob(jobID string) ([]*models.OutboxItem, error) {
	return o.repo.ListOutboxByJob(jobID)
}

// Complete removes an item after the remote store confirmed the
// corresponding job update.
func (o *Outbox) Complete(queueID int64) error {
	if err := o.repo.DeleteOutboxItem(queueID); err != nil {
		return err
	}
	logging.Info("outbox item completed", map[string]interface{}{"queue_id": queueID})
	return nil
}

// Fail records a failed drain attempt. The item stays queued with its retry
// counter bumped.
func (o *Outbox) Fail(queueID int64, cause error) error {
	if err := o.repo.IncrementRetry(queueID); err != nil {
		return err
	}
	logging.Warn("outbox item failed, will retry", map[string]interface{}{
		"queue_id": queueID,
		"cause":    cause.Error(),
	})
	return nil
}

// Count returns the number of pending items, surfaced to the UI as the
// pending-upload badge.
func (o *Outbox) Count() (int, error) {
	return o.repo.CountOutbox()
}
