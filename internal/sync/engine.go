// Package sync drains the outbox against the remote collaborators when
// connectivity is available.
package sync

import (
	"context"
	stdsync "sync"
	"time"

	"github.com/routeleaf/dispatch/backend/internal/connectivity"
	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
	"github.com/routeleaf/dispatch/backend/internal/logging"
	"github.com/routeleaf/dispatch/backend/internal/models"
	"github.com/routeleaf/dispatch/backend/internal/outbox"
)

// FileStorage is the remote file-storage collaborator.
type FileStorage interface {
	// Upload stores fileBytes and returns the public URL.
	Upload(ctx context.Context, fileName, mimeType string, data []byte) (string, error)
}

// JobStore is the remote job-store collaborator.
type JobStore interface {
	// UpdateJob applies a partial field update to a job.
	UpdateJob(ctx context.Context, jobID string, update *models.JobUpdate) error
}

// Notifier is the best-effort notification dispatcher. Errors are logged
// and never propagated.
type Notifier interface {
	Invoke(ctx context.Context, name string, payload map[string]interface{}) error
}

// NotifyPODNotes is the dispatcher function invoked when a completed
// delivery carries driver notes.
const NotifyPODNotes = "pod-notes-notification"

// Event is a sync lifecycle notification for the UI layer.
type Event struct {
	Type      string
	Data      map[string]interface{}
	Timestamp int64
}

// Event types emitted by the engine.
const (
	EventSyncStarted   = "sync.started"
	EventSyncCompleted = "sync.completed"
	EventItemSynced    = "sync.item_synced"
	EventItemFailed    = "sync.item_failed"
)

// EventHandler receives engine events. Handlers must not block.
type EventHandler interface {
	OnSyncEvent(event Event)
}

// Result is the aggregate outcome of one drain pass.
type Result struct {
	Synced    int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
}

// Engine owns the mutual-exclusion discipline for draining the outbox.
// Only one drain pass runs at a time; a second trigger while one is running
// is dropped, not queued; the next trigger picks up whatever remains.
type Engine struct {
	queue    *outbox.Outbox
	files    FileStorage
	jobs     JobStore
	notifier Notifier
	monitor  *connectivity.Monitor

	mu      stdsync.Mutex
	syncing bool
	handler EventHandler
}

// NewEngine creates a sync engine over the outbox and remote collaborators.
func NewEngine(queue *outbox.Outbox, files FileStorage, jobs JobStore, notifier Notifier, monitor *connectivity.Monitor) *Engine {
	return &Engine{
		queue:    queue,
		files:    files,
		jobs:     jobs,
		notifier: notifier,
		monitor:  monitor,
	}
}

// SetEventHandler sets the handler for sync lifecycle events.
func (e *Engine) SetEventHandler(handler EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = handler
}

// IsSyncing reports whether a drain pass is currently running.
func (e *Engine) IsSyncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncing
}

// SyncPendingUploads drains the outbox. It is a no-op returning (nil, nil)
// when a pass is already in progress or connectivity is down. Per-item
// failures bump the item's retry counter and do not stop the pass; the
// aggregate result is reported once at the end.
func (e *Engine) SyncPendingUploads(ctx context.Context) (*Result, error) {
	e.mu.Lock()
	if e.syncing {
		e.mu.Unlock()
		logging.Debug("sync already in progress, skipping")
		return nil, nil
	}
	e.syncing = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.syncing = false
		e.mu.Unlock()
	}()

	if e.monitor != nil && !e.monitor.IsOnline() {
		logging.Debug("sync skipped, device is offline")
		return nil, nil
	}

	items, err := e.queue.Pending()
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return &Result{StartTime: time.Now(), EndTime: time.Now()}, nil
	}

	result := &Result{StartTime: time.Now()}
	e.emit(EventSyncStarted, map[string]interface{}{"pending": len(items)})

	for _, item := range items {
		select {
		case <-ctx.Done():
			result.EndTime = time.Now()
			return result, ctx.Err()
		default:
		}

		if err := e.handleItem(ctx, item); err != nil {
			result.Failed++
			if ferr := e.queue.Fail(item.QueueID, err); ferr != nil {
				logging.Error("failed to record retry", ferr,
					map[string]interface{}{"queue_id": item.QueueID})
			}
			e.emit(EventItemFailed, map[string]interface{}{
				"queue_id": item.QueueID,
				"job_id":   item.JobID,
				"error":    err.Error(),
			})
			continue
		}

		if err := e.queue.Complete(item.QueueID); err != nil {
			// The remote update succeeded but the local removal did not; the
			// item will be resubmitted on the next pass (at-least-once).
			logging.Error("failed to remove acknowledged item", err,
				map[string]interface{}{"queue_id": item.QueueID})
			result.Failed++
			continue
		}
		result.Synced++
		e.emit(EventItemSynced, map[string]interface{}{
			"queue_id": item.QueueID,
			"job_id":   item.JobID,
		})
	}

	result.EndTime = time.Now()
	logging.Info("sync complete", map[string]interface{}{
		"synced": result.Synced,
		"failed": result.Failed,
	})
	e.emit(EventSyncCompleted, map[string]interface{}{
		"synced": result.Synced,
		"failed": result.Failed,
	})
	return result, nil
}

// handleItem dispatches an item to its type-specific handler.
func (e *Engine) handleItem(ctx context.Context, item *models.OutboxItem) error {
	switch item.Type {
	case models.PayloadPODUpload:
		return e.handlePODUpload(ctx, item)
	default:
		return apperrors.New(apperrors.ErrSyncItemFailed, "unknown outbox item type: "+string(item.Type))
	}
}

// handlePODUpload uploads the item's photos, then updates the job with the
// resulting URLs appended to the snapshot's existing POD list. The item's
// payload was compressed at enqueue time; nothing is re-compressed here.
func (e *Engine) handlePODUpload(ctx context.Context, item *models.OutboxItem) error {
	payload, err := item.PODPayload()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrSyncItemFailed, "corrupt outbox payload", err)
	}

	urls := make([]string, 0, len(payload.Photos))
	for _, photo := range payload.Photos {
		url, err := e.files.Upload(ctx, photo.FileName, photo.MimeType, photo.Data)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrUploadFailed, "failed to upload "+photo.FileName, err)
		}
		urls = append(urls, url)
	}

	update := &models.JobUpdate{
		PODFiles: append(payload.Job.PODFiles, urls...),
		Notes:    payload.Notes,
		Status:   models.JobStatusDelivered,
	}
	if err := e.jobs.UpdateJob(ctx, item.JobID, update); err != nil {
		return apperrors.Wrap(apperrors.ErrJobUpdateFailed, "failed to update job "+item.JobID, err)
	}

	// Fire-and-forget: a notification failure never rolls back or retries
	// the job update.
	if payload.Notes != "" && e.notifier != nil {
		if err := e.notifier.Invoke(ctx, NotifyPODNotes, map[string]interface{}{
			"job_id":        item.JobID,
			"notes":         payload.Notes,
			"customer_name": payload.Job.CustomerName,
			"driver_name":   payload.Job.DriverName,
		}); err != nil {
			logging.ErrorWithCode("notes notification failed", string(apperrors.ErrNotifyFailed), err,
				map[string]interface{}{"job_id": item.JobID})
		}
	}

	return nil
}

func (e *Engine) emit(eventType string, data map[string]interface{}) {
	e.mu.Lock()
	handler := e.handler
	e.mu.Unlock()
	if handler == nil {
		return
	}
	handler.OnSyncEvent(Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().Unix(),
	})
}
