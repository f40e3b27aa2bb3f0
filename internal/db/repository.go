// Package db provides repository operations over the dispatch collections.
package db

import (
	"database/sql"
	"encoding/json"
	"strconv"
	"time"

	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
	"github.com/routeleaf/dispatch/backend/internal/models"
)

// Repository provides typed operations over the four local collections:
// cached_jobs, cached_assignments, outbox, and sync_metadata.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a new Repository instance.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// =====================================================
// CachedJob Operations
// =====================================================

// ReplaceJobs replaces the entire job cache in one transaction. If any
// insert fails the old cache remains intact.
func (r *Repository) ReplaceJobs(jobs []*models.CachedJob) error {
	return WithTx(r.db, func(tx *sql.Tx) error {
		return replaceJobs(tx, jobs)
	})
}

func replaceJobs(tx *sql.Tx, jobs []*models.CachedJob) error {
	if _, err := tx.Exec(`DELETE FROM cached_jobs`); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to clear job cache", err)
	}

	now := time.Now().Unix()
	query := `
	INSERT INTO cached_jobs (id, customer_name, delivery_address, status, scheduled_date,
		driver_name, pod_files, notes, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, job := range jobs {
		files, err := encodeStringList(job.PODFiles)
		if err != nil {
			return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to encode pod files", err)
		}
		job.CachedAt = now
		if _, err := tx.Exec(query, job.ID, job.CustomerName, job.DeliveryAddress, job.Status,
			job.ScheduledDate, job.DriverName, files, job.Notes, job.CachedAt); err != nil {
			return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to insert cached job", err)
		}
	}
	return nil
}

// GetJob retrieves a cached job by its remote identifier.
func (r *Repository) GetJob(id string) (*models.CachedJob, error) {
	query := `
	SELECT id, customer_name, delivery_address, status, scheduled_date,
		   driver_name, pod_files, notes, cached_at
	FROM cached_jobs WHERE id = ?
	`
	var job models.CachedJob
	var files string
	err := r.db.QueryRow(query, id).Scan(
		&job.ID, &job.CustomerName, &job.DeliveryAddress, &job.Status,
		&job.ScheduledDate, &job.DriverName, &files, &job.Notes, &job.CachedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperrors.New(apperrors.ErrJobNotFound, "job not in local cache: "+id)
	}
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read cached job", err)
	}
	job.PODFiles, err = decodeStringList(files)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "corrupt pod_files column", err)
	}
	return &job, nil
}

// ListJobs returns the whole job cache ordered by scheduled date.
func (r *Repository) ListJobs() ([]*models.CachedJob, error) {
	query := `
	SELECT id, customer_name, delivery_address, status, scheduled_date,
		   driver_name, pod_files, notes, cached_at
	FROM cached_jobs ORDER BY scheduled_date, id
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to list cached jobs", err)
	}
	defer rows.Close()

	var jobs []*models.CachedJob
	for rows.Next() {
		var job models.CachedJob
		var files string
		if err := rows.Scan(&job.ID, &job.CustomerName, &job.DeliveryAddress, &job.Status,
			&job.ScheduledDate, &job.DriverName, &files, &job.Notes, &job.CachedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to scan cached job", err)
		}
		job.PODFiles, err = decodeStringList(files)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "corrupt pod_files column", err)
		}
		jobs = append(jobs, &job)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to iterate cached jobs", err)
	}
	return jobs, nil
}

// CountJobs returns the number of cached jobs.
func (r *Repository) CountJobs() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM cached_jobs`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to count cached jobs", err)
	}
	return n, nil
}

// =====================================================
// CachedAssignment Operations
// =====================================================

// ReplaceAssignments replaces the entire assignment cache in one transaction.
func (r *Repository) ReplaceAssignments(assignments []*models.CachedAssignment) error {
	return WithTx(r.db, func(tx *sql.Tx) error {
		return replaceAssignments(tx, assignments)
	})
}

func replaceAssignments(tx *sql.Tx, assignments []*models.CachedAssignment) error {
	if _, err := tx.Exec(`DELETE FROM cached_assignments`); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to clear assignment cache", err)
	}

	now := time.Now().Unix()
	query := `
	INSERT INTO cached_assignments (id, job_id, driver_id, driver_name, slot_date, slot_window, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, a := range assignments {
		a.CachedAt = now
		if _, err := tx.Exec(query, a.ID, a.JobID, a.DriverID, a.DriverName,
			a.SlotDate, a.SlotWindow, a.CachedAt); err != nil {
			return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to insert cached assignment", err)
		}
	}
	return nil
}

// ListAssignments returns the whole assignment cache ordered by slot date.
func (r *Repository) ListAssignments() ([]*models.CachedAssignment, error) {
	query := `
	SELECT id, job_id, driver_id, driver_name, slot_date, slot_window, cached_at
	FROM cached_assignments ORDER BY slot_date, id
	`
	rows, err := r.db.Query(query)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to list cached assignments", err)
	}
	defer rows.Close()

	var assignments []*models.CachedAssignment
	for rows.Next() {
		var a models.CachedAssignment
		if err := rows.Scan(&a.ID, &a.JobID, &a.DriverID, &a.DriverName,
			&a.SlotDate, &a.SlotWindow, &a.CachedAt); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to scan cached assignment", err)
		}
		assignments = append(assignments, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to iterate cached assignments", err)
	}
	return assignments, nil
}

// ReplaceCaches replaces both cache collections atomically and stamps the
// last-sync timestamp, all in one transaction.
func (r *Repository) ReplaceCaches(jobs []*models.CachedJob, assignments []*models.CachedAssignment) error {
	return WithTx(r.db, func(tx *sql.Tx) error {
		if err := replaceJobs(tx, jobs); err != nil {
			return err
		}
		if err := replaceAssignments(tx, assignments); err != nil {
			return err
		}
		return setMetadata(tx, models.MetaLastSync, strconv.FormatInt(time.Now().Unix(), 10))
	})
}

// =====================================================
// Outbox Operations
// =====================================================

// CreateOutboxItem inserts a new outbox item and assigns its QueueID.
func (r *Repository) CreateOutboxItem(item *models.OutboxItem) error {
	if item.Timestamp == 0 {
		item.Timestamp = time.Now().Unix()
	}
	query := `
	INSERT INTO outbox (job_id, type, payload, timestamp, retry_count)
	VALUES (?, ?, ?, ?, ?)
	`
	res, err := r.db.Exec(query, item.JobID, string(item.Type), string(item.Payload),
		item.Timestamp, item.RetryCount)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to insert outbox item", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read outbox id", err)
	}
	item.QueueID = id
	return nil
}

// ListOutbox returns all outbox items in enqueue order.
func (r *Repository) ListOutbox() ([]*models.OutboxItem, error) {
	return r.listOutbox(`SELECT queue_id, job_id, type, payload, timestamp, retry_count
		FROM outbox ORDER BY timestamp, queue_id`)
}

// ListOutboxByJob returns the outbox items referencing one job.
func (r *Repository) ListOutboxByJob(jobID string) ([]*models.OutboxItem, error) {
	return r.listOutbox(`SELECT queue_id, job_id, type, payload, timestamp, retry_count
		FROM outbox WHERE job_id = ? ORDER BY timestamp, queue_id`, jobID)
}

func (r *Repository) listOutbox(query string, args ...interface{}) ([]*models.OutboxItem, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to list outbox", err)
	}
	defer rows.Close()

	var items []*models.OutboxItem
	for rows.Next() {
		var item models.OutboxItem
		var typ, payload string
		if err := rows.Scan(&item.QueueID, &item.JobID, &typ, &payload,
			&item.Timestamp, &item.RetryCount); err != nil {
			return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to scan outbox item", err)
		}
		item.Type = models.PayloadType(typ)
		item.Payload = json.RawMessage(payload)
		items = append(items, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to iterate outbox", err)
	}
	return items, nil
}

// DeleteOutboxItem removes an item. Callers only do this after the remote
// job store has acknowledged the corresponding update.
func (r *Repository) DeleteOutboxItem(queueID int64) error {
	res, err := r.db.Exec(`DELETE FROM outbox WHERE queue_id = ?`, queueID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to delete outbox item", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "outbox item not found")
	}
	return nil
}

// IncrementRetry bumps an item's retry counter. The counter never resets
// except by removal.
func (r *Repository) IncrementRetry(queueID int64) error {
	res, err := r.db.Exec(`UPDATE outbox SET retry_count = retry_count + 1 WHERE queue_id = ?`, queueID)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to increment retry count", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return apperrors.New(apperrors.ErrNotFound, "outbox item not found")
	}
	return nil
}

// CountOutbox returns the number of pending outbox items.
func (r *Repository) CountOutbox() (int, error) {
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to count outbox", err)
	}
	return n, nil
}

// =====================================================
// Metadata Operations
// =====================================================

// SetLastSync records the time of the last successful cache refresh.
func (r *Repository) SetLastSync(t time.Time) error {
	return WithTx(r.db, func(tx *sql.Tx) error {
		return setMetadata(tx, models.MetaLastSync, strconv.FormatInt(t.Unix(), 10))
	})
}

// LastSync returns the last cache refresh time. ok is false before the
// first refresh.
func (r *Repository) LastSync() (t time.Time, ok bool, err error) {
	var value string
	err = r.db.QueryRow(`SELECT value FROM sync_metadata WHERE key = ?`, models.MetaLastSync).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to read last sync", err)
	}
	secs, perr := strconv.ParseInt(value, 10, 64)
	if perr != nil {
		return time.Time{}, false, apperrors.Wrap(apperrors.ErrStorageUnavailable, "corrupt last_sync value", perr)
	}
	return time.Unix(secs, 0), true, nil
}

func setMetadata(tx *sql.Tx, key, value string) error {
	query := `
	INSERT INTO sync_metadata (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := tx.Exec(query, key, value); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to write metadata", err)
	}
	return nil
}

// =====================================================
// Column helpers
// =====================================================

func encodeStringList(list []string) (string, error) {
	if list == nil {
		list = []string{}
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeStringList(data string) ([]string, error) {
	if data == "" {
		return []string{}, nil
	}
	var list []string
	if err := json.Unmarshal([]byte(data), &list); err != nil {
		return nil, err
	}
	return list, nil
}
