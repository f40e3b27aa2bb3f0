// Package pod implements the driver-facing delivery completion submission.
package pod

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/routeleaf/dispatch/backend/internal/connectivity"
	"github.com/routeleaf/dispatch/backend/internal/db"
	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
	"github.com/routeleaf/dispatch/backend/internal/logging"
	"github.com/routeleaf/dispatch/backend/internal/media"
	"github.com/routeleaf/dispatch/backend/internal/models"
	"github.com/routeleaf/dispatch/backend/internal/outbox"
	syncpkg "github.com/routeleaf/dispatch/backend/internal/sync"
)

// MaxPhotos is the per-submission photo bound, enforced before any
// processing.
const MaxPhotos = 20

// Photo is a captured delivery photo as handed over by the UI shell.
type Photo struct {
	FileName string
	Data     []byte
}

// FileWarning records a per-file problem that did not abort the submission.
type FileWarning struct {
	FileName string              `json:"file_name"`
	Code     apperrors.ErrorCode `json:"code"`
	Reason   string              `json:"reason"`
}

// SubmitResult is the single summary outcome of one submission.
type SubmitResult struct {
	JobID        string        `json:"job_id"`
	SavedOffline bool          `json:"saved_offline"`
	QueueID      int64         `json:"queue_id,omitempty"`
	Attempted    int           `json:"attempted"`
	Uploaded     int           `json:"uploaded"`
	Warnings     []FileWarning `json:"warnings,omitempty"`
	Message      string        `json:"message"`
}

// Service orchestrates delivery-completion submissions. All dependencies
// are injected; UI layers bind to an instance, never a package singleton.
type Service struct {
	compressor *media.Compressor
	queue      *outbox.Outbox
	repo       *db.Repository
	monitor    *connectivity.Monitor
	files      syncpkg.FileStorage
	jobs       syncpkg.JobStore
	notifier   syncpkg.Notifier
}

// NewService creates a submission service.
func NewService(compressor *media.Compressor, queue *outbox.Outbox, repo *db.Repository,
	monitor *connectivity.Monitor, files syncpkg.FileStorage, jobs syncpkg.JobStore,
	notifier syncpkg.Notifier) *Service {
	return &Service{
		compressor: compressor,
		queue:      queue,
		repo:       repo,
		monitor:    monitor,
		files:      files,
		jobs:       jobs,
		notifier:   notifier,
	}
}

// SubmitPOD completes a delivery with 1-20 photos and optional notes.
//
// Offline, the prepared payload is durably queued and the call reports
// "saved offline"; the data is safe locally, not yet at the server. Online,
// photos upload independently; partial success updates the job with
// whatever succeeded and surfaces the rest as warnings.
//
// Known gap: if the durable store write fails while the device is also
// offline, the submission is lost and the storage error is returned.
func (s *Service) SubmitPOD(ctx context.Context, jobID string, photos []Photo, notes string) (*SubmitResult, error) {
	if len(photos) == 0 {
		return nil, apperrors.New(apperrors.ErrNoPhotos, "at least one photo is required")
	}
	if len(photos) > MaxPhotos {
		return nil, apperrors.New(apperrors.ErrTooManyPhotos,
			fmt.Sprintf("%d photos exceeds the limit of %d", len(photos), MaxPhotos))
	}

	job, err := s.repo.GetJob(jobID)
	if err != nil {
		return nil, err
	}

	var warnings []FileWarning
	var accepted []Photo
	for _, photo := range photos {
		switch {
		case !media.IsImage(photo.Data):
			warnings = append(warnings, FileWarning{
				FileName: photo.FileName,
				Code:     apperrors.ErrUnsupportedFile,
				Reason:   "not a supported image type",
			})
		case len(photo.Data) > media.MaxSourceBytes:
			warnings = append(warnings, FileWarning{
				FileName: photo.FileName,
				Code:     apperrors.ErrFileTooLarge,
				Reason:   "file exceeds the 10 MiB bound",
			})
		default:
			accepted = append(accepted, photo)
		}
	}
	if len(accepted) == 0 {
		err := apperrors.New(apperrors.ErrUnsupportedFile, "no usable photos in submission")
		return &SubmitResult{JobID: jobID, Warnings: warnings, Message: "no usable photos"}, err
	}

	encoded := s.prepare(ctx, accepted)

	if s.monitor != nil && !s.monitor.IsOnline() {
		return s.submitOffline(jobID, job, encoded, notes, warnings)
	}
	return s.submitOnline(ctx, jobID, job, encoded, notes, warnings)
}

// PendingUploads returns the outbox depth for the UI badge.
func (s *Service) PendingUploads() (int, error) {
	return s.queue.Count()
}

// prepare compresses every accepted photo. A compression failure falls back
// to the original bytes; it never drops the photo or aborts the submission.
func (s *Service) prepare(ctx context.Context, photos []Photo) []models.EncodedPhoto {
	encoded := make([]models.EncodedPhoto, 0, len(photos))
	for _, photo := range photos {
		res, err := s.compressor.Compress(ctx, photo.Data)
		if err != nil {
			logging.ErrorWithCode("compression failed, using original", string(apperrors.CodeOf(err)), err,
				map[string]interface{}{"file": photo.FileName})
			encoded = append(encoded, models.EncodedPhoto{
				FileName: uniqueName(photo.FileName, false),
				MimeType: media.SniffMime(photo.Data),
				Data:     photo.Data,
				Size:     len(photo.Data),
			})
			continue
		}
		encoded = append(encoded, models.EncodedPhoto{
			FileName: uniqueName(photo.FileName, true),
			MimeType: "image/jpeg",
			Data:     res.Data,
			Size:     len(res.Data),
		})
	}
	return encoded
}

// submitOffline writes one outbox item carrying the prepared payload and the
// job context snapshot, and reports success immediately.
func (s *Service) submitOffline(jobID string, job *models.CachedJob, photos []models.EncodedPhoto,
	notes string, warnings []FileWarning) (*SubmitResult, error) {

	payload := &models.PODUploadPayload{
		Photos: photos,
		Notes:  notes,
		Job:    job.Snapshot(),
	}
	item, err := s.queue.EnqueuePOD(jobID, payload)
	if err != nil {
		return nil, err
	}

	return &SubmitResult{
		JobID:        jobID,
		SavedOffline: true,
		QueueID:      item.QueueID,
		Attempted:    len(photos),
		Warnings:     warnings,
		Message:      fmt.Sprintf("saved offline, %d photos will upload when connectivity returns", len(photos)),
	}, nil
}

// submitOnline uploads photos independently, then updates the job once with
// everything that succeeded. If nothing succeeded the job is left untouched.
func (s *Service) submitOnline(ctx context.Context, jobID string, job *models.CachedJob,
	photos []models.EncodedPhoto, notes string, warnings []FileWarning) (*SubmitResult, error) {

	var urls []string
	for _, photo := range photos {
		url, err := s.files.Upload(ctx, photo.FileName, photo.MimeType, photo.Data)
		if err != nil {
			logging.ErrorWithCode("photo upload failed", string(apperrors.ErrUploadFailed), err,
				map[string]interface{}{"file": photo.FileName, "job_id": jobID})
			warnings = append(warnings, FileWarning{
				FileName: photo.FileName,
				Code:     apperrors.ErrUploadFailed,
				Reason:   err.Error(),
			})
			continue
		}
		urls = append(urls, url)
	}

	if len(urls) == 0 {
		err := apperrors.New(apperrors.ErrAllUploadsFailed, "every photo upload failed, job left unchanged")
		return &SubmitResult{
			JobID:     jobID,
			Attempted: len(photos),
			Warnings:  warnings,
			Message:   "all uploads failed",
		}, err
	}

	update := &models.JobUpdate{
		PODFiles: append(job.Snapshot().PODFiles, urls...),
		Notes:    notes,
		Status:   models.JobStatusDelivered,
	}
	if err := s.jobs.UpdateJob(ctx, jobID, update); err != nil {
		return nil, err
	}

	if notes != "" && s.notifier != nil {
		if err := s.notifier.Invoke(ctx, syncpkg.NotifyPODNotes, map[string]interface{}{
			"job_id":        jobID,
			"notes":         notes,
			"customer_name": job.CustomerName,
			"driver_name":   job.DriverName,
		}); err != nil {
			logging.ErrorWithCode("notes notification failed", string(apperrors.ErrNotifyFailed), err,
				map[string]interface{}{"job_id": jobID})
		}
	}

	return &SubmitResult{
		JobID:     jobID,
		Attempted: len(photos),
		Uploaded:  len(urls),
		Warnings:  warnings,
		Message:   fmt.Sprintf("%d of %d photos uploaded", len(urls), len(photos)),
	}, nil
}

// uniqueName builds a collision-free object name for upload.
func uniqueName(original string, compressed bool) string {
	ext := ".jpg"
	if !compressed {
		for i := len(original) - 1; i >= 0 && original[i] != '/'; i-- {
			if original[i] == '.' {
				ext = original[i:]
				break
			}
		}
	}
	return "pod-" + uuid.New().String() + ext
}
