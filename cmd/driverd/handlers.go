// Package main provides the local HTTP API consumed by the driver UI shell.
package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/routeleaf/dispatch/backend/internal/cache"
	"github.com/routeleaf/dispatch/backend/internal/db"
	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
	"github.com/routeleaf/dispatch/backend/internal/logging"
	"github.com/routeleaf/dispatch/backend/internal/pod"
)

// maxSubmissionBytes bounds one whole multipart submission body.
const maxSubmissionBytes = 256 << 20

// API binds the driver core services to local HTTP routes.
type API struct {
	service   *pod.Service
	repo      *db.Repository
	refresher *cache.Refresher
	hub       *WSHub
}

// NewAPI creates the local HTTP API.
func NewAPI(service *pod.Service, repo *db.Repository, refresher *cache.Refresher, hub *WSHub) *API {
	return &API{service: service, repo: repo, refresher: refresher, hub: hub}
}

// Register mounts the API routes on mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/jobs", a.handleListJobs)
	mux.HandleFunc("GET /api/jobs/{id}", a.handleGetJob)
	mux.HandleFunc("POST /api/jobs/{id}/pod", a.handleSubmitPOD)
	mux.HandleFunc("GET /api/assignments", a.handleListAssignments)
	mux.HandleFunc("GET /api/outbox/count", a.handleOutboxCount)
	mux.HandleFunc("POST /api/refresh", a.handleRefresh)
}

func (a *API) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.repo.ListJobs()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func (a *API) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, err := a.repo.GetJob(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (a *API) handleListAssignments(w http.ResponseWriter, r *http.Request) {
	assignments, err := a.repo.ListAssignments()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, assignments)
}

// handleSubmitPOD accepts a multipart form with one or more "photo" file
// parts and an optional "notes" field, and completes the delivery.
func (a *API) handleSubmitPOD(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")

	r.Body = http.MaxBytesReader(w, r.Body, maxSubmissionBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "failed to parse submission form", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	var photos []pod.Photo
	for _, header := range r.MultipartForm.File["photo"] {
		file, err := header.Open()
		if err != nil {
			writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "failed to open photo part", err))
			return
		}
		data, err := io.ReadAll(file)
		file.Close()
		if err != nil {
			writeError(w, apperrors.Wrap(apperrors.ErrInvalid, "failed to read photo part", err))
			return
		}
		photos = append(photos, pod.Photo{FileName: header.Filename, Data: data})
	}
	notes := r.FormValue("notes")

	result, err := a.service.SubmitPOD(r.Context(), jobID, photos, notes)
	if err != nil {
		// A rejected submission may still carry warnings worth returning
		if result != nil {
			writeJSON(w, statusFor(apperrors.CodeOf(err)), result)
			return
		}
		writeError(w, err)
		return
	}

	if result.SavedOffline {
		a.hub.Broadcast(EventPODSavedOffline, map[string]interface{}{
			"job_id":   result.JobID,
			"queue_id": result.QueueID,
			"photos":   result.Attempted,
		})
	} else {
		a.hub.Broadcast(EventPODSubmitted, map[string]interface{}{
			"job_id":   result.JobID,
			"uploaded": result.Uploaded,
		})
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *API) handleOutboxCount(w http.ResponseWriter, r *http.Request) {
	n, err := a.service.PendingUploads()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": n})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := a.refresher.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	n, _ := a.repo.CountJobs()
	a.hub.Broadcast(EventCacheRefreshed, map[string]interface{}{"jobs": n})
	writeJSON(w, http.StatusOK, map[string]int{"jobs": n})
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	code := apperrors.CodeOf(err)
	logging.ErrorWithCode("request failed", string(code), err)
	writeJSON(w, statusFor(code), errorResponse{Code: string(code), Message: err.Error()})
}

// statusFor maps error codes to HTTP statuses for the local API.
func statusFor(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrJobNotFound, apperrors.ErrNotFound:
		return http.StatusNotFound
	case apperrors.ErrNoPhotos, apperrors.ErrTooManyPhotos, apperrors.ErrUnsupportedFile,
		apperrors.ErrFileTooLarge, apperrors.ErrInvalid, apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrSyncOffline:
		return http.StatusServiceUnavailable
	case apperrors.ErrAllUploadsFailed, apperrors.ErrUploadFailed, apperrors.ErrJobUpdateFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Error("failed to encode response", err)
	}
}
