package remote

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
	"github.com/routeleaf/dispatch/backend/internal/models"
)

// JobClient talks to the remote job store.
type JobClient struct {
	*Client
	driverID string
}

// NewJobClient creates a JobClient scoped to one driver.
func NewJobClient(config *Config, driverID string) *JobClient {
	return &JobClient{
		Client:   NewClient(config),
		driverID: driverID,
	}
}

// ListJobs returns the driver's jobs for local caching.
func (c *JobClient) ListJobs(ctx context.Context) ([]*models.CachedJob, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/jobs?driver="+c.driverID, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build job list request", err)
	}
	status, body, err := c.do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUploadFailed, "job list request failed", err)
	}
	if status != http.StatusOK {
		return nil, apperrors.Wrap(apperrors.ErrUploadFailed, "job list rejected", statusError(status, body))
	}

	var jobs []*models.CachedJob
	if err := json.Unmarshal(body, &jobs); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to decode job list", err)
	}
	return jobs, nil
}

// ListAssignments returns the driver's slot assignments for local caching.
func (c *JobClient) ListAssignments(ctx context.Context) ([]*models.CachedAssignment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/api/assignments?driver="+c.driverID, nil)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to build assignment list request", err)
	}
	status, body, err := c.do(req)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrUploadFailed, "assignment list request failed", err)
	}
	if status != http.StatusOK {
		return nil, apperrors.Wrap(apperrors.ErrUploadFailed, "assignment list rejected", statusError(status, body))
	}

	var assignments []*models.CachedAssignment
	if err := json.Unmarshal(body, &assignments); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInternal, "failed to decode assignment list", err)
	}
	return assignments, nil
}

// UpdateJob applies a partial field update to one job.
func (c *JobClient) UpdateJob(ctx context.Context, jobID string, update *models.JobUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrInternal, "failed to encode job update", err)
	}

	status, body, err := c.doJSON(ctx, http.MethodPatch, "/api/jobs/"+jobID, payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrJobUpdateFailed, "job update request failed", err)
	}
	switch {
	case status == http.StatusNotFound:
		return apperrors.New(apperrors.ErrJobNotFound, "job not found: "+jobID)
	case status < 200 || status >= 300:
		return apperrors.Wrap(apperrors.ErrJobUpdateFailed, "job update rejected", statusError(status, body))
	}
	return nil
}
