// Package cache refreshes the local job and assignment mirrors from the
// remote job store.
package cache

import (
	"context"

	"github.com/routeleaf/dispatch/backend/internal/connectivity"
	"github.com/routeleaf/dispatch/backend/internal/db"
	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
	"github.com/routeleaf/dispatch/backend/internal/logging"
	"github.com/routeleaf/dispatch/backend/internal/models"
)

// JobSource lists the driver's remote jobs and assignments.
type JobSource interface {
	ListJobs(ctx context.Context) ([]*models.CachedJob, error)
	ListAssignments(ctx context.Context) ([]*models.CachedAssignment, error)
}

// Refresher replaces the cache collections wholesale from the remote store.
// A refresh either fully replaces both collections or leaves them intact.
type Refresher struct {
	repo    *db.Repository
	source  JobSource
	monitor *connectivity.Monitor
}

// NewRefresher creates a Refresher.
func NewRefresher(repo *db.Repository, source JobSource, monitor *connectivity.Monitor) *Refresher {
	return &Refresher{repo: repo, source: source, monitor: monitor}
}

// Refresh pulls jobs and assignments and replaces the local caches in one
// transaction, stamping the last-sync timestamp on success.
func (r *Refresher) Refresh(ctx context.Context) error {
	if r.monitor != nil && !r.monitor.IsOnline() {
		return apperrors.New(apperrors.ErrSyncOffline, "cache refresh requires connectivity")
	}

	jobs, err := r.source.ListJobs(ctx)
	if err != nil {
		return err
	}
	assignments, err := r.source.ListAssignments(ctx)
	if err != nil {
		return err
	}

	if err := r.repo.ReplaceCaches(jobs, assignments); err != nil {
		return err
	}

	logging.Info("caches refreshed", map[string]interface{}{
		"jobs":        len(jobs),
		"assignments": len(assignments),
	})
	return nil
}
