// Package db provides the on-device durable store for the dispatch driver core.
package db

import (
	"database/sql"

	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
)

// WithTx runs fn inside a transaction. Either every statement issued through
// the transaction is committed, or none are; the handle is finalized on every
// exit path (success, error, or panic) and must not be retained by fn.
func WithTx(db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to begin transaction", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return apperrors.Wrap(apperrors.ErrStorageUnavailable, "failed to commit transaction", err)
	}
	return nil
}
