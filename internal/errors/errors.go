// Package errors provides error code definitions for the dispatch driver core.
package errors

import "fmt"

// ErrorCode identifies an error class across the Go core and the UI shell.
type ErrorCode string

const (
	// General errors
	ErrInternal   ErrorCode = "INTERNAL_ERROR"
	ErrInvalid    ErrorCode = "INVALID_INPUT"
	ErrNotFound   ErrorCode = "NOT_FOUND"
	ErrValidation ErrorCode = "VALIDATION_ERROR"

	// Submission validation errors
	ErrNoPhotos        ErrorCode = "NO_PHOTOS"
	ErrTooManyPhotos   ErrorCode = "TOO_MANY_PHOTOS"
	ErrUnsupportedFile ErrorCode = "UNSUPPORTED_FILE"
	ErrFileTooLarge    ErrorCode = "FILE_TOO_LARGE"

	// Compression errors
	ErrCompressionFailed  ErrorCode = "COMPRESSION_FAILED"
	ErrCompressionTimeout ErrorCode = "COMPRESSION_TIMEOUT"

	// Durable store errors
	ErrStorageUnavailable ErrorCode = "STORAGE_UNAVAILABLE"
	ErrStoreNotOpen       ErrorCode = "STORE_NOT_OPEN"
	ErrMigration          ErrorCode = "MIGRATION_FAILED"

	// Network / upload errors
	ErrUploadFailed     ErrorCode = "UPLOAD_FAILED"
	ErrAllUploadsFailed ErrorCode = "ALL_UPLOADS_FAILED"
	ErrJobUpdateFailed  ErrorCode = "JOB_UPDATE_FAILED"
	ErrJobNotFound      ErrorCode = "JOB_NOT_FOUND"

	// Sync errors
	ErrSyncInProgress ErrorCode = "SYNC_IN_PROGRESS"
	ErrSyncOffline    ErrorCode = "SYNC_OFFLINE"
	ErrSyncItemFailed ErrorCode = "SYNC_ITEM_FAILED"

	// Notification errors (always swallowed by callers, logged only)
	ErrNotifyFailed ErrorCode = "NOTIFY_FAILED"
)

// AppError represents an application error with code and message.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// Wrap wraps an existing error with an error code.
func Wrap(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Is checks if an error is of a specific code.
func Is(err error, code ErrorCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// CodeOf returns the code of an AppError, or ErrInternal for anything else.
func CodeOf(err error) ErrorCode {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code
	}
	return ErrInternal
}
