package remote

import (
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
)

// NotifyClient invokes server-side notification functions. Callers treat
// every failure as non-fatal.
type NotifyClient struct {
	*Client
}

// NewNotifyClient creates a NotifyClient.
func NewNotifyClient(config *Config) *NotifyClient {
	return &NotifyClient{Client: NewClient(config)}
}

// Invoke calls a named dispatcher function with a JSON payload.
func (c *NotifyClient) Invoke(ctx context.Context, name string, payload map[string]interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotifyFailed, "failed to encode notification payload", err)
	}

	status, respBody, err := c.doJSON(ctx, http.MethodPost, "/api/functions/"+name, body)
	if err != nil {
		return apperrors.Wrap(apperrors.ErrNotifyFailed, "notification request failed", err)
	}
	if status < 200 || status >= 300 {
		return apperrors.Wrap(apperrors.ErrNotifyFailed, "notification rejected", statusError(status, respBody))
	}
	return nil
}
