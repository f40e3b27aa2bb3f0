package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
)

// FileClient talks to the remote file-storage collaborator.
type FileClient struct {
	*Client
}

// NewFileClient creates a FileClient.
func NewFileClient(config *Config) *FileClient {
	return &FileClient{Client: NewClient(config)}
}

type uploadResponse struct {
	URL string `json:"url"`
}

// Upload stores one file and returns its public URL.
func (c *FileClient) Upload(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/files", bytes.NewReader(data))
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrInternal, "failed to build upload request", err)
	}
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("X-File-Name", fileName)

	status, body, err := c.do(req)
	if err != nil {
		return "", apperrors.Wrap(apperrors.ErrUploadFailed, "upload request failed", err)
	}
	if status < 200 || status >= 300 {
		return "", apperrors.Wrap(apperrors.ErrUploadFailed, "upload rejected", statusError(status, body))
	}

	var resp uploadResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", apperrors.Wrap(apperrors.ErrUploadFailed, "failed to decode upload response", err)
	}
	if resp.URL == "" {
		return "", apperrors.New(apperrors.ErrUploadFailed, "upload response missing url")
	}
	return resp.URL, nil
}
