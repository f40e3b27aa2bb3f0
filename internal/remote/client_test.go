package remote

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "github.com/routeleaf/dispatch/backend/internal/errors"
	"github.com/routeleaf/dispatch/backend/internal/models"
)

func TestNewRequestSetsBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewJobClient(&Config{BaseURL: srv.URL, Token: "secret-token"}, "drv-1")
	if _, err := c.ListJobs(context.Background()); err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
}

func TestNewRequestTrailingSlash(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte("[]"))
	}))
	defer srv.Close()

	c := NewJobClient(&Config{BaseURL: srv.URL + "/"}, "drv-1")
	if _, err := c.ListJobs(context.Background()); err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if gotPath != "/api/jobs" {
		t.Errorf("path = %q, want /api/jobs", gotPath)
	}
}

func TestListJobs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("driver") != "drv-1" {
			t.Errorf("driver = %q, want drv-1", r.URL.Query().Get("driver"))
		}
		json.NewEncoder(w).Encode([]*models.CachedJob{
			{ID: "job-1", CustomerName: "Acme", Status: models.JobStatusScheduled},
		})
	}))
	defer srv.Close()

	c := NewJobClient(&Config{BaseURL: srv.URL}, "drv-1")
	jobs, err := c.ListJobs(context.Background())
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Errorf("jobs = %+v, want one decoded job", jobs)
	}
}

func TestListAssignments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/assignments" {
			t.Errorf("path = %q, want /api/assignments", r.URL.Path)
		}
		json.NewEncoder(w).Encode([]*models.CachedAssignment{
			{ID: "as-1", JobID: "job-1", DriverID: "drv-1", SlotWindow: "08:00-12:00"},
		})
	}))
	defer srv.Close()

	c := NewJobClient(&Config{BaseURL: srv.URL}, "drv-1")
	assignments, err := c.ListAssignments(context.Background())
	if err != nil {
		t.Fatalf("ListAssignments failed: %v", err)
	}
	if len(assignments) != 1 || assignments[0].SlotWindow != "08:00-12:00" {
		t.Errorf("assignments = %+v, want one decoded assignment", assignments)
	}
}

func TestUpdateJob(t *testing.T) {
	var gotMethod, gotPath string
	var gotUpdate models.JobUpdate
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotUpdate)
	}))
	defer srv.Close()

	c := NewJobClient(&Config{BaseURL: srv.URL}, "drv-1")
	update := &models.JobUpdate{
		PODFiles: []string{"https://files.example/a.jpg"},
		Notes:    "left at door",
		Status:   models.JobStatusDelivered,
	}
	if err := c.UpdateJob(context.Background(), "job-1", update); err != nil {
		t.Fatalf("UpdateJob failed: %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/api/jobs/job-1" {
		t.Errorf("request = %s %s, want PATCH /api/jobs/job-1", gotMethod, gotPath)
	}
	if gotUpdate.Status != models.JobStatusDelivered {
		t.Errorf("decoded status = %q, want delivered", gotUpdate.Status)
	}
}

func TestUpdateJobNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewJobClient(&Config{BaseURL: srv.URL}, "drv-1")
	err := c.UpdateJob(context.Background(), "missing", &models.JobUpdate{})
	if !apperrors.Is(err, apperrors.ErrJobNotFound) {
		t.Errorf("error = %v, want ErrJobNotFound", err)
	}
}

func TestUpdateJobServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewJobClient(&Config{BaseURL: srv.URL}, "drv-1")
	err := c.UpdateJob(context.Background(), "job-1", &models.JobUpdate{})
	if !apperrors.Is(err, apperrors.ErrJobUpdateFailed) {
		t.Errorf("error = %v, want ErrJobUpdateFailed", err)
	}
}

func TestFileUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/files" {
			t.Errorf("request = %s %s, want POST /api/files", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "image/jpeg" {
			t.Errorf("Content-Type = %q, want image/jpeg", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-File-Name") != "pod-1.jpg" {
			t.Errorf("X-File-Name = %q, want pod-1.jpg", r.Header.Get("X-File-Name"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "jpeg-bytes" {
			t.Errorf("body = %q, want raw file bytes", body)
		}
		json.NewEncoder(w).Encode(map[string]string{"url": "https://files.example/pod-1.jpg"})
	}))
	defer srv.Close()

	c := NewFileClient(&Config{BaseURL: srv.URL})
	url, err := c.Upload(context.Background(), "pod-1.jpg", "image/jpeg", []byte("jpeg-bytes"))
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	if url != "https://files.example/pod-1.jpg" {
		t.Errorf("url = %q, want the returned URL", url)
	}
}

func TestFileUploadRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewFileClient(&Config{BaseURL: srv.URL})
	_, err := c.Upload(context.Background(), "pod-1.jpg", "image/jpeg", []byte("x"))
	if !apperrors.Is(err, apperrors.ErrUploadFailed) {
		t.Errorf("error = %v, want ErrUploadFailed", err)
	}
}

func TestFileUploadMissingURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{}"))
	}))
	defer srv.Close()

	c := NewFileClient(&Config{BaseURL: srv.URL})
	_, err := c.Upload(context.Background(), "pod-1.jpg", "image/jpeg", []byte("x"))
	if !apperrors.Is(err, apperrors.ErrUploadFailed) {
		t.Errorf("error = %v, want ErrUploadFailed", err)
	}
}

func TestNotifyInvoke(t *testing.T) {
	var gotPath string
	var gotPayload map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotPayload)
	}))
	defer srv.Close()

	c := NewNotifyClient(&Config{BaseURL: srv.URL})
	err := c.Invoke(context.Background(), "pod-notes-notification", map[string]interface{}{
		"job_id": "job-1",
		"notes":  "gate code 4411",
	})
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if gotPath != "/api/functions/pod-notes-notification" {
		t.Errorf("path = %q, want the function route", gotPath)
	}
	if gotPayload["notes"] != "gate code 4411" {
		t.Errorf("payload = %v, want the notes carried through", gotPayload)
	}
}

func TestNotifyInvokeRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unknown function", http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewNotifyClient(&Config{BaseURL: srv.URL})
	err := c.Invoke(context.Background(), "nope", nil)
	if !apperrors.Is(err, apperrors.ErrNotifyFailed) {
		t.Errorf("error = %v, want ErrNotifyFailed", err)
	}
}
