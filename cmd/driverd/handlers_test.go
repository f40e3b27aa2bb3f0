package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/routeleaf/dispatch/backend/internal/cache"
	"github.com/routeleaf/dispatch/backend/internal/connectivity"
	"github.com/routeleaf/dispatch/backend/internal/db"
	"github.com/routeleaf/dispatch/backend/internal/media"
	"github.com/routeleaf/dispatch/backend/internal/models"
	"github.com/routeleaf/dispatch/backend/internal/outbox"
	"github.com/routeleaf/dispatch/backend/internal/pod"
)

type fakeSource struct {
	jobs []*models.CachedJob
}

func (s *fakeSource) ListJobs(ctx context.Context) ([]*models.CachedJob, error) {
	return s.jobs, nil
}

func (s *fakeSource) ListAssignments(ctx context.Context) ([]*models.CachedAssignment, error) {
	return nil, nil
}

type noopFiles struct{}

func (noopFiles) Upload(ctx context.Context, fileName, mimeType string, data []byte) (string, error) {
	return "https://files.example/" + fileName, nil
}

type noopJobs struct{}

func (noopJobs) UpdateJob(ctx context.Context, jobID string, update *models.JobUpdate) error {
	return nil
}

// setupAPI wires the API over a real store with one cached job. The
// monitor stays offline so submissions land in the outbox.
func setupAPI(t *testing.T) *http.ServeMux {
	t.Helper()

	database, err := db.Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	if err := db.Migrate(database.DB); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}

	repo := db.NewRepository(database.DB)
	if err := repo.ReplaceJobs([]*models.CachedJob{
		{ID: "job-1", CustomerName: "Acme", Status: models.JobStatusInTransit},
	}); err != nil {
		t.Fatalf("ReplaceJobs failed: %v", err)
	}

	queue := outbox.New(repo)
	monitor := connectivity.NewMonitor(nil, time.Minute)
	service := pod.NewService(media.NewCompressor(), queue, repo, monitor, noopFiles{}, noopJobs{}, nil)
	refresher := cache.NewRefresher(repo, &fakeSource{jobs: []*models.CachedJob{{ID: "job-9"}}}, nil)

	mux := http.NewServeMux()
	NewAPI(service, repo, refresher, NewWSHub()).Register(mux)
	return mux
}

func podForm(t *testing.T, notes string, photoNames ...string) (*bytes.Buffer, string) {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 16), G: uint8(y * 16), B: 64, A: 255})
		}
	}
	var jpg bytes.Buffer
	if err := jpeg.Encode(&jpg, img, nil); err != nil {
		t.Fatalf("failed to encode fixture: %v", err)
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	for _, name := range photoNames {
		part, err := writer.CreateFormFile("photo", name)
		if err != nil {
			t.Fatalf("CreateFormFile failed: %v", err)
		}
		part.Write(jpg.Bytes())
	}
	if notes != "" {
		writer.WriteField("notes", notes)
	}
	writer.Close()
	return &body, writer.FormDataContentType()
}

func TestSubmitPODEndpoint(t *testing.T) {
	mux := setupAPI(t)

	body, contentType := podForm(t, "left at door", "a.jpg", "b.jpg")
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/pod", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var result pod.SubmitResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !result.SavedOffline || result.Attempted != 2 {
		t.Errorf("result = %+v, want 2 photos saved offline", result)
	}

	// The badge endpoint reflects the queued item
	req = httptest.NewRequest(http.MethodGet, "/api/outbox/count", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var badge map[string]int
	json.Unmarshal(rec.Body.Bytes(), &badge)
	if badge["pending"] != 1 {
		t.Errorf("pending = %d, want 1", badge["pending"])
	}
}

func TestSubmitPODEndpointNoPhotos(t *testing.T) {
	mux := setupAPI(t)

	body, contentType := podForm(t, "just notes")
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/job-1/pod", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != "NO_PHOTOS" {
		t.Errorf("code = %q, want NO_PHOTOS", resp.Code)
	}
}

func TestSubmitPODEndpointUnknownJob(t *testing.T) {
	mux := setupAPI(t)

	body, contentType := podForm(t, "", "a.jpg")
	req := httptest.NewRequest(http.MethodPost, "/api/jobs/nope/pod", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestJobsEndpoints(t *testing.T) {
	mux := setupAPI(t)

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	var jobs []*models.CachedJob
	if err := json.Unmarshal(rec.Body.Bytes(), &jobs); err != nil {
		t.Fatalf("failed to decode jobs: %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != "job-1" {
		t.Errorf("jobs = %+v, want the cached job", jobs)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/missing", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	mux := setupAPI(t)

	req := httptest.NewRequest(http.MethodPost, "/api/refresh", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	// The cache now mirrors the remote source
	req = httptest.NewRequest(http.MethodGet, "/api/jobs/job-9", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want the refreshed job visible", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want the old cache replaced", rec.Code)
	}
}
