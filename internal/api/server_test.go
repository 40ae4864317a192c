package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"hubsync/internal/models"
	"hubsync/internal/queue"
)

type fakeKeys struct{ valid string }

func (f *fakeKeys) ValidateAPIKey(_ context.Context, key string) (bool, error) {
	return key == f.valid, nil
}

type fakeQueue struct {
	jobs   map[int64]models.Job
	nextID int64
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{jobs: map[int64]models.Job{}}
}

func (f *fakeQueue) Enqueue(_ context.Context, jobType string, priority, maxRetries int) (models.Job, error) {
	f.nextID++
	job := models.Job{ID: f.nextID, JobType: jobType, Status: models.StatusPending, Priority: priority, MaxRetries: maxRetries}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeQueue) Get(_ context.Context, id int64) (models.Job, error) {
	job, ok := f.jobs[id]
	if !ok {
		return models.Job{}, queue.ErrNotFound
	}
	return job, nil
}

func (f *fakeQueue) List(_ context.Context, limit int) ([]models.Job, error) {
	var out []models.Job
	for _, j := range f.jobs {
		if len(out) == limit {
			break
		}
		out = append(out, j)
	}
	return out, nil
}

func (f *fakeQueue) RequestStop(_ context.Context, id int64) error {
	job, ok := f.jobs[id]
	if !ok || job.Terminal() {
		return queue.ErrNotFound
	}
	job.StopRequested = true
	f.jobs[id] = job
	return nil
}

func newTestServer() (*Server, *fakeQueue) {
	q := newFakeQueue()
	return New(&fakeKeys{valid: "secret"}, q, zap.NewNop().Sugar()), q
}

func do(t *testing.T, h http.Handler, method, path, key string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthzIsOpen(t *testing.T) {
	s, _ := newTestServer()
	rec := do(t, s.Router(), http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz status = %d", rec.Code)
	}
}

func TestAPIKeyRequired(t *testing.T) {
	s, _ := newTestServer()
	r := s.Router()

	if rec := do(t, r, http.MethodGet, "/batch-jobs", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing key status = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/batch-jobs", "wrong", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong key status = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/batch-jobs", "secret", nil); rec.Code != http.StatusOK {
		t.Fatalf("valid key status = %d", rec.Code)
	}
}

func TestEnqueueKnownJob(t *testing.T) {
	s, q := newTestServer()
	rec := do(t, s.Router(), http.MethodPost, "/batch-jobs/queue", "secret",
		map[string]string{"job_key": "contact-phase-summary"})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body)
	}

	var job models.Job
	if err := json.Unmarshal(rec.Body.Bytes(), &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.JobType != "contact-phase-summary" || job.Status != models.StatusPending {
		t.Fatalf("job = %+v", job)
	}
	def, _ := queue.Lookup("contact-phase-summary")
	if job.Priority != def.Priority || job.MaxRetries != def.MaxRetries {
		t.Fatalf("registry defaults not applied: %+v", job)
	}
	if len(q.jobs) != 1 {
		t.Fatalf("expected one stored job")
	}
}

func TestEnqueueUnknownJob(t *testing.T) {
	s, q := newTestServer()
	rec := do(t, s.Router(), http.MethodPost, "/batch-jobs/queue", "secret",
		map[string]string{"job_key": "no-such-job"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(q.jobs) != 0 {
		t.Fatalf("unknown job key must not be stored")
	}
}

func TestStatusAndStop(t *testing.T) {
	s, q := newTestServer()
	r := s.Router()
	job, _ := q.Enqueue(context.Background(), "sales-summary", 3, 2)

	rec := do(t, r, http.MethodGet, "/batch-jobs/1/status", "secret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	rec = do(t, r, http.MethodPost, "/batch-jobs/1/stop", "secret", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stop status = %d", rec.Code)
	}
	if !q.jobs[job.ID].StopRequested {
		t.Fatalf("stop flag not raised")
	}

	if rec := do(t, r, http.MethodGet, "/batch-jobs/99/status", "secret", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("missing job status = %d", rec.Code)
	}
	if rec := do(t, r, http.MethodGet, "/batch-jobs/abc/status", "secret", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}
}
