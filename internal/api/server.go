package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"hubsync/internal/models"
	"hubsync/internal/queue"
	"hubsync/internal/telemetry"
)

// JobQueue is the queue surface the handlers use. Implemented by
// queue.Queue.
type JobQueue interface {
	Enqueue(ctx context.Context, jobType string, priority, maxRetries int) (models.Job, error)
	Get(ctx context.Context, id int64) (models.Job, error)
	List(ctx context.Context, limit int) ([]models.Job, error)
	RequestStop(ctx context.Context, id int64) error
}

// KeyValidator checks API keys. Implemented by store.Store.
type KeyValidator interface {
	ValidateAPIKey(ctx context.Context, key string) (bool, error)
}

// Server wires the admin HTTP surface for the batch job queue.
type Server struct {
	keys  KeyValidator
	queue JobQueue
	log   *zap.SugaredLogger
}

// New constructs the API server.
func New(keys KeyValidator, q JobQueue, log *zap.SugaredLogger) *Server {
	return &Server{keys: keys, queue: q, log: log}
}

// Router builds the HTTP router. Everything under /batch-jobs requires an
// API key; healthz and metrics stay open for probes and scrapers.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Mount("/metrics", telemetry.Handler())

	r.Group(func(r chi.Router) {
		r.Use(s.requireAPIKey)
		r.Post("/batch-jobs/queue", s.handleEnqueue)
		r.Get("/batch-jobs", s.handleList)
		r.Get("/batch-jobs/{id}/status", s.handleStatus)
		r.Post("/batch-jobs/{id}/stop", s.handleStop)
	})
	return r
}

func (s *Server) requireAPIKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("X-API-Key")
		if key == "" {
			writeError(w, http.StatusUnauthorized, "missing api key")
			return
		}
		ok, err := s.keys.ValidateAPIKey(r.Context(), key)
		if err != nil {
			s.log.Errorw("api key lookup failed", "error", err)
			writeError(w, http.StatusInternalServerError, "auth check failed")
			return
		}
		if !ok {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type enqueueRequest struct {
	JobKey string `json:"job_key"`
}

func (s *Server) handleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	def, ok := queue.Lookup(req.JobKey)
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown job key")
		return
	}

	job, err := s.queue.Enqueue(r.Context(), def.Key, def.Priority, def.MaxRetries)
	if err != nil {
		s.log.Errorw("enqueue failed", "job_key", def.Key, "error", err)
		writeError(w, http.StatusInternalServerError, "enqueue failed")
		return
	}
	telemetry.EnqueueCounter.Inc()
	s.log.Infow("job enqueued", "job_id", job.ID, "job_key", def.Key)
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}
	jobs, err := s.queue.List(r.Context(), limit)
	if err != nil {
		s.log.Errorw("list jobs failed", "error", err)
		writeError(w, http.StatusInternalServerError, "list failed")
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, err := s.queue.Get(r.Context(), id)
	if errors.Is(err, queue.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	if err != nil {
		s.log.Errorw("get job failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "status lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id, err := jobID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	err = s.queue.RequestStop(r.Context(), id)
	if errors.Is(err, queue.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found or already finished")
		return
	}
	if err != nil {
		s.log.Errorw("stop request failed", "job_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "stop failed")
		return
	}
	s.log.Infow("stop requested", "job_id", id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stop_requested"})
}

func jobID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
