package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"riskscan/internal/domain"
	"riskscan/internal/ports"
)

// InlineRunner processes a stored pending job synchronously.
type InlineRunner func(ctx context.Context, jobID string) (domain.ScanJob, error)

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the internal status and submit API. It does no authentication
// or rate limiting.
type Server struct {
	jobs   ports.Jobs
	db     Pinger
	inline InlineRunner
	log    logrus.FieldLogger
}

// New builds the server. inline may be nil, which disables ?wait=true.
func New(jobs ports.Jobs, db Pinger, inline InlineRunner, log logrus.FieldLogger) *Server {
	return &Server{jobs: jobs, db: db, inline: inline, log: log.WithField("component", "http")}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLog)

	r.Get("/healthz", s.getHealthz)
	r.Route("/scans", func(r chi.Router) {
		r.Post("/", s.postScan)
		r.Get("/", s.listScans)
		r.Get("/{id}", s.getScan)
	})
	r.Get("/stats", s.getStats)
	r.Get("/queue", s.getQueue)
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.db.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scanRequest struct {
	Target  string          `json:"target"`
	Options json.RawMessage `json:"options,omitempty"`
}

type scanResponse struct {
	Job   domain.ScanJob      `json:"job"`
	Ports []domain.PortResult `json:"ports,omitempty"`
}

func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait {
		s.postScanInline(w, r, req)
		return
	}

	res, err := s.jobs.Submit(r.Context(), req.Target, req.Options)
	switch {
	case err == nil:
		writeJSON(w, http.StatusAccepted, res)
	case errors.Is(err, domain.ErrPublish):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"job_id": res.JobID, "status": res.Status, "error": err.Error()})
	default:
		s.writeDomainError(w, err)
	}
}

// postScanInline runs the job in the request, bounded by ?timeout= seconds.
func (s *Server) postScanInline(w http.ResponseWriter, r *http.Request, req scanRequest) {
	if s.inline == nil {
		writeError(w, http.StatusBadRequest, "inline processing is disabled")
		return
	}
	timeout := 30
	if v, err := strconv.Atoi(r.URL.Query().Get("timeout")); err == nil && v > 0 {
		timeout = v
	}
	ctx, cancel := context.WithTimeout(r.Context(), time.Duration(timeout)*time.Second)
	defer cancel()

	job, err := s.jobs.Create(ctx, req.Target, req.Options)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if job, err = s.inline(ctx, job.ID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	_, rows, err := s.jobs.Job(r.Context(), job.ID)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Job: job, Ports: rows})
}

func (s *Server) listScans(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	jobs, err := s.jobs.Jobs(r.Context(), limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "count": len(jobs)})
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	job, rows, err := s.jobs.Job(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{Job: job, Ports: rows})
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	counts, err := s.jobs.Counts(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	total := 0
	for _, n := range counts {
		total += n
	}
	writeJSON(w, http.StatusOK, map[string]any{"statuses": counts, "total": total})
}

func (s *Server) getQueue(w http.ResponseWriter, r *http.Request) {
	stats, err := s.jobs.Queue(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTarget), errors.Is(err, domain.ErrInvalidOptions):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "job not found")
	case errors.Is(err, domain.ErrBrokerConnectivity):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "timed out")
	default:
		s.log.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start).String(),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
