package api

import (
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fmuoria/ranksense/internal/agent"
	"github.com/fmuoria/ranksense/internal/export"
	"github.com/fmuoria/ranksense/internal/ingestion"
	"github.com/fmuoria/ranksense/internal/logger"
	"github.com/fmuoria/ranksense/internal/models"
	"github.com/fmuoria/ranksense/internal/topsis"
)

const (
	serviceName = "RankSense API"

	defaultMaxUploadBytes = 32 << 20
	maxRankBodyBytes      = 4 << 20
)

// Options configures the HTTP layer.
type Options struct {
	// APIToken enables bearer authentication on every route except /health.
	APIToken       string
	AllowedOrigins []string
	MaxUploadBytes int64
	Version        string
	Logger         *zap.Logger
}

// Server handles HTTP requests
type Server struct {
	agent    *agent.Agent
	opts     Options
	logger   *zap.Logger
	requests atomic.Int64
}

// NewServer creates a new API server
func NewServer(a *agent.Agent, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	return &Server{
		agent:  a,
		opts:   opts,
		logger: logger.OrNop(opts.Logger),
	}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.requests.Add(1)
			next.ServeHTTP(w, r)
		})
	})
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader, "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "route not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		s.respondError(w, r, http.StatusMethodNotAllowed, ErrCodeInvalidParameter, "method not allowed", nil)
	})

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.bearerAuth)

		r.Get("/", s.handleRoot)
		r.Get("/metrics", s.handleMetrics)
		r.Post("/rank", s.handleRank)
		r.Post("/analyze", s.handleAnalyze)
		r.Post("/ingest/gmail", s.handleIngestGmail)
		r.Get("/batches", s.handleListBatches)
		r.Get("/batches/{id}", s.handleGetBatch)
		r.Get("/batches/{id}/export", s.handleExportBatch)
		r.Get("/latest-batch", s.handleLatestBatch)
	})

	return r
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]any{
		"service": serviceName,
		"version": s.opts.Version,
		"endpoints": map[string]string{
			"GET /health":              "Health check",
			"GET /metrics":             "Operational counters",
			"POST /rank":               "Rank a JSON batch of scored candidates",
			"POST /analyze":            "Upload resumes (multipart 'files') and rank them",
			"POST /ingest/gmail":       "Fetch attachments from Gmail and rank them",
			"GET /batches":             "List recent batches",
			"GET /batches/{id}":        "Get a batch report",
			"GET /batches/{id}/export": "Download a batch report as .xlsx",
			"GET /latest-batch":        "Get the latest completed batch",
		},
	})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": serviceName,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "http_requests %d\n", s.requests.Load())
	io.WriteString(w, s.agent.Metrics().Format())
}

type rankResponse struct {
	Count   int                 `json:"count"`
	Results []topsis.RankResult `json:"results"`
}

// handleRank runs the engine directly on a JSON batch
func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var batch topsis.Batch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRankBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&batch); err != nil {
		s.respondError(w, r, http.StatusBadRequest, ErrCodeInvalidParameter, fmt.Sprintf("invalid JSON body: %v", err), nil)
		return
	}

	results, err := topsis.Rank(batch)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, rankResponse{Count: len(results), Results: results})
}

type analyzeResponse struct {
	*models.BatchReport
	Count int `json:"count"`
}

// handleAnalyze saves the uploaded files under a per-request directory and
// analyses them as one batch.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.MaxUploadBytes); err != nil {
		s.respondError(w, r, http.StatusBadRequest, ErrCodeInvalidParameter, fmt.Sprintf("failed to parse form: %v", err), nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	job, err := jobFromForm(r)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, ErrCodeInvalidParameter, err.Error(), nil)
		return
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		s.respondError(w, r, http.StatusBadRequest, ErrCodeInvalidParameter, "no files provided", nil)
		return
	}
	if len(files) > agent.MaxBatchSize {
		s.respondErr(w, r, agent.ErrTooManyDocuments)
		return
	}

	sub := sanitizeID(GetRequestID(r.Context()))
	if sub == "" {
		sub = uuid.NewString()
	}
	dir := filepath.Join(s.agent.Files().Dir(), "batch-"+sub)
	handler := ingestion.NewFileHandler(dir, s.logger)
	paths, err := s.saveUploads(handler, files)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if len(paths) == 0 {
		s.respondError(w, r, http.StatusBadRequest, ErrCodeInvalidParameter, "no supported files (pdf, docx, doc, txt) provided", nil)
		return
	}

	report, err := s.agent.AnalyzeFiles(r.Context(), job, paths)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, analyzeResponse{BatchReport: report, Count: len(report.Candidates)})
}

func (s *Server) saveUploads(handler *ingestion.FileHandler, files []*multipart.FileHeader) ([]string, error) {
	paths := make([]string, 0, len(files))
	for _, fh := range files {
		if !ingestion.SupportedExtension(fh.Filename) {
			s.logger.Info("skipping unsupported file type", zap.String("file", fh.Filename))
			continue
		}
		path, err := saveOne(handler, fh)
		if err != nil {
			return nil, fmt.Errorf("failed to save file %s: %w", fh.Filename, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func saveOne(handler *ingestion.FileHandler, fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", err
	}
	defer f.Close()
	return handler.SaveUploadedFile(fh.Filename, f)
}

// jobFromForm reads job_title/job_desc, or a full job_description JSON object.
func jobFromForm(r *http.Request) (models.JobDescription, error) {
	var job models.JobDescription
	if raw := strings.TrimSpace(r.FormValue("job_description")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return job, fmt.Errorf("failed to parse job_description: %w", err)
		}
	}
	if v := strings.TrimSpace(r.FormValue("job_title")); v != "" {
		job.Title = v
	}
	if v := strings.TrimSpace(r.FormValue("job_desc")); v != "" {
		job.Description = v
	}
	return job, nil
}

// handleIngestGmail accepts a JSON IngestRequest or form values.
func (s *Server) handleIngestGmail(w http.ResponseWriter, r *http.Request) {
	var req models.IngestRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRankBodyBytes)).Decode(&req); err != nil {
			s.respondError(w, r, http.StatusBadRequest, ErrCodeInvalidParameter, fmt.Sprintf("invalid JSON body: %v", err), nil)
			return
		}
	} else {
		req.GmailSubject = r.FormValue("gmail_subject")
		req.JobTitle = r.FormValue("job_title")
		req.JobDescription = r.FormValue("job_desc")
	}

	if strings.TrimSpace(req.GmailSubject) == "" {
		s.respondError(w, r, http.StatusBadRequest, ErrCodeInvalidParameter, "gmail_subject is required", nil)
		return
	}

	job := models.JobDescription{Title: req.JobTitle, Description: req.JobDescription}
	report, err := s.agent.IngestFromGmail(r.Context(), req.GmailSubject, job)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, analyzeResponse{BatchReport: report, Count: len(report.Candidates)})
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			s.respondError(w, r, http.StatusBadRequest, ErrCodeInvalidParameter, "limit must be an integer between 1 and 100", nil)
			return
		}
		limit = n
	}

	batches, err := s.agent.Batches(r.Context(), limit)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, batches)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	report, err := s.agent.Batch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleLatestBatch(w http.ResponseWriter, r *http.Request) {
	report, err := s.agent.LatestBatch(r.Context())
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleExportBatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	report, err := s.agent.Batch(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="ranksense-%s.xlsx"`, sanitizeID(id)))
	if err := export.WriteExcel(report, w); err != nil {
		// headers are already sent
		s.logger.Error("excel export failed", zap.String(logger.FieldBatchID, id), zap.Error(err))
	}
}

func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, id)
}
