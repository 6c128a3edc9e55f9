package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/raysh454/stagecheck/internal/app"
	"github.com/raysh454/stagecheck/internal/logging"
	"github.com/raysh454/stagecheck/internal/rowio"
	"github.com/raysh454/stagecheck/internal/webclient"

	_ "github.com/raysh454/stagecheck/internal/server/docs" // registers swagger docs
)

const defaultMaxUploadBytes = 32 << 20

// Server is the HTTP + WebSocket API surface for stagecheck.
type Server struct {
	cfg          Config
	orchestrator *app.Orchestrator
	components   *app.Components
	ownsComps    bool
	router       chi.Router
	upgrader     websocket.Upgrader
	logger       logging.Logger
}

// NewServer creates a new Server with its own Orchestrator.
func NewServer(cfg Config) (*Server, error) {
	if cfg.AppConfig == nil {
		cfg.AppConfig = app.DefaultConfig()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = cfg.AppConfig.ServerAddr
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewStdoutLogger("server")
	}

	comps := cfg.Components
	owns := false
	if comps == nil {
		c, err := app.NewComponents(cfg.AppConfig, logger)
		if err != nil {
			return nil, fmt.Errorf("building components: %w", err)
		}
		comps, owns = c, true
	}

	orch := app.NewOrchestrator(cfg.AppConfig, comps, logger)

	r := chi.NewRouter()
	s := &Server{
		cfg:          cfg,
		orchestrator: orch,
		components:   comps,
		ownsComps:    owns,
		router:       r,
		logger:       logger.With(logging.Field{Key: "component", Value: "server"}),
		upgrader: websocket.Upgrader{
			// the API is meant for a local front end on another port
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	s.routes()
	return s, nil
}

// Orchestrator returns the underlying orchestrator for advanced use (tests, etc.).
func (s *Server) Orchestrator() *app.Orchestrator {
	return s.orchestrator
}

func (s *Server) routes() {
	r := s.router

	r.Use(s.corsMiddleware)

	// CORS preflight
	r.Options("/jobs", s.optionsHandler("GET"))
	r.Options("/jobs/check", s.optionsHandler("POST"))
	r.Options("/jobs/generate", s.optionsHandler("POST"))
	r.Options("/jobs/{jobID}", s.optionsHandler("GET, DELETE"))
	r.Options("/jobs/{jobID}/download", s.optionsHandler("GET"))

	r.Get("/healthz", s.handleHealth)

	// Jobs over REST
	r.Post("/jobs/check", s.handleStartCheckJob)
	r.Post("/jobs/generate", s.handleStartGenerateJob)
	r.Get("/jobs", s.handleListJobs)
	r.Get("/jobs/{jobID}", s.handleGetJob)
	r.Delete("/jobs/{jobID}", s.handleCancelJob)
	r.Get("/jobs/{jobID}/download", s.handleDownload)

	// WebSocket for job progress
	r.Get("/ws/jobs/{jobID}", s.handleJobWS)

	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")
		w.Header().Set("Access-Control-Max-Age", "86400")

		next.ServeHTTP(w, r)
	})
}

func (s *Server) optionsHandler(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Methods", methods)
		w.WriteHeader(http.StatusNoContent)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	fields := []logging.Field{
		{Key: "method", Value: r.Method},
		{Key: "path", Value: r.URL.Path},
	}
	if q := r.URL.Query(); len(q) > 0 {
		fields = append(fields, logging.Field{Key: "query", Value: q})
	}
	s.logger.Info("http_request", fields...)

	s.router.ServeHTTP(w, r)
}

// Close shuts down the orchestrator and the components the server built.
func (s *Server) Close() {
	if s.orchestrator != nil {
		s.orchestrator.Close()
	}
	if s.ownsComps && s.components != nil {
		if err := s.components.Close(); err != nil {
			s.logger.Warn("closing components", logging.Field{Key: "error", Value: err})
		}
	}
}

// HTTPServer creates an *http.Server ready to ListenAndServe.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              s.cfg.ListenAddr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      0, // allow streaming
	}
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// jobErrorStatus maps orchestrator errors onto HTTP statuses.
func jobErrorStatus(err error) int {
	switch {
	case errors.Is(err, app.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, app.ErrJobNotFinished):
		return http.StatusConflict
	case errors.Is(err, app.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, rowio.ErrMissingColumns), errors.Is(err, rowio.ErrUnsupportedFormat):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// --- HTTP handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Backends: webclient.ListBackends()})
}

// handleStartCheckJob godoc
// @Summary Start a check job
// @Description Uploads a CSV or XLSX sheet and classifies every row's staging link.
// @Tags jobs
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Sheet with Theoretical Staging Link, Page Exists?, Scope and Status columns"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Failure 422 {object} ErrorResponse
// @Router /jobs/check [post]
func (s *Server) handleStartCheckJob(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.logger.Warn("parsing upload", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, "invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	job, err := s.orchestrator.StartCheckJob(r.Context(), filepath.Base(header.Filename), data)
	if err != nil {
		s.logger.Warn("starting check job", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, jobErrorStatus(err), err.Error())
		return
	}
	s.logger.Info("started check job",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "file", Value: header.Filename})
	writeJSON(w, http.StatusAccepted, job)
}

// handleStartGenerateJob godoc
// @Summary Start a generate job
// @Description Resolves the site's sitemap and builds a check sheet for the staging host.
// @Tags jobs
// @Accept json
// @Produce json
// @Param request body StartGenerateJobRequest true "Site and staging host"
// @Success 202 {object} app.Job
// @Failure 400 {object} ErrorResponse
// @Router /jobs/generate [post]
func (s *Server) handleStartGenerateJob(w http.ResponseWriter, r *http.Request) {
	var body StartGenerateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.logger.Warn("decoding generate body", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	job, err := s.orchestrator.StartGenerateJob(r.Context(), body.Site, body.StagingHost)
	if err != nil {
		s.logger.Warn("starting generate job", logging.Field{Key: "error", Value: err.Error()})
		writeError(w, jobErrorStatus(err), err.Error())
		return
	}
	s.logger.Info("started generate job",
		logging.Field{Key: "job_id", Value: job.ID},
		logging.Field{Key: "site", Value: body.Site})
	writeJSON(w, http.StatusAccepted, job)
}

// handleGetJob godoc
// @Summary Get a job
// @Tags jobs
// @Produce json
// @Param jobID path string true "Job ID"
// @Success 200 {object} app.Job
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobID} [get]
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.orchestrator.GetJob(jobID)
	if err != nil {
		writeError(w, jobErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// handleCancelJob godoc
// @Summary Cancel a job
// @Tags jobs
// @Param jobID path string true "Job ID"
// @Success 204
// @Failure 404 {object} ErrorResponse
// @Router /jobs/{jobID} [delete]
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.orchestrator.CancelJob(jobID); err != nil {
		writeError(w, jobErrorStatus(err), err.Error())
		return
	}
	s.logger.Info("canceled job", logging.Field{Key: "job_id", Value: jobID})
	w.WriteHeader(http.StatusNoContent)
}

// handleListJobs godoc
// @Summary List jobs
// @Tags jobs
// @Produce json
// @Success 200 {array} app.Job
// @Router /jobs [get]
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs := s.orchestrator.ListJobs()
	writeJSON(w, http.StatusOK, jobs)
}

// handleDownload godoc
// @Summary Download a finished job's sheet
// @Tags jobs
// @Produce octet-stream
// @Param jobID path string true "Job ID"
// @Success 200 {file} file
// @Failure 404 {object} ErrorResponse
// @Failure 409 {object} ErrorResponse
// @Router /jobs/{jobID}/download [get]
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	name, data, err := s.orchestrator.JobOutput(jobID)
	if err != nil {
		writeError(w, jobErrorStatus(err), err.Error())
		return
	}

	contentType := "text/csv; charset=utf-8"
	if format, _ := rowio.FormatFor(name); format == rowio.FormatXLSX {
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": name}))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// WebSockets

func (s *Server) handleJobWS(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.orchestrator.GetJob(jobID)
	if err != nil {
		writeError(w, jobErrorStatus(err), err.Error())
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("upgrading to websocket", logging.Field{Key: "error", Value: err.Error()})
		return
	}
	defer conn.Close()

	// Send the current snapshot first so late subscribers see finished jobs.
	if err := conn.WriteJSON(job); err != nil {
		return
	}

	for ev := range job.Events {
		if err := conn.WriteJSON(ev); err != nil {
			// Assume client disconnected; the job keeps running.
			return
		}
	}

	if final, err := s.orchestrator.GetJob(jobID); err == nil {
		_ = conn.WriteJSON(final)
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
}
