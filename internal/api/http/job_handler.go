package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"ddp-dispatch/internal/dispatch"
	"ddp-dispatch/internal/domain"
	"ddp-dispatch/internal/metrics"
	"ddp-dispatch/internal/scheduler"
	"ddp-dispatch/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// JobHandler serves the training job, run and cluster endpoints.
type JobHandler struct {
	jobs     *usecase.JobService
	runs     *usecase.RunService
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

// NewJobHandler creates a new JobHandler and registers the custom validations.
func NewJobHandler(jobs *usecase.JobService, runs *usecase.RunService, logger *slog.Logger) *JobHandler {
	validate := validator.New()

	_ = validate.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := scheduler.Parser.Parse(fl.Field().String())
		return err == nil
	})

	return &JobHandler{
		jobs:     jobs,
		runs:     runs,
		logger:   logger.With("component", "job-handler"),
		validate: validate,
		tracer:   otel.Tracer("ddp-dispatch-api"),
	}
}

// A helper struct to capture the status code
type instrumentedResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *instrumentedResponseWriter) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// RegisterRoutes registers the API routes on mux.
func (h *JobHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/jobs/", h.instrument(http.HandlerFunc(h.handleJobs)))
	mux.Handle("/cluster", h.instrument(http.HandlerFunc(h.handleCluster)))
}

func (h *JobHandler) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := routePattern(r.URL.Path)

		ctx, span := h.tracer.Start(r.Context(), "HTTP "+r.Method+" "+path, trace.WithAttributes(
			attribute.String("http.method", r.Method),
			attribute.String("http.target", r.URL.Path),
		))
		defer span.End()

		r = r.WithContext(ctx)

		iw := &instrumentedResponseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(iw, r)

		metrics.HttpRequestsTotal.WithLabelValues(path, r.Method, strconv.Itoa(iw.statusCode)).Inc()

		span.SetAttributes(attribute.Int("http.status_code", iw.statusCode))
		if iw.statusCode >= 500 {
			span.SetStatus(codes.Error, "Server Error")
		}
	})
}

// routePattern maps a request path to a low-cardinality metric label.
func routePattern(p string) string {
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case parts[0] != "jobs":
		return "/" + parts[0]
	case len(parts) == 1 || parts[1] == "":
		return "/jobs/"
	case len(parts) == 2:
		return "/jobs/{name}"
	case len(parts) == 3:
		return "/jobs/{name}/runs"
	default:
		return "/jobs/{name}/runs/{id}"
	}
}

// handleJobs routes /jobs/, /jobs/{name}, /jobs/{name}/runs and /jobs/{name}/runs/{id}.
func (h *JobHandler) handleJobs(w http.ResponseWriter, r *http.Request) {
	pathParts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(pathParts) < 1 || pathParts[0] != "jobs" || len(pathParts) > 4 {
		http.NotFound(w, r)
		return
	}

	var jobName, action, runID string
	if len(pathParts) > 1 {
		jobName = pathParts[1]
	}
	if len(pathParts) > 2 {
		action = pathParts[2]
	}
	if len(pathParts) > 3 {
		runID = pathParts[3]
	}
	if action != "" && action != "runs" {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		switch {
		case jobName == "":
			h.handleListJobs(w, r)
		case action == "":
			h.handleGetJob(w, r, jobName)
		case runID == "":
			h.handleListRuns(w, r, jobName)
		default:
			h.handleGetRun(w, r, jobName, runID)
		}
	case http.MethodPost, http.MethodPut:
		switch {
		case jobName == "":
			h.handleSaveJob(w, r)
		case action == "runs" && runID == "":
			h.handleLaunch(w, r, jobName)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	case http.MethodDelete:
		if jobName != "" && action == "" {
			h.handleDeleteJob(w, r, jobName)
		} else {
			http.Error(w, "Job name is required for deletion", http.StatusBadRequest)
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *JobHandler) handleSaveJob(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.SaveJob")
	defer span.End()

	var req SaveJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		span.SetStatus(codes.Error, "Failed to decode request body")
		span.RecordError(err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		var validationErrors []string
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				validationErrors = append(validationErrors,
					"Field '"+fe.Field()+"' failed on the '"+fe.Tag()+"' tag.",
				)
			}
		}
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "Validation failed",
			"details": validationErrors,
		})
		return
	}

	job := req.ToDomainJob()
	span.SetAttributes(attribute.String("job.name", job.Name))

	if err := h.jobs.Save(ctx, job); err != nil {
		span.SetStatus(codes.Error, "Failed to save job in service")
		span.RecordError(err)
		h.logger.Error("error saving job", "error", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, job)
}

func (h *JobHandler) handleDeleteJob(w http.ResponseWriter, r *http.Request, name string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.DeleteJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	if err := h.jobs.Delete(ctx, name); err != nil {
		span.RecordError(err)
		h.writeError(w, "error deleting job", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) handleGetJob(w http.ResponseWriter, r *http.Request, name string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetJob")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	job, err := h.jobs.Get(ctx, name)
	if err != nil {
		span.RecordError(err)
		h.writeError(w, "error getting job", err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *JobHandler) handleListJobs(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListJobs")
	defer span.End()

	jobs, err := h.jobs.List(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "Failed to list jobs from service")
		span.RecordError(err)
		h.writeError(w, "error listing jobs", err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// handleLaunch starts a run of a job (POST /jobs/{name}/runs).
func (h *JobHandler) handleLaunch(w http.ResponseWriter, r *http.Request, name string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.Launch")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	record, err := h.jobs.Launch(ctx, name)
	if err != nil {
		span.RecordError(err)
		h.writeError(w, "error launching job", err)
		return
	}
	w.Header().Set("Location", "/jobs/"+name+"/runs/"+record.ID)
	writeJSON(w, http.StatusAccepted, record)
}

// handleListRuns lists the runs of a job (GET /jobs/{name}/runs).
func (h *JobHandler) handleListRuns(w http.ResponseWriter, r *http.Request, name string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.ListRuns")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name))

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("pageSize"))
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20 // default and max page size
	}
	span.SetAttributes(attribute.Int("page", page), attribute.Int("page_size", pageSize))

	runs, err := h.runs.ListRuns(ctx, name, page, pageSize)
	if err != nil {
		h.writeError(w, "error listing runs", err)
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (h *JobHandler) handleGetRun(w http.ResponseWriter, r *http.Request, name, runID string) {
	ctx, span := h.tracer.Start(r.Context(), "handler.GetRun")
	defer span.End()
	span.SetAttributes(attribute.String("job.name", name), attribute.String("run.id", runID))

	run, err := h.runs.GetRun(ctx, name, runID)
	if err != nil {
		h.writeError(w, "error getting run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// handleCluster shows the workers with the ranks a run started now would assign (GET /cluster).
func (h *JobHandler) handleCluster(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	info, err := h.runs.Cluster(r.Context())
	if err != nil {
		h.writeError(w, "error reading cluster", err)
		return
	}

	resp := ClusterResponse{Workers: []WorkerWithRank{}}
	for _, a := range dispatch.Plan(info) {
		resp.Workers = append(resp.Workers, WorkerWithRank{
			Rank:    a.Rank,
			Address: a.Address,
			Host:    a.Host,
			ID:      info.Workers[a.Address].ID,
		})
	}
	resp.WorldSize = len(resp.Workers)
	if resp.WorldSize > 0 {
		resp.MasterHost = resp.Workers[0].Host
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *JobHandler) writeError(w http.ResponseWriter, msg string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrJobNotFound), errors.Is(err, domain.ErrRunNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrLockNotAcquired):
		status = http.StatusConflict
	case errors.Is(err, dispatch.ErrNoWorkers):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(msg, "error", err)
		http.Error(w, "Internal server error", status)
		return
	}
	h.logger.Warn(msg, "error", err)
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
