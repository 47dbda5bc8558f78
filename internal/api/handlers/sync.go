package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/dvloznov/align/internal/api/middleware"
	"github.com/dvloznov/align/internal/dashboard"
	"github.com/dvloznov/align/internal/export"
	"github.com/dvloznov/align/internal/jobs"
)

// SyncHandler handles sync requests.
type SyncHandler struct {
	store     *dashboard.Store
	publisher jobs.Publisher
	log       zerolog.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(store *dashboard.Store, publisher jobs.Publisher, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		store:     store,
		publisher: publisher,
		log:       log,
	}
}

// RequestSync handles POST /api/sync
func (h *SyncHandler) RequestSync(w http.ResponseWriter, r *http.Request) {
	if h.store.Syncing() {
		middleware.WriteError(w, http.StatusConflict, dashboard.ErrSyncInProgress.Error())
		return
	}

	job := &jobs.SyncJob{Trigger: jobs.TriggerAPI}
	if err := h.publisher.PublishSync(r.Context(), job); err != nil {
		if errors.Is(err, jobs.ErrSyncQueued) {
			middleware.WriteError(w, http.StatusConflict, dashboard.ErrSyncInProgress.Error())
			return
		}
		h.log.Error().Err(err).Msg("Failed to enqueue sync job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue sync")
		return
	}

	h.log.Info().Str("job_id", job.JobID).Msg("Sync job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetSync handles GET /api/sync
func (h *SyncHandler) GetSync(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"syncing": h.store.Syncing(),
		"phase":   h.store.Phase(),
	})
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
	log   zerolog.Logger
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore, log zerolog.Logger) *JobsHandler {
	return &JobsHandler{
		store: store,
		log:   log,
	}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil {
		h.log.Debug().Err(err).Str("job_id", jobID).Msg("Job lookup failed")
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Parse query parameters
	query := r.URL.Query()
	filter := jobs.JobFilter{
		Trigger: jobs.Trigger(query.Get("trigger")),
		Status:  jobs.JobStatus(query.Get("status")),
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			filter.Limit = limit
		}
	}

	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// Exporter runs the configured export sinks.
type Exporter interface {
	Enabled() bool
	Export(ctx context.Context, state dashboard.State) (*export.Report, error)
}

// ExportHandler handles export requests.
type ExportHandler struct {
	store    *dashboard.Store
	exporter Exporter
	log      zerolog.Logger
}

// NewExportHandler creates a new export handler.
func NewExportHandler(store *dashboard.Store, exporter Exporter, log zerolog.Logger) *ExportHandler {
	return &ExportHandler{
		store:    store,
		exporter: exporter,
		log:      log,
	}
}

// RunExport handles POST /api/export
func (h *ExportHandler) RunExport(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil || !h.exporter.Enabled() {
		middleware.WriteError(w, http.StatusServiceUnavailable, "No export sinks configured")
		return
	}

	report, err := h.exporter.Export(r.Context(), h.store.Snapshot())
	if err != nil {
		h.log.Warn().Err(err).Msg("Export finished with failures")
		middleware.WriteJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":  err.Error(),
			"report": report,
		})
		return
	}

	middleware.WriteJSON(w, http.StatusOK, report)
}
