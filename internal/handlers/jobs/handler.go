package jobs

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/services/submission"
	"github.com/vishnukl-alation/hive/internal/handlers/response"
	"github.com/vishnukl-alation/hive/internal/static/errs"
)

// JobHandler handles job API requests
type JobHandler struct {
	service submission.ISubmissionService
	logger  primary.Logger
}

var _ submission.ISubmissionService = &submission.SubmissionService{}

// NewJobHandler creates a new job handler
func NewJobHandler(service submission.ISubmissionService, logger primary.Logger) *JobHandler {
	return &JobHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers the API routes for JobHandler
func (h *JobHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/jobs", h.CreateJob).Methods("POST")
	router.HandleFunc("/api/jobs", h.ListJobs).Methods("GET")
	router.HandleFunc("/api/driver/info", h.DriverInfo).Methods("POST")
	router.HandleFunc("/api/jobs/{jobId}", h.GetJob).Methods("GET")
	router.HandleFunc("/api/jobs/{jobId}/result", h.GetResult).Methods("GET")
	router.HandleFunc("/api/jobs/{jobId}/cancel", h.CancelJob).Methods("POST")
}

// CreateJob handles query submission requests
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode request", "error", err)
		response.WriteError(w, response.ErrorMessage{Message: "Invalid request", StatusCode: http.StatusBadRequest})
		return
	}

	rec, err := h.service.SubmitQuery(r.Context(), submission.QueryRequest{
		Query:      req.Query,
		QueryID:    req.QueryID,
		Conf:       req.Conf,
		ScratchDir: req.ScratchDir,
		Work:       req.Work,
	})
	if err != nil {
		h.writeError(w, "Failed to submit job", err)
		return
	}

	response.WriteStatus(w, http.StatusAccepted, rec)
}

// DriverInfo submits a driver-info job
func (h *JobHandler) DriverInfo(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.SubmitDriverInfo(r.Context())
	if err != nil {
		h.writeError(w, "Failed to submit job", err)
		return
	}
	response.WriteStatus(w, http.StatusAccepted, rec)
}

// ListJobs returns the jobs of the group given by ?group=
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	groupID := r.URL.Query().Get("group")
	if groupID == "" {
		response.WriteError(w, response.ErrorMessage{Message: "group is required", StatusCode: http.StatusBadRequest})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	jobs, err := h.service.ListGroup(r.Context(), groupID, limit)
	if err != nil {
		h.writeError(w, "Failed to list jobs", err)
		return
	}
	response.WriteSuccess(w, ListJobsResponse{GroupID: groupID, Jobs: jobs})
}

// GetJob handles job retrieval requests
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	rec, err := h.service.GetJob(r.Context(), jobID)
	if err != nil {
		h.writeError(w, "Failed to get job", err)
		return
	}
	response.WriteSuccess(w, rec)
}

// GetResult waits up to ?timeout= for the job. A job still running when
// the timeout expires is answered with 202 and its current record.
func (h *JobHandler) GetResult(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	var timeout time.Duration
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			response.WriteError(w, response.ErrorMessage{Message: "Invalid timeout", StatusCode: http.StatusBadRequest})
			return
		}
		timeout = d
	}

	out, err := h.service.AwaitJob(r.Context(), jobID, timeout)
	if errors.Is(err, errs.ErrTimeout) {
		response.WriteStatus(w, http.StatusAccepted, out)
		return
	}
	if err != nil {
		h.writeError(w, "Failed to get job result", err)
		return
	}
	response.WriteSuccess(w, out)
}

// CancelJob handles job cancellation requests
func (h *JobHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, ok := h.jobID(w, r)
	if !ok {
		return
	}

	if err := h.service.CancelJob(r.Context(), jobID); err != nil {
		h.writeError(w, "Failed to cancel job", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *JobHandler) jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	jobIDStr := mux.Vars(r)["jobId"]
	jobID, err := uuid.Parse(jobIDStr)
	if err != nil {
		h.logger.Error("Invalid job ID", "id", jobIDStr)
		response.WriteError(w, response.ErrorMessage{Message: "Invalid job ID", StatusCode: http.StatusBadRequest})
		return uuid.Nil, false
	}
	return jobID, true
}

func (h *JobHandler) writeError(w http.ResponseWriter, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrJobNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrChannel):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		h.logger.Error(message, "error", err)
	}
	response.WriteError(w, response.ErrorMessage{Message: message + ": " + err.Error(), StatusCode: status})
}
