package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/vishnukl-alation/hive/internal/core/services/submission"
	"github.com/vishnukl-alation/hive/internal/handlers/response"
)

// HealthHandler reports whether the coordinator is serving
type HealthHandler struct {
	service     submission.ISubmissionService
	serviceName string
}

func NewHealthHandler(service submission.ISubmissionService, serviceName string) *HealthHandler {
	return &HealthHandler{
		service:     service,
		serviceName: serviceName,
	}
}

// RegisterRoutes registers the API routes for HealthHandler
func (h *HealthHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/healthz", h.Health).Methods("GET")
}

type HealthResponse struct {
	Status   string `json:"status"`
	Service  string `json:"service"`
	LiveJobs int    `json:"liveJobs"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	response.WriteSuccess(w, HealthResponse{
		Status:   "ok",
		Service:  h.serviceName,
		LiveJobs: h.service.Live(),
	})
}
