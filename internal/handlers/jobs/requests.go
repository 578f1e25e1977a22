package jobs

import "github.com/vishnukl-alation/hive/internal/domain"

// CreateJobRequest represents a request to run a compiled query
type CreateJobRequest struct {
	Query      string            `json:"query"`
	QueryID    string            `json:"queryId"`
	Conf       map[string]string `json:"conf"`
	ScratchDir string            `json:"scratchDir"`
	Work       *domain.SparkWork `json:"work"`
}

// ListJobsResponse represents the jobs of a tracking group
type ListJobsResponse struct {
	GroupID string              `json:"groupId"`
	Jobs    []*domain.JobRecord `json:"jobs"`
}
