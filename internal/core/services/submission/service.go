package submission

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/domain"
)

// QueryRequest carries a compiled query to run as a status job
type QueryRequest struct {
	Query      string
	QueryID    string
	Conf       map[string]string
	ScratchDir string
	Work       *domain.SparkWork
}

// JobOutcome is the record of a job plus its decoded result once it succeeded
type JobOutcome struct {
	Job        *domain.JobRecord    `json:"job"`
	Status     *domain.StatusResult `json:"status,omitempty"`
	DriverInfo *domain.DriverInfo   `json:"driverInfo,omitempty"`
}

// ISubmissionService is the coordinator's entry point for remote jobs
type ISubmissionService interface {
	// SubmitQuery ships a status job for the query and returns its pending record
	SubmitQuery(ctx context.Context, req QueryRequest) (*domain.JobRecord, error)

	// SubmitDriverInfo asks the executor to describe its shared driver
	SubmitDriverInfo(ctx context.Context) (*domain.JobRecord, error)

	// GetJob returns the live or persisted record of a submission
	GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error)

	// ListGroup returns the submissions sharing a tracking group id
	ListGroup(ctx context.Context, groupID string, limit int) ([]*domain.JobRecord, error)

	// AwaitJob waits at most timeout for the job to finish
	AwaitJob(ctx context.Context, id uuid.UUID, timeout time.Duration) (*JobOutcome, error)

	// CancelJob requests cancellation of a live submission
	CancelJob(ctx context.Context, id uuid.UUID) error

	// Sweep forgets handles that resolved before the retention window
	Sweep(now time.Time) int

	// Live returns the number of handles still held
	Live() int
}
