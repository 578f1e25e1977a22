package secondary

import (
	"context"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/domain"
)

type JobRepository interface {
	// SaveJob inserts or updates a job record
	SaveJob(ctx context.Context, job *domain.JobRecord) error

	// GetJob retrieves a job record by submission ID
	GetJob(ctx context.Context, jobID uuid.UUID) (*domain.JobRecord, error)

	// GetJobsByGroup retrieves the records sharing a tracking group id
	GetJobsByGroup(ctx context.Context, groupID string, limit int) ([]*domain.JobRecord, error)
}
