package primary

import (
	"context"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/domain"
)

// Job is a unit of work shipped to the executor as named payloads and
// invoked exactly once against a JobContext.
type Job interface {
	Kind() domain.JobKind
	Payloads() map[string]domain.Payload
	Call(ctx context.Context, jc JobContext) (any, error)
}

// JobContext is the per-invocation view of the executor's shared driver.
// Property writes are scoped to the invocation and visible to the driver
// as soon as the call returns.
type JobContext interface {
	SharedDriver() DriverHandle
	SetLocalProperty(key, value string)
	LocalProperty(key string) string
	SetJobGroup(groupID, description string, interruptOnCancel bool)
	SetJobDescription(description string)
	ScopeID() string
}

// DriverHandle is the read/execute surface of the shared driver handed to jobs
type DriverHandle interface {
	AppID() string
	DefaultParallelism() int
	RunJob(ctx context.Context, work *domain.SparkWork) (int, error)
	LocalProperty(key string) string
}

// JobReporter carries terminal and progress envelopes back to the submitter
type JobReporter interface {
	JobStarted(ctx context.Context, submissionID uuid.UUID) error
	JobSucceeded(ctx context.Context, submissionID uuid.UUID, result []byte) error
	JobFailed(ctx context.Context, submissionID uuid.UUID, kind string, description string) error
	JobCancelled(ctx context.Context, submissionID uuid.UUID) error
}
