package executor

import (
	"context"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/domain"
)

// Submission is a job as received from a coordinator
type Submission struct {
	ID       uuid.UUID
	Kind     domain.JobKind
	Payloads map[string]domain.Payload
	Trace    map[string]string
}

// IExecutorService runs submitted jobs against the shared driver
type IExecutorService interface {
	// Submit accepts a job and runs it asynchronously. Exactly one terminal
	// envelope is later sent through the reporter.
	Submit(ctx context.Context, sub Submission, reporter primary.JobReporter) error

	// Cancel interrupts a running invocation owned by reporter, best effort
	Cancel(ctx context.Context, submissionID uuid.UUID, reporter primary.JobReporter) bool

	// Abandon cancels every invocation reporting through reporter
	Abandon(reporter primary.JobReporter) int

	// Running returns the ids of the active invocations
	Running() []uuid.UUID

	AppID() string
	MaxConcurrentJobs() int

	// Shutdown cancels active invocations and stops the driver
	Shutdown(ctx context.Context) error
}
