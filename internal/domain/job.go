package domain

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus represents the status of a submitted job
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is possible
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// JobKind identifies a job implementation registered on the executor
type JobKind string

const (
	JobKindStatus     JobKind = "status"
	JobKindDriverInfo JobKind = "driver-info"
)

// JobRecord is the coordinator's persisted view of one submission
type JobRecord struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	Kind        JobKind    `db:"kind" json:"kind"`
	Status      JobStatus  `db:"status" json:"status"`
	Description string     `db:"description" json:"description,omitempty"`
	GroupID     string     `db:"group_id" json:"groupId,omitempty"`
	Error       string     `db:"error" json:"error,omitempty"`
	Result      []byte     `db:"result" json:"-"`
	SubmittedAt time.Time  `db:"submitted_at" json:"submittedAt"`
	StartedAt   *time.Time `db:"started_at" json:"startedAt,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completedAt,omitempty"`
}

type JobRecordTable struct {
	ID          string
	Kind        string
	Status      string
	Description string
	GroupID     string
	Error       string
	Result      string
	SubmittedAt string
	StartedAt   string
	CompletedAt string
}

func GetJobRecordTable() JobRecordTable {
	return JobRecordTable{
		ID:          "id",
		Kind:        "kind",
		Status:      "status",
		Description: "description",
		GroupID:     "group_id",
		Error:       "error",
		Result:      "result",
		SubmittedAt: "submitted_at",
		StartedAt:   "started_at",
		CompletedAt: "completed_at",
	}
}

func (JobRecordTable) TableName() string {
	return "remote_jobs"
}

// NewJobRecord creates a pending record for a fresh submission
func NewJobRecord(id uuid.UUID, kind JobKind, tag TrackingTag) *JobRecord {
	return &JobRecord{
		ID:          id,
		Kind:        kind,
		Status:      JobStatusPending,
		Description: tag.Description,
		GroupID:     tag.GroupID,
		SubmittedAt: time.Now(),
	}
}

// StatusResult is returned by a status job once its work was run on the driver
type StatusResult struct {
	QueryID      string `json:"queryId"`
	DriverJobIDs []int  `json:"driverJobIds"`
	ScratchDir   string `json:"scratchDir"`
}

// DriverInfo describes the shared driver an executor owns
type DriverInfo struct {
	AppID              string `json:"appId"`
	DefaultParallelism int    `json:"defaultParallelism"`
}
