package defs

import (
	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/domain"
)

// Failure kinds reported in JobFailureData
const (
	FailureCodec       = "codec"
	FailureExecution   = "execution"
	FailureUnknownKind = "unknown_kind"
	FailurePanic       = "panic"
)

// Protocol data structures
type (
	// ClientHelloData opens a session with the executor
	ClientHelloData struct {
		ClientID string `json:"client_id"`
		Version  int    `json:"version"`
	}

	// ExecutorHelloData acknowledges the hello
	ExecutorHelloData struct {
		AppID             string `json:"app_id"`
		MaxConcurrentJobs int    `json:"max_concurrent_jobs"`
		Version           int    `json:"version"`
	}

	// SubmitJobData carries a job by kind and named payloads
	SubmitJobData struct {
		ID       uuid.UUID                 `json:"id"`
		Kind     domain.JobKind            `json:"kind"`
		Payloads map[string]domain.Payload `json:"payloads,omitempty"`
		Trace    map[string]string         `json:"trace,omitempty"`
	}

	// CancelJobData requests best effort cancellation
	CancelJobData struct {
		ID uuid.UUID `json:"id"`
	}

	// JobStartedData reports that the invocation began on the driver
	JobStartedData struct {
		ID uuid.UUID `json:"id"`
	}

	// JobResultData carries the encoded result of a successful job
	JobResultData struct {
		ID     uuid.UUID `json:"id"`
		Result []byte    `json:"result"`
	}

	// JobFailureData carries the failure of a job
	JobFailureData struct {
		ID    uuid.UUID `json:"id"`
		Kind  string    `json:"kind"`
		Error string    `json:"error"`
	}

	// JobCancelledData acknowledges a cancelled invocation
	JobCancelledData struct {
		ID uuid.UUID `json:"id"`
	}

	// ErrorData represents data sent with error responses
	ErrorData struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
)
