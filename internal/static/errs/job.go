package errs

import (
	"errors"
	"fmt"
)

var (
	ErrCodec               = errors.New("codec error")
	ErrJobExecution        = errors.New("job execution failed")
	ErrChannel             = errors.New("channel error")
	ErrTimeout             = errors.New("timed out waiting for job")
	ErrCancelled           = errors.New("job cancelled")
	ErrUnknownJobKind      = errors.New("unknown job kind")
	ErrDuplicateSubmission = errors.New("duplicate submission id")
	ErrClientClosed        = errors.New("client closed")
	ErrPayloadNotFound     = errors.New("payload not found")
	ErrJobNotFound         = errors.New("job not found")
	ErrInvalidRequest      = errors.New("invalid request")
)

// CodecError reports bytes that do not match the expected payload schema.
// It is local and never retryable.
type CodecError struct {
	PayloadType string
	Err         error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec error (%s): %v", e.PayloadType, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

func (e *CodecError) Is(target error) bool { return target == ErrCodec }

// JobExecutionError is the failure of a job's own logic, as reported by the executor
type JobExecutionError struct {
	SubmissionID string
	Kind         string
	Description  string
}

func (e *JobExecutionError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("job %s failed: %s", e.SubmissionID, e.Description)
	}
	return fmt.Sprintf("job %s failed (%s): %s", e.SubmissionID, e.Kind, e.Description)
}

func (e *JobExecutionError) Is(target error) bool { return target == ErrJobExecution }

// ChannelError means the transport was lost and the remote state of the job is unknown
type ChannelError struct {
	Err error
}

func (e *ChannelError) Error() string {
	if e.Err == nil {
		return "channel error: connection lost"
	}
	return fmt.Sprintf("channel error: %v", e.Err)
}

func (e *ChannelError) Unwrap() error { return e.Err }

func (e *ChannelError) Is(target error) bool { return target == ErrChannel }

// TimeoutError is returned by await only; the remote job keeps running
type TimeoutError struct {
	SubmissionID string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for job %s", e.SubmissionID)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// CancellationError acknowledges that a cancel request was issued. It does
// not guarantee the remote work stopped.
type CancellationError struct {
	SubmissionID string
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("job %s cancelled", e.SubmissionID)
}

func (e *CancellationError) Is(target error) bool { return target == ErrCancelled }
