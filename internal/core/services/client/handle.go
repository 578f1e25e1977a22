package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/domain"
	"github.com/vishnukl-alation/hive/internal/static/errs"
)

// Handle is the coordinator-side view of one submission. Its terminal state
// is fixed exactly once.
type Handle struct {
	id          uuid.UUID
	kind        domain.JobKind
	tag         domain.TrackingTag
	submittedAt time.Time
	refs        []string
	client      *RemoteClient

	mu        sync.Mutex
	status    domain.JobStatus
	startedAt *time.Time
	endedAt   *time.Time
	result    []byte
	err       error
	done      chan struct{}
}

func newHandle(c *RemoteClient, id uuid.UUID, kind domain.JobKind, tag domain.TrackingTag) *Handle {
	return &Handle{
		id:          id,
		kind:        kind,
		tag:         tag,
		submittedAt: time.Now(),
		client:      c,
		status:      domain.JobStatusPending,
		done:        make(chan struct{}),
	}
}

func (h *Handle) ID() uuid.UUID {
	return h.id
}

func (h *Handle) Kind() domain.JobKind {
	return h.kind
}

func (h *Handle) TrackingTag() domain.TrackingTag {
	return h.tag
}

func (h *Handle) Status() domain.JobStatus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Done is closed when the handle reaches a terminal state
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the terminal error, nil while pending or after success
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Await blocks until the handle resolves or ctx ends. A deadline yields a
// TimeoutError; the remote job keeps running.
func (h *Handle) Await(ctx context.Context) ([]byte, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.result, h.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &errs.TimeoutError{SubmissionID: h.id.String()}
		}
		return nil, ctx.Err()
	}
}

// AwaitTimeout waits at most d. A non-positive d waits until resolution or
// channel failure.
func (h *Handle) AwaitTimeout(d time.Duration) ([]byte, error) {
	if d <= 0 {
		return h.Await(context.Background())
	}
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	return h.Await(ctx)
}

// Cancel fixes the handle as cancelled and asks the executor to stop the
// job. It is a no-op on a resolved handle.
func (h *Handle) Cancel(ctx context.Context) error {
	if !h.resolve(domain.JobStatusCancelled, nil, &errs.CancellationError{SubmissionID: h.id.String()}) {
		return nil
	}
	return h.client.cancel(ctx, h)
}

// Record returns the persisted view of the handle
func (h *Handle) Record() *domain.JobRecord {
	h.mu.Lock()
	defer h.mu.Unlock()

	rec := domain.NewJobRecord(h.id, h.kind, h.tag)
	rec.SubmittedAt = h.submittedAt
	rec.Status = h.status
	rec.StartedAt = h.startedAt
	rec.Result = h.result
	if h.err != nil {
		rec.Error = h.err.Error()
	}
	rec.CompletedAt = h.endedAt
	return rec
}

func (h *Handle) markRunning() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status != domain.JobStatusPending {
		return false
	}
	now := time.Now()
	h.status = domain.JobStatusRunning
	h.startedAt = &now
	return true
}

// resolve sets the terminal state once and reports whether it did
func (h *Handle) resolve(status domain.JobStatus, result []byte, err error) bool {
	h.mu.Lock()
	if h.status.IsTerminal() {
		h.mu.Unlock()
		return false
	}
	now := time.Now()
	h.status = status
	h.endedAt = &now
	h.result = result
	h.err = err
	h.mu.Unlock()

	h.client.resolved(h)
	close(h.done)
	return true
}
