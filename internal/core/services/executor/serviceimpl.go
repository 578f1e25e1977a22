package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/ports/secondary"
	"github.com/vishnukl-alation/hive/internal/core/services/job"
	"github.com/vishnukl-alation/hive/internal/core/services/jobcontext"
	"github.com/vishnukl-alation/hive/internal/domain"
	"github.com/vishnukl-alation/hive/internal/observability"
	"github.com/vishnukl-alation/hive/internal/static/errs"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

var ErrExecutorClosed = errors.New("executor is shutting down")

var _ IExecutorService = (*ExecutorService)(nil)

// Option configures an ExecutorService
type Option func(*ExecutorService)

// WithMaxConcurrentJobs bounds the number of invocations running at once
func WithMaxConcurrentJobs(n int) Option {
	return func(s *ExecutorService) {
		if n > 0 {
			s.maxConcurrent = n
		}
	}
}

// WithPayloadStore resolves payloads submitted by reference
func WithPayloadStore(store secondary.PayloadStore) Option {
	return func(s *ExecutorService) {
		s.payloadStore = store
	}
}

// WithTrackingRegistry publishes the tag of every running invocation
func WithTrackingRegistry(registry secondary.TrackingRegistry) Option {
	return func(s *ExecutorService) {
		s.tracking = registry
	}
}

// ExecutorService owns the shared driver and runs jobs against it
type ExecutorService struct {
	driver        secondary.Driver
	registry      *job.Registry
	codec         *codec.PayloadCodec
	logger        primary.Logger
	payloadStore  secondary.PayloadStore
	tracking      secondary.TrackingRegistry
	maxConcurrent int

	sem         chan struct{}
	mu          sync.Mutex
	invocations map[uuid.UUID]*invocation
	closed      bool
	wg          sync.WaitGroup
}

type invocation struct {
	id        uuid.UUID
	kind      domain.JobKind
	reporter  primary.JobReporter
	cancel    context.CancelFunc
	cancelled atomic.Bool
}

// NewExecutorService creates an executor bound to the driver for its lifetime
func NewExecutorService(
	driver secondary.Driver,
	registry *job.Registry,
	payloadCodec *codec.PayloadCodec,
	logger primary.Logger,
	opts ...Option,
) *ExecutorService {
	s := &ExecutorService{
		driver:        driver,
		registry:      registry,
		codec:         payloadCodec,
		logger:        logger,
		maxConcurrent: 8,
		invocations:   make(map[uuid.UUID]*invocation),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.sem = make(chan struct{}, s.maxConcurrent)
	return s
}

func (s *ExecutorService) AppID() string {
	return s.driver.AppID()
}

func (s *ExecutorService) MaxConcurrentJobs() int {
	return s.maxConcurrent
}

// Submit registers the invocation and starts it on its own goroutine
func (s *ExecutorService) Submit(ctx context.Context, sub Submission, reporter primary.JobReporter) error {
	if reporter == nil {
		return errors.New("reporter is required")
	}

	runCtx, cancel := context.WithCancel(observability.ExtractTrace(context.Background(), sub.Trace))
	inv := &invocation{
		id:       sub.ID,
		kind:     sub.Kind,
		reporter: reporter,
		cancel:   cancel,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		return ErrExecutorClosed
	}
	if _, exists := s.invocations[sub.ID]; exists {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("%w: %s", errs.ErrDuplicateSubmission, sub.ID)
	}
	s.invocations[sub.ID] = inv
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Job accepted", "submissionID", sub.ID, "kind", sub.Kind)
	go s.run(runCtx, inv, sub)
	return nil
}

// Cancel cancels an invocation on behalf of the reporter that submitted it.
// Requests for another reporter's invocation are ignored.
func (s *ExecutorService) Cancel(ctx context.Context, submissionID uuid.UUID, reporter primary.JobReporter) bool {
	s.mu.Lock()
	inv, ok := s.invocations[submissionID]
	s.mu.Unlock()
	if !ok {
		s.logger.Warn("Cancel requested for unknown job", "submissionID", submissionID)
		return false
	}
	if inv.reporter != reporter {
		s.logger.Warn("Cancel requested by a client that does not own the job", "submissionID", submissionID)
		return false
	}

	s.cancelInvocation(inv)
	return true
}

// cancelInvocation interrupts only the driver jobs of this invocation's
// scope. Other invocations may share its job group and keep running.
func (s *ExecutorService) cancelInvocation(inv *invocation) {
	if !inv.cancelled.CompareAndSwap(false, true) {
		return
	}

	inv.cancel()
	n := s.driver.CancelScope(inv.id.String())
	s.logger.Info("Cancelled job", "submissionID", inv.id, "driverJobs", n)
}

// Abandon cancels the invocations of a disconnected coordinator
func (s *ExecutorService) Abandon(reporter primary.JobReporter) int {
	s.mu.Lock()
	abandoned := make([]*invocation, 0)
	for _, inv := range s.invocations {
		if inv.reporter == reporter {
			abandoned = append(abandoned, inv)
		}
	}
	s.mu.Unlock()

	for _, inv := range abandoned {
		s.cancelInvocation(inv)
	}
	if len(abandoned) > 0 {
		s.logger.Warn("Abandoned jobs of disconnected client", "count", len(abandoned))
	}
	return len(abandoned)
}

func (s *ExecutorService) Running() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(s.invocations))
	for id := range s.invocations {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown refuses new work, cancels what is running and stops the driver
func (s *ExecutorService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	running := make([]*invocation, 0, len(s.invocations))
	for _, inv := range s.invocations {
		running = append(running, inv)
	}
	s.mu.Unlock()

	for _, inv := range running {
		s.cancelInvocation(inv)
	}

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
		s.logger.Warn("Shutdown timed out waiting for jobs", "running", len(s.Running()))
	}

	if err := s.driver.Stop(ctx); err != nil {
		return fmt.Errorf("failed to stop driver: %w", err)
	}
	return nil
}

func (s *ExecutorService) run(ctx context.Context, inv *invocation, sub Submission) {
	defer s.wg.Done()
	defer s.forget(inv)
	defer inv.cancel()

	select {
	case s.sem <- struct{}{}:
		defer func() { <-s.sem }()
	case <-ctx.Done():
		s.reportCancelled(inv)
		return
	}

	ctx, span := observability.StartSpan(ctx, "executor.run_job",
		attribute.String("job.id", inv.id.String()),
		attribute.String("job.kind", string(inv.kind)),
	)
	defer span.End()

	if err := inv.reporter.JobStarted(ctx, inv.id); err != nil {
		s.logger.Warn("Failed to report job start", "submissionID", inv.id, "error", err)
	}

	start := time.Now()
	value, failureKind, err := s.invoke(ctx, inv, sub)

	if inv.cancelled.Load() {
		span.SetAttributes(attribute.Bool("job.cancelled", true))
		s.reportCancelled(inv)
		return
	}

	if err == nil {
		result, encErr := s.codec.EncodeResult(value)
		if encErr != nil {
			failureKind, err = defs.FailureCodec, encErr
		} else {
			reportErr := inv.reporter.JobSucceeded(ctx, inv.id, result)
			if reportErr == nil {
				s.logger.Info("Job succeeded", "submissionID", inv.id, "kind", inv.kind, "duration", time.Since(start))
				return
			}
			if !errors.Is(reportErr, errs.ErrCodec) {
				s.logger.Error("Failed to report job result", "submissionID", inv.id, "error", reportErr)
				return
			}
			// the result could not be framed; the session is still usable
			failureKind, err = defs.FailureCodec, reportErr
		}
	}

	description := err.Error()
	if description == "" {
		description = "job failed without description"
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, description)
	var pe *panicError
	if errors.As(err, &pe) {
		s.logger.Error("Job panicked", "submissionID", inv.id, "stack", string(pe.stack))
	}
	s.logger.Error("Job failed", "submissionID", inv.id, "kind", inv.kind, "failure", failureKind, "error", description)
	if err := inv.reporter.JobFailed(ctx, inv.id, failureKind, description); err != nil {
		s.logger.Error("Failed to report job failure", "submissionID", inv.id, "error", err)
	}
}

// invoke rebuilds the job and calls it inside a scoped context
func (s *ExecutorService) invoke(ctx context.Context, inv *invocation, sub Submission) (any, string, error) {
	payloads, err := s.resolvePayloads(ctx, sub.Payloads)
	if err != nil {
		return nil, defs.FailureCodec, err
	}

	j, err := s.registry.Build(sub.Kind, payloads)
	if err != nil {
		return nil, classify(err), err
	}

	jc := &trackedContext{
		JobContext: jobcontext.New(s.driver, inv.id.String()),
		service:    s,
		inv:        inv,
		ctx:        ctx,
	}
	defer jc.Release()
	defer jc.untrack()

	value, err := callJob(ctx, j, jc)
	if err != nil {
		return nil, classify(err), err
	}
	return value, "", nil
}

type panicError struct {
	value any
	stack []byte
}

func (e *panicError) Error() string {
	return fmt.Sprintf("job panicked: %v", e.value)
}

func callJob(ctx context.Context, j primary.Job, jc primary.JobContext) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return j.Call(ctx, jc)
}

func classify(err error) string {
	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return defs.FailurePanic
	case errors.Is(err, errs.ErrUnknownJobKind):
		return defs.FailureUnknownKind
	case errors.Is(err, errs.ErrCodec):
		return defs.FailureCodec
	default:
		return defs.FailureExecution
	}
}

func (s *ExecutorService) resolvePayloads(ctx context.Context, payloads map[string]domain.Payload) (map[string]domain.Payload, error) {
	resolved := make(map[string]domain.Payload, len(payloads))
	for name, p := range payloads {
		if !p.IsRef() {
			resolved[name] = p
			continue
		}
		if s.payloadStore == nil {
			return nil, &errs.CodecError{PayloadType: string(p.Type), Err: fmt.Errorf("%w: no payload store for ref %s", errs.ErrPayloadNotFound, p.Ref)}
		}
		data, err := s.payloadStore.Get(ctx, p.Ref)
		if err != nil {
			return nil, &errs.CodecError{PayloadType: string(p.Type), Err: err}
		}
		resolved[name] = domain.Payload{Type: p.Type, Data: data}
	}
	return resolved, nil
}

func (s *ExecutorService) reportCancelled(inv *invocation) {
	s.logger.Info("Job cancelled", "submissionID", inv.id)
	if err := inv.reporter.JobCancelled(context.Background(), inv.id); err != nil {
		s.logger.Warn("Failed to report job cancellation", "submissionID", inv.id, "error", err)
	}
}

func (s *ExecutorService) forget(inv *invocation) {
	s.mu.Lock()
	delete(s.invocations, inv.id)
	s.mu.Unlock()
}

// trackedContext publishes the tag to the tracking registry as soon as the
// job sets its group
type trackedContext struct {
	*jobcontext.JobContext
	service *ExecutorService
	inv     *invocation
	ctx     context.Context
	groupID string
}

func (c *trackedContext) SetJobGroup(groupID, description string, interruptOnCancel bool) {
	c.JobContext.SetJobGroup(groupID, description, interruptOnCancel)

	tracking := c.service.tracking
	if tracking == nil {
		return
	}
	if c.groupID != "" && c.groupID != groupID {
		c.untrack()
	}
	c.groupID = groupID
	record := domain.TrackingRecord{
		SubmissionID: c.inv.id.String(),
		Kind:         c.inv.kind,
		AppID:        c.service.driver.AppID(),
		Tag:          domain.TrackingTag{Description: description, GroupID: groupID},
		Status:       domain.JobStatusRunning,
		StartedAt:    time.Now().UTC(),
	}
	if err := tracking.Publish(c.ctx, record); err != nil {
		c.service.logger.Warn("Failed to publish tracking record", "submissionID", c.inv.id, "error", err)
	}
}

func (c *trackedContext) untrack() {
	if c.service.tracking == nil || c.groupID == "" {
		return
	}
	if err := c.service.tracking.Remove(context.Background(), c.inv.id.String(), c.groupID); err != nil {
		c.service.logger.Warn("Failed to remove tracking record", "submissionID", c.inv.id, "error", err)
	}
	c.groupID = ""
}
