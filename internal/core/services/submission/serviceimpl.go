package submission

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/ports/secondary"
	"github.com/vishnukl-alation/hive/internal/core/services/client"
	"github.com/vishnukl-alation/hive/internal/core/services/job"
	"github.com/vishnukl-alation/hive/internal/domain"
	"github.com/vishnukl-alation/hive/internal/static/errs"
)

var _ ISubmissionService = &SubmissionService{}

const defaultListLimit = 100

// ConnectFunc opens a new client to the executor
type ConnectFunc func(ctx context.Context) (client.IRemoteClient, error)

// Option configures a SubmissionService
type Option func(*SubmissionService)

// WithJobRepository reads records of handles no longer held
func WithJobRepository(repo secondary.JobRepository) Option {
	return func(s *SubmissionService) {
		s.jobRepo = repo
	}
}

// WithReconnect redials the executor on the next submission after the
// channel was lost. Jobs in flight on the old channel are not resubmitted.
func WithReconnect(connect ConnectFunc) Option {
	return func(s *SubmissionService) {
		s.connect = connect
	}
}

// WithAwaitTimeout bounds AwaitJob when the caller gives no timeout
func WithAwaitTimeout(d time.Duration) Option {
	return func(s *SubmissionService) {
		s.awaitTimeout = d
	}
}

// WithRetention sets how long resolved handles stay in memory
func WithRetention(d time.Duration) Option {
	return func(s *SubmissionService) {
		s.retention = d
	}
}

// SubmissionService implements the ISubmissionService interface
type SubmissionService struct {
	codec        *codec.PayloadCodec
	logger       primary.Logger
	jobRepo      secondary.JobRepository
	connect      ConnectFunc
	awaitTimeout time.Duration
	retention    time.Duration

	connMu sync.Mutex
	client client.IRemoteClient

	mu      sync.Mutex
	handles map[uuid.UUID]*client.Handle
}

// NewSubmissionService creates a new submission service over a connected client
func NewSubmissionService(remote client.IRemoteClient, payloadCodec *codec.PayloadCodec, logger primary.Logger, opts ...Option) *SubmissionService {
	s := &SubmissionService{
		codec:        payloadCodec,
		logger:       logger,
		awaitTimeout: time.Minute,
		retention:    10 * time.Minute,
		client:       remote,
		handles:      make(map[uuid.UUID]*client.Handle),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SubmitQuery builds the status job of a compiled query and submits it
func (s *SubmissionService) SubmitQuery(ctx context.Context, req QueryRequest) (*domain.JobRecord, error) {
	if req.Work == nil {
		return nil, fmt.Errorf("%w: work is required", errs.ErrInvalidRequest)
	}
	if err := req.Work.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidRequest, err)
	}

	conf := domain.NewJobConf(req.Conf)
	if req.Query != "" {
		conf.Set(domain.JobNameKey, req.Query)
	}
	if req.QueryID != "" {
		conf.Set(domain.QueryIDKey, req.QueryID)
	}

	statusJob, err := job.NewStatusJob(s.codec, conf, domain.ScratchDir{Path: req.ScratchDir}, req.Work)
	if err != nil {
		s.logger.Error("Failed to serialize status job", "work", req.Work.Name, "error", err)
		return nil, err
	}
	return s.submit(ctx, statusJob)
}

func (s *SubmissionService) SubmitDriverInfo(ctx context.Context) (*domain.JobRecord, error) {
	return s.submit(ctx, job.DriverInfoJob{})
}

func (s *SubmissionService) submit(ctx context.Context, j primary.Job) (*domain.JobRecord, error) {
	remote, err := s.remote(ctx)
	if err != nil {
		return nil, err
	}

	h, err := remote.Submit(ctx, j)
	if err != nil {
		s.logger.Error("Failed to submit job", "kind", j.Kind(), "error", err)
		return nil, err
	}

	s.mu.Lock()
	s.handles[h.ID()] = h
	s.mu.Unlock()

	s.logger.Info("Job submitted", "jobId", h.ID(), "kind", h.Kind(), "group", h.TrackingTag().GroupID)
	return h.Record(), nil
}

// remote returns the current client, redialing once when its channel is gone
func (s *SubmissionService) remote(ctx context.Context) (client.IRemoteClient, error) {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.client != nil {
		select {
		case <-s.client.Done():
		default:
			return s.client, nil
		}
	}
	if s.connect == nil {
		if s.client == nil {
			return nil, &errs.ChannelError{}
		}
		return s.client, nil
	}

	s.logger.Warn("Executor channel lost, reconnecting")
	remote, err := s.connect(ctx)
	if err != nil {
		return nil, &errs.ChannelError{Err: err}
	}
	s.client = remote
	return remote, nil
}

func (s *SubmissionService) handle(id uuid.UUID) (*client.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	return h, ok
}

func (s *SubmissionService) GetJob(ctx context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	if h, ok := s.handle(id); ok {
		return h.Record(), nil
	}
	if s.jobRepo == nil {
		return nil, errs.ErrJobNotFound
	}
	rec, err := s.jobRepo.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, errs.ErrJobNotFound
	}
	return rec, nil
}

func (s *SubmissionService) ListGroup(ctx context.Context, groupID string, limit int) ([]*domain.JobRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if s.jobRepo != nil {
		return s.jobRepo.GetJobsByGroup(ctx, groupID, limit)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]*domain.JobRecord, 0)
	for _, h := range s.handles {
		if h.TrackingTag().GroupID == groupID {
			records = append(records, h.Record())
		}
	}
	sortNewestFirst(records)
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// AwaitJob returns the outcome of a finished job. A job failure is part of
// the outcome; the error is reserved for lookups and timeouts.
func (s *SubmissionService) AwaitJob(ctx context.Context, id uuid.UUID, timeout time.Duration) (*JobOutcome, error) {
	h, ok := s.handle(id)
	if !ok {
		rec, err := s.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		return s.outcome(rec)
	}

	if timeout <= 0 {
		timeout = s.awaitTimeout
	}
	awaitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := h.Await(awaitCtx); err != nil {
		var timeoutErr *errs.TimeoutError
		if errors.As(err, &timeoutErr) || errors.Is(err, context.Canceled) {
			return &JobOutcome{Job: h.Record()}, err
		}
	}
	return s.outcome(h.Record())
}

func (s *SubmissionService) outcome(rec *domain.JobRecord) (*JobOutcome, error) {
	out := &JobOutcome{Job: rec}
	if rec.Status != domain.JobStatusSucceeded {
		return out, nil
	}

	switch rec.Kind {
	case domain.JobKindStatus:
		var res domain.StatusResult
		if err := s.codec.DecodeResult(rec.Result, &res); err != nil {
			return nil, err
		}
		out.Status = &res
	case domain.JobKindDriverInfo:
		var info domain.DriverInfo
		if err := s.codec.DecodeResult(rec.Result, &info); err != nil {
			return nil, err
		}
		out.DriverInfo = &info
	}
	return out, nil
}

// CancelJob cancels a live handle. Cancelling a finished job is a no-op.
func (s *SubmissionService) CancelJob(ctx context.Context, id uuid.UUID) error {
	h, ok := s.handle(id)
	if !ok {
		_, err := s.GetJob(ctx, id)
		return err
	}
	if err := h.Cancel(ctx); err != nil {
		s.logger.Error("Failed to send cancel", "jobId", id, "error", err)
		return err
	}
	s.logger.Info("Job cancelled", "jobId", id)
	return nil
}

func (s *SubmissionService) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, h := range s.handles {
		rec := h.Record()
		if rec.CompletedAt == nil || now.Sub(*rec.CompletedAt) < s.retention {
			continue
		}
		delete(s.handles, id)
		n++
	}
	if n > 0 {
		s.logger.Debug("Swept resolved handles", "count", n)
	}
	return n
}

func (s *SubmissionService) Live() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.handles)
}

func sortNewestFirst(records []*domain.JobRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].SubmittedAt.After(records[j].SubmittedAt)
	})
}
