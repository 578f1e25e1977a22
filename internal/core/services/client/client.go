package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/ports/secondary"
	"github.com/vishnukl-alation/hive/internal/domain"
	"github.com/vishnukl-alation/hive/internal/observability"
	"github.com/vishnukl-alation/hive/internal/static/errs"
	"github.com/vishnukl-alation/hive/internal/tcp/channel"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

var _ IRemoteClient = (*RemoteClient)(nil)

// Option configures a RemoteClient
type Option func(*RemoteClient)

// WithClientID sets the id announced in the hello
func WithClientID(id string) Option {
	return func(c *RemoteClient) {
		c.clientID = id
	}
}

// WithPayloadStore ships payloads larger than threshold bytes by reference
func WithPayloadStore(store secondary.PayloadStore, threshold int) Option {
	return func(c *RemoteClient) {
		c.payloadStore = store
		c.refThreshold = threshold
	}
}

// WithJobRepository records every submission and its terminal state
func WithJobRepository(repo secondary.JobRepository) Option {
	return func(c *RemoteClient) {
		c.jobRepo = repo
	}
}

type tracked interface {
	TrackingTag() domain.TrackingTag
}

// RemoteClient submits jobs over one channel and demultiplexes the
// envelopes coming back by submission id
type RemoteClient struct {
	ch           channel.Channel
	codec        *codec.PayloadCodec
	logger       primary.Logger
	clientID     string
	payloadStore secondary.PayloadStore
	refThreshold int
	jobRepo      secondary.JobRepository

	mu       sync.Mutex
	pending  map[uuid.UUID]*Handle
	closed   bool
	closeErr error

	hello    defs.ExecutorHelloData
	helloCh  chan struct{}
	helloErr error
	done     chan struct{}
}

// NewRemoteClient says hello to the executor over ch and starts
// dispatching. It returns once the executor answered.
func NewRemoteClient(ctx context.Context, ch channel.Channel, payloadCodec *codec.PayloadCodec, logger primary.Logger, opts ...Option) (*RemoteClient, error) {
	c := &RemoteClient{
		ch:       ch,
		codec:    payloadCodec,
		logger:   logger,
		clientID: uuid.NewString(),
		pending:  make(map[uuid.UUID]*Handle),
		helloCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.dispatchLoop()

	hello := defs.ClientHelloData{ClientID: c.clientID, Version: defs.ProtocolVersion}
	if err := channel.SendJSON(ch, defs.MsgClientHello, hello); err != nil {
		_ = ch.Close()
		return nil, &errs.ChannelError{Err: err}
	}

	select {
	case <-c.helloCh:
		if c.helloErr != nil {
			_ = ch.Close()
			return nil, c.helloErr
		}
	case <-c.done:
		return nil, c.terminalErr()
	case <-ctx.Done():
		_ = ch.Close()
		return nil, fmt.Errorf("waiting for executor hello: %w", ctx.Err())
	}

	logger.Info("Connected to remote executor", "clientID", c.clientID, "appID", c.hello.AppID, "maxConcurrentJobs", c.hello.MaxConcurrentJobs)
	return c, nil
}

func (c *RemoteClient) Executor() defs.ExecutorHelloData {
	return c.hello
}

func (c *RemoteClient) Done() <-chan struct{} {
	return c.done
}

// Submit assigns a submission id, registers the pending handle and only
// then sends the job
func (c *RemoteClient) Submit(ctx context.Context, job primary.Job) (*Handle, error) {
	if err := c.terminalErrIfClosed(); err != nil {
		return nil, err
	}

	id := uuid.New()
	ctx, span := observability.StartSpan(ctx, "client.submit_job",
		attribute.String("job.id", id.String()),
		attribute.String("job.kind", string(job.Kind())),
	)
	defer span.End()

	var tag domain.TrackingTag
	if t, ok := job.(tracked); ok {
		tag = t.TrackingTag()
	}
	h := newHandle(c, id, job.Kind(), tag)

	payloads, err := c.offload(ctx, h, job.Payloads())
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		c.deleteRefs(h.refs)
		return nil, c.terminalErr()
	}
	c.pending[id] = h
	c.mu.Unlock()

	c.record(ctx, h)

	data := defs.SubmitJobData{
		ID:       id,
		Kind:     job.Kind(),
		Payloads: payloads,
		Trace:    observability.InjectTrace(ctx),
	}
	if err := channel.SendJSON(c.ch, defs.MsgSubmitJob, data); err != nil {
		span.RecordError(err)
		if errors.Is(err, errs.ErrCodec) {
			// nothing was written; only this submission fails
			h.resolve(domain.JobStatusFailed, nil, err)
			return nil, err
		}
		chErr := &errs.ChannelError{Err: err}
		h.resolve(domain.JobStatusFailed, nil, chErr)
		return nil, chErr
	}

	c.logger.Debug("Job submitted", "submissionID", id, "kind", job.Kind(), "groupID", tag.GroupID)
	return h, nil
}

// offload replaces payloads above the threshold by store references
func (c *RemoteClient) offload(ctx context.Context, h *Handle, payloads map[string]domain.Payload) (map[string]domain.Payload, error) {
	if c.payloadStore == nil || c.refThreshold <= 0 {
		return payloads, nil
	}

	out := make(map[string]domain.Payload, len(payloads))
	for name, p := range payloads {
		if p.Size() <= c.refThreshold {
			out[name] = p
			continue
		}
		ref, err := c.payloadStore.Put(ctx, h.id.String(), name, p.Data)
		if err != nil {
			c.deleteRefs(h.refs)
			return nil, fmt.Errorf("failed to store payload %s: %w", name, err)
		}
		h.refs = append(h.refs, ref)
		out[name] = domain.Payload{Type: p.Type, Ref: ref}
	}
	return out, nil
}

func (c *RemoteClient) Lookup(id uuid.UUID) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.pending[id]
	return h, ok
}

func (c *RemoteClient) Pending() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]uuid.UUID, 0, len(c.pending))
	for id := range c.pending {
		ids = append(ids, id)
	}
	return ids
}

// Close terminates the channel. Pending handles fail with a ChannelError.
func (c *RemoteClient) Close() error {
	c.mu.Lock()
	if c.closeErr == nil {
		c.closeErr = errs.ErrClientClosed
	}
	c.mu.Unlock()

	err := c.ch.Close()
	<-c.done
	return err
}

func (c *RemoteClient) cancel(ctx context.Context, h *Handle) error {
	if err := c.terminalErrIfClosed(); err != nil {
		return nil
	}
	if err := channel.SendJSON(c.ch, defs.MsgCancelJob, defs.CancelJobData{ID: h.id}); err != nil {
		c.logger.Warn("Failed to send cancel request", "submissionID", h.id, "error", err)
		return &errs.ChannelError{Err: err}
	}
	c.logger.Info("Cancel requested", "submissionID", h.id)
	return nil
}

// resolved is called exactly once per handle after its terminal state is fixed
func (c *RemoteClient) resolved(h *Handle) {
	c.mu.Lock()
	if current, ok := c.pending[h.id]; ok && current == h {
		delete(c.pending, h.id)
	}
	c.mu.Unlock()

	c.deleteRefs(h.refs)
	c.record(context.Background(), h)
}

func (c *RemoteClient) record(ctx context.Context, h *Handle) {
	if c.jobRepo == nil {
		return
	}
	if err := c.jobRepo.SaveJob(ctx, h.Record()); err != nil {
		c.logger.Warn("Failed to record job", "submissionID", h.id, "error", err)
	}
}

func (c *RemoteClient) deleteRefs(refs []string) {
	if c.payloadStore == nil || len(refs) == 0 {
		return
	}
	if err := c.payloadStore.Delete(context.Background(), refs...); err != nil {
		c.logger.Warn("Failed to delete offloaded payloads", "refs", refs, "error", err)
	}
}

func (c *RemoteClient) terminalErrIfClosed() error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return c.terminalErr()
	}
	return nil
}

func (c *RemoteClient) terminalErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &errs.ChannelError{Err: c.closeErr}
}

func (c *RemoteClient) dispatchLoop() {
	for msg := range c.ch.Receive() {
		c.dispatch(msg)
	}

	reason := c.ch.Err()
	c.mu.Lock()
	if c.closeErr == nil {
		c.closeErr = reason
	}
	c.closed = true
	orphans := make([]*Handle, 0, len(c.pending))
	for _, h := range c.pending {
		orphans = append(orphans, h)
	}
	chErr := &errs.ChannelError{Err: c.closeErr}
	c.mu.Unlock()

	if len(orphans) > 0 {
		c.logger.Error("Channel to executor lost, failing pending jobs", "pending", len(orphans), "error", chErr)
	}
	for _, h := range orphans {
		h.resolve(domain.JobStatusFailed, nil, chErr)
	}
	close(c.done)
}

func (c *RemoteClient) dispatch(msg defs.Message) {
	switch msg.Type {
	case defs.MsgExecutorHello:
		var data defs.ExecutorHelloData
		if err := json.Unmarshal(msg.Payload, &data); err != nil {
			c.finishHello(fmt.Errorf("invalid executor hello: %w", err))
			return
		}
		c.hello = data
		c.finishHello(nil)

	case defs.MsgJobStarted:
		var data defs.JobStartedData
		if h, ok := c.envelopeHandle(msg, &data, func() uuid.UUID { return data.ID }); ok {
			h.markRunning()
			c.record(context.Background(), h)
		}

	case defs.MsgJobResult:
		var data defs.JobResultData
		if h, ok := c.envelopeHandle(msg, &data, func() uuid.UUID { return data.ID }); ok {
			c.settle(h, defs.MessageName(msg.Type), domain.JobStatusSucceeded, data.Result, nil)
		}

	case defs.MsgJobFailure:
		var data defs.JobFailureData
		if h, ok := c.envelopeHandle(msg, &data, func() uuid.UUID { return data.ID }); ok {
			c.settle(h, defs.MessageName(msg.Type), domain.JobStatusFailed, nil, failureError(data))
		}

	case defs.MsgJobCancelled:
		var data defs.JobCancelledData
		if h, ok := c.envelopeHandle(msg, &data, func() uuid.UUID { return data.ID }); ok {
			c.settle(h, defs.MessageName(msg.Type), domain.JobStatusCancelled, nil, &errs.CancellationError{SubmissionID: data.ID.String()})
		}

	case defs.MsgError:
		var data defs.ErrorData
		if err := json.Unmarshal(msg.Payload, &data); err != nil {
			c.logger.Error("Invalid error message from executor", "error", err)
			return
		}
		c.logger.Error("Executor reported an error", "code", data.Code, "message", data.Message)
		c.finishHello(fmt.Errorf("executor refused session: %s (code %d)", data.Message, data.Code))

	default:
		c.logger.Warn("Discarding unknown message", "type", msg.Type)
	}
}

func (c *RemoteClient) finishHello(err error) {
	select {
	case <-c.helloCh:
		return
	default:
	}
	c.helloErr = err
	close(c.helloCh)
}

// envelopeHandle decodes an envelope and finds the pending handle it
// addresses. Unmatched envelopes are logged and dropped.
func (c *RemoteClient) envelopeHandle(msg defs.Message, data any, id func() uuid.UUID) (*Handle, bool) {
	name := defs.MessageName(msg.Type)
	if err := json.Unmarshal(msg.Payload, data); err != nil {
		c.logger.Error("Discarding malformed envelope", "type", name, "error", err)
		return nil, false
	}

	submissionID := id()
	h, ok := c.Lookup(submissionID)
	if !ok {
		c.logger.Warn("Discarding unmatched envelope", "type", name, "submissionID", submissionID)
		return nil, false
	}
	return h, true
}

func (c *RemoteClient) settle(h *Handle, envelope string, status domain.JobStatus, result []byte, err error) {
	if !h.resolve(status, result, err) {
		c.logger.Warn("Discarding duplicate envelope", "type", envelope, "submissionID", h.id)
		return
	}
	c.logger.Info("Job resolved", "submissionID", h.id, "status", status, "elapsed", time.Since(h.submittedAt))
}

func failureError(data defs.JobFailureData) error {
	execErr := &errs.JobExecutionError{
		SubmissionID: data.ID.String(),
		Kind:         data.Kind,
		Description:  data.Error,
	}
	if data.Kind == defs.FailureCodec {
		return &errs.CodecError{PayloadType: "remote", Err: execErr}
	}
	return execErr
}

// IsChannelError reports whether err means the executor connection was lost
func IsChannelError(err error) bool {
	return errors.Is(err, errs.ErrChannel)
}
