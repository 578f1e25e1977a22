package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
	"github.com/vishnukl-alation/hive/internal/adapter/driver/local"
	"github.com/vishnukl-alation/hive/internal/adapter/logging"
	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/ports/secondary"
	"github.com/vishnukl-alation/hive/internal/core/services/executor"
	"github.com/vishnukl-alation/hive/internal/core/services/job"
	"github.com/vishnukl-alation/hive/internal/domain"
	"github.com/vishnukl-alation/hive/internal/static/errs"
	"github.com/vishnukl-alation/hive/internal/tcp"
	"github.com/vishnukl-alation/hive/internal/tcp/channel"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

const (
	kindBlock domain.JobKind = "block"
	kindBoom  domain.JobKind = "boom"
)

type funcJob struct {
	kind domain.JobKind
	fn   func(ctx context.Context, jc primary.JobContext) (any, error)
}

func (j funcJob) Kind() domain.JobKind                { return j.kind }
func (j funcJob) Payloads() map[string]domain.Payload { return nil }
func (j funcJob) Call(ctx context.Context, jc primary.JobContext) (any, error) {
	return j.fn(ctx, jc)
}

// bulkyJob carries a payload too large for a single frame
type bulkyJob struct{}

func (bulkyJob) Kind() domain.JobKind { return kindBoom }
func (bulkyJob) Payloads() map[string]domain.Payload {
	return map[string]domain.Payload{
		"blob": {Type: domain.PayloadTypeResult, Data: make([]byte, defs.MaxPayloadSize)},
	}
}
func (bulkyJob) Call(context.Context, primary.JobContext) (any, error) { return nil, nil }

type env struct {
	codec    *codec.PayloadCodec
	driver   *local.Driver
	exec     *executor.ExecutorService
	client   *RemoteClient
	execSide channel.Channel
}

type envOptions struct {
	executor []executor.Option
	client   []Option
}

func newEnv(t *testing.T, o envOptions) *env {
	t.Helper()
	logger := logging.NewNopLogger()
	c, err := codec.NewDefaultPayloadCodec()
	require.NoError(t, err)

	driver := local.NewDriver(local.Config{AppName: "client-test", DefaultParallelism: 2}, logger)
	registry := job.NewDefaultRegistry(c)
	registry.Register(kindBlock, func(*codec.PayloadCodec, map[string]domain.Payload) (primary.Job, error) {
		return funcJob{kind: kindBlock, fn: func(ctx context.Context, jc primary.JobContext) (any, error) {
			jc.SetJobGroup("queryId = long", "select sleep(1000)", true)
			<-ctx.Done()
			return nil, ctx.Err()
		}}, nil
	})
	registry.Register(kindBoom, func(*codec.PayloadCodec, map[string]domain.Payload) (primary.Job, error) {
		return funcJob{kind: kindBoom, fn: func(context.Context, primary.JobContext) (any, error) {
			return nil, errors.New("semantic error: column x not found")
		}}, nil
	})

	exec := executor.NewExecutorService(driver, registry, c, logger, o.executor...)
	server := tcp.NewTCPServer(exec, logger)

	clientSide, execSide := channel.Pipe(logger)
	go server.ServeChannel(context.Background(), execSide)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	rc, err := NewRemoteClient(ctx, clientSide, c, logger, o.client...)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = rc.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = exec.Shutdown(shutdownCtx)
	})

	return &env{codec: c, driver: driver, exec: exec, client: rc, execSide: execSide}
}

func (e *env) statusJob(t *testing.T, query, queryID string) *job.StatusJob {
	t.Helper()
	conf := domain.NewJobConf(map[string]string{domain.JobNameKey: query})
	work := &domain.SparkWork{
		Name:    "work-" + queryID,
		QueryID: queryID,
		Works: []*domain.BaseWork{
			{Name: "Map 1", Operators: []string{"TS", "FIL", "RS"}},
			{Name: "Reducer 2", Operators: []string{"GBY", "FS"}},
		},
		Edges: []domain.WorkEdge{{Parent: "Map 1", Child: "Reducer 2", ShuffleType: "GROUP"}},
	}
	j, err := job.NewStatusJob(e.codec, conf, domain.ScratchDir{Path: "hdfs://tmp/hive/" + queryID}, work)
	require.NoError(t, err)
	return j
}

func awaitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestStatusJobEndToEnd(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, envOptions{})
	require.Equal(e.driver.AppID(), e.client.Executor().AppID)

	h, err := e.client.Submit(context.Background(), e.statusJob(t, "select * from t", "q123"))
	require.NoError(err)
	require.Equal(domain.JobKindStatus, h.Kind())
	require.Equal("queryId = q123", h.TrackingTag().GroupID)

	res, err := Result[domain.StatusResult](awaitCtx(t), e.codec, h)
	require.NoError(err)
	require.Equal("q123", res.QueryID)
	require.Equal("hdfs://tmp/hive/q123", res.ScratchDir)
	require.Equal(domain.JobStatusSucceeded, h.Status())

	jobs := e.driver.Jobs()
	require.Len(jobs, 1)
	require.Contains(jobs[0].Properties[domain.JobDescriptionKey], "select * from t")
	require.Contains(jobs[0].Properties[domain.JobGroupIDKey], "q123")
	require.Empty(e.client.Pending())
}

func TestDriverInfoByKind(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, envOptions{})

	h, err := e.client.Submit(context.Background(), job.DriverInfoJob{})
	require.NoError(err)

	info, err := Result[domain.DriverInfo](awaitCtx(t), e.codec, h)
	require.NoError(err)
	require.Equal(e.driver.AppID(), info.AppID)
	require.Equal(2, info.DefaultParallelism)
}

func TestJobFailureResolvesFailed(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, envOptions{})

	h, err := e.client.Submit(context.Background(), funcJob{kind: kindBoom})
	require.NoError(err)

	_, err = h.Await(awaitCtx(t))
	require.ErrorIs(err, errs.ErrJobExecution)
	var execErr *errs.JobExecutionError
	require.True(errors.As(err, &execErr))
	require.Equal(defs.FailureExecution, execErr.Kind)
	require.Contains(execErr.Description, "column x not found")
	require.Equal(domain.JobStatusFailed, h.Status())

	// the executor keeps serving after a failure
	h, err = e.client.Submit(context.Background(), job.DriverInfoJob{})
	require.NoError(err)
	_, err = h.Await(awaitCtx(t))
	require.NoError(err)
}

func TestCorruptPayloadSurfacesAsCodecError(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, envOptions{})

	good := e.statusJob(t, "select 1", "q1").Payloads()
	conf := good[job.PayloadJobConf]
	conf.Data = []byte{0xff, 0x00, 0x13}
	broken := job.NewStatusJobFromPayloads(e.codec, conf, good[job.PayloadScratchDir], good[job.PayloadWork])

	h, err := e.client.Submit(context.Background(), broken)
	require.NoError(err)
	_, err = h.Await(awaitCtx(t))
	require.ErrorIs(err, errs.ErrCodec)
	require.ErrorIs(err, errs.ErrJobExecution)
	require.Empty(e.driver.Jobs())
}

func TestDisconnectFailsEveryPendingHandle(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, envOptions{})

	first, err := e.client.Submit(context.Background(), funcJob{kind: kindBlock})
	require.NoError(err)
	second, err := e.client.Submit(context.Background(), funcJob{kind: kindBlock})
	require.NoError(err)
	require.Eventually(func() bool {
		return first.Status() == domain.JobStatusRunning && second.Status() == domain.JobStatusRunning
	}, 5*time.Second, 5*time.Millisecond)

	// executor side goes away
	require.NoError(e.execSide.Close())

	for _, h := range []*Handle{first, second} {
		_, err := h.Await(awaitCtx(t))
		require.ErrorIs(err, errs.ErrChannel)
		require.True(IsChannelError(err))
		require.NotEqual(domain.JobStatusPending, h.Status())
		require.True(h.Status().IsTerminal())
	}
	require.Empty(e.client.Pending())

	_, err = e.client.Submit(context.Background(), job.DriverInfoJob{})
	require.ErrorIs(err, errs.ErrChannel)

	// the executor abandons the work of the lost coordinator
	require.Eventually(func() bool { return len(e.exec.Running()) == 0 }, 5*time.Second, 10*time.Millisecond)
}

func TestOversizedSubmissionFailsAlone(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, envOptions{})

	running, err := e.client.Submit(context.Background(), funcJob{kind: kindBlock})
	require.NoError(err)
	require.Eventually(func() bool { return running.Status() == domain.JobStatusRunning }, 5*time.Second, 5*time.Millisecond)

	_, err = e.client.Submit(context.Background(), bulkyJob{})
	require.ErrorIs(err, errs.ErrCodec)
	require.False(IsChannelError(err))

	require.Equal(domain.JobStatusRunning, running.Status())
	require.ElementsMatch([]uuid.UUID{running.ID()}, e.client.Pending())

	h, err := e.client.Submit(context.Background(), job.DriverInfoJob{})
	require.NoError(err)
	_, err = h.Await(awaitCtx(t))
	require.NoError(err)

	require.NoError(running.Cancel(context.Background()))
	require.Equal(domain.JobStatusCancelled, running.Status())
}

func TestAwaitTimeoutThenCancel(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, envOptions{})

	h, err := e.client.Submit(context.Background(), funcJob{kind: kindBlock})
	require.NoError(err)

	_, err = h.AwaitTimeout(50 * time.Millisecond)
	require.ErrorIs(err, errs.ErrTimeout)
	require.False(h.Status().IsTerminal())

	require.Eventually(func() bool { return h.Status() == domain.JobStatusRunning }, 5*time.Second, 5*time.Millisecond)
	require.NoError(h.Cancel(context.Background()))
	require.Equal(domain.JobStatusCancelled, h.Status())

	_, err = h.AwaitTimeout(0)
	require.ErrorIs(err, errs.ErrCancelled)

	// the late JobCancelled envelope is discarded and the state stays fixed
	require.Eventually(func() bool { return len(e.exec.Running()) == 0 }, 5*time.Second, 10*time.Millisecond)
	require.Equal(domain.JobStatusCancelled, h.Status())
	require.NoError(h.Cancel(context.Background()))
}

func TestCloseFailsSubmissions(t *testing.T) {
	require := require.New(t)
	e := newEnv(t, envOptions{})

	h, err := e.client.Submit(context.Background(), funcJob{kind: kindBlock})
	require.NoError(err)
	require.NoError(e.client.Close())

	_, err = h.Await(awaitCtx(t))
	require.ErrorIs(err, errs.ErrChannel)
	require.ErrorIs(err, errs.ErrClientClosed)

	_, err = e.client.Submit(context.Background(), job.DriverInfoJob{})
	require.ErrorIs(err, errs.ErrClientClosed)
}

// fakeExecutor answers the hello and hands every later message to the test
func fakeExecutor(t *testing.T, ch channel.Channel) <-chan defs.Message {
	t.Helper()
	out := make(chan defs.Message, 16)
	go func() {
		defer close(out)
		for msg := range ch.Receive() {
			if msg.Type == defs.MsgClientHello {
				_ = channel.SendJSON(ch, defs.MsgExecutorHello, defs.ExecutorHelloData{AppID: "fake", MaxConcurrentJobs: 1, Version: defs.ProtocolVersion})
				continue
			}
			out <- msg
		}
	}()
	return out
}

func TestEnvelopesResolveExactlyOnce(t *testing.T) {
	require := require.New(t)
	logger := logging.NewNopLogger()
	c, err := codec.NewDefaultPayloadCodec()
	require.NoError(err)

	clientSide, execSide := channel.Pipe(logger)
	defer execSide.Close()
	received := fakeExecutor(t, execSide)

	rc, err := NewRemoteClient(awaitCtx(t), clientSide, c, logger)
	require.NoError(err)
	defer rc.Close()
	require.Equal("fake", rc.Executor().AppID)

	h, err := rc.Submit(context.Background(), job.DriverInfoJob{})
	require.NoError(err)

	msg := <-received
	require.Equal(defs.MsgSubmitJob, msg.Type)
	var submit defs.SubmitJobData
	require.NoError(json.Unmarshal(msg.Payload, &submit))
	require.Equal(h.ID(), submit.ID)
	require.Equal(domain.JobKindDriverInfo, submit.Kind)

	first, err := c.EncodeResult(domain.DriverInfo{AppID: "first", DefaultParallelism: 1})
	require.NoError(err)
	second, err := c.EncodeResult(domain.DriverInfo{AppID: "second", DefaultParallelism: 1})
	require.NoError(err)

	require.NoError(channel.SendJSON(execSide, defs.MsgJobResult, defs.JobResultData{ID: uuid.New(), Result: second}))
	require.NoError(channel.SendJSON(execSide, defs.MsgJobResult, defs.JobResultData{ID: submit.ID, Result: first}))
	require.NoError(channel.SendJSON(execSide, defs.MsgJobResult, defs.JobResultData{ID: submit.ID, Result: second}))
	require.NoError(channel.SendJSON(execSide, defs.MsgJobFailure, defs.JobFailureData{ID: submit.ID, Kind: defs.FailureExecution, Error: "late"}))

	info, err := Result[domain.DriverInfo](awaitCtx(t), c, h)
	require.NoError(err)
	require.Equal("first", info.AppID)

	// give the duplicates time to arrive, then check nothing changed
	require.Never(func() bool { return h.Status() != domain.JobStatusSucceeded }, 100*time.Millisecond, 10*time.Millisecond)
	require.NoError(h.Err())
}

func TestHelloRefused(t *testing.T) {
	require := require.New(t)
	logger := logging.NewNopLogger()
	c, err := codec.NewDefaultPayloadCodec()
	require.NoError(err)

	clientSide, execSide := channel.Pipe(logger)
	go func() {
		<-execSide.Receive()
		_ = channel.SendJSON(execSide, defs.MsgError, defs.ErrorData{Code: defs.ErrCodeVersion, Message: "Unsupported protocol version"})
		_ = execSide.Close()
	}()

	_, err = NewRemoteClient(awaitCtx(t), clientSide, c, logger)
	require.Error(err)
}

type memoryStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ secondary.PayloadStore = (*memoryStore)(nil)

func (s *memoryStore) Put(_ context.Context, submissionID, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := fmt.Sprintf("hive:payload:%s:%s", submissionID, name)
	s.data[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (s *memoryStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[ref]
	if !ok {
		return nil, errs.ErrPayloadNotFound
	}
	return data, nil
}

func (s *memoryStore) Delete(_ context.Context, refs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		delete(s.data, ref)
	}
	return nil
}

func (s *memoryStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data)
}

func TestLargePayloadsShippedByReference(t *testing.T) {
	require := require.New(t)
	store := &memoryStore{data: make(map[string][]byte)}
	e := newEnv(t, envOptions{
		executor: []executor.Option{executor.WithPayloadStore(store)},
		client:   []Option{WithPayloadStore(store, 16)},
	})

	h, err := e.client.Submit(context.Background(), e.statusJob(t, "select count(*) from big_table", "q42"))
	require.NoError(err)
	require.Greater(store.len(), 0)

	res, err := Result[domain.StatusResult](awaitCtx(t), e.codec, h)
	require.NoError(err)
	require.Equal("q42", res.QueryID)

	// offloaded payloads are dropped once the handle resolves
	require.Equal(0, store.len())
}

type memoryRepo struct {
	mu      sync.Mutex
	history map[uuid.UUID][]domain.JobStatus
}

var _ secondary.JobRepository = (*memoryRepo)(nil)

func (r *memoryRepo) SaveJob(_ context.Context, rec *domain.JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history[rec.ID] = append(r.history[rec.ID], rec.Status)
	return nil
}

func (r *memoryRepo) GetJob(_ context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	return nil, nil
}

func (r *memoryRepo) GetJobsByGroup(_ context.Context, groupID string, limit int) ([]*domain.JobRecord, error) {
	return nil, nil
}

func (r *memoryRepo) statuses(id uuid.UUID) []domain.JobStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.JobStatus(nil), r.history[id]...)
}

func TestRepositoryRecordsLifecycle(t *testing.T) {
	require := require.New(t)
	repo := &memoryRepo{history: make(map[uuid.UUID][]domain.JobStatus)}
	e := newEnv(t, envOptions{client: []Option{WithJobRepository(repo)}})

	h, err := e.client.Submit(context.Background(), e.statusJob(t, "select 1", "q5"))
	require.NoError(err)
	_, err = h.Await(awaitCtx(t))
	require.NoError(err)

	require.Equal([]domain.JobStatus{
		domain.JobStatusPending,
		domain.JobStatusRunning,
		domain.JobStatusSucceeded,
	}, repo.statuses(h.ID()))
}
