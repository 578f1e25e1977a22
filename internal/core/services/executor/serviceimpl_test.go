package executor

import (
	"context"
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
	"github.com/vishnukl-alation/hive/internal/core/services/job"
	"github.com/vishnukl-alation/hive/internal/domain"
	"github.com/vishnukl-alation/hive/internal/static/errs"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

const (
	kindBoom  domain.JobKind = "boom"
	kindPanic domain.JobKind = "panic"
	kindBlock domain.JobKind = "block"
	kindEcho  domain.JobKind = "echo"
)

type fixture struct {
	codec    *codec.PayloadCodec
	driver   *local.Driver
	registry *job.Registry
	exec     *ExecutorService
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	return newFixtureWithDriver(t, local.Config{AppName: "test", DefaultParallelism: 3}, opts...)
}

func newFixtureWithDriver(t *testing.T, cfg local.Config, opts ...Option) *fixture {
	t.Helper()
	c, err := codec.NewDefaultPayloadCodec()
	require.NoError(t, err)

	logger := logging.NewNopLogger()
	driver := local.NewDriver(cfg, logger)
	registry := job.NewDefaultRegistry(c)

	registry.Register(kindBoom, funcFactory(kindBoom, func(context.Context, primary.JobContext) (any, error) {
		return nil, errors.New("boom: table not found")
	}))
	registry.Register(kindPanic, funcFactory(kindPanic, func(context.Context, primary.JobContext) (any, error) {
		panic("nil work graph")
	}))
	registry.Register(kindBlock, funcFactory(kindBlock, func(ctx context.Context, jc primary.JobContext) (any, error) {
		jc.SetJobGroup("queryId = blocking", "select sleep(1000)", true)
		<-ctx.Done()
		return nil, ctx.Err()
	}))

	exec := NewExecutorService(driver, registry, c, logger, opts...)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = exec.Shutdown(ctx)
	})

	return &fixture{codec: c, driver: driver, registry: registry, exec: exec}
}

func (f *fixture) statusPayloads(t *testing.T, query, queryID string) map[string]domain.Payload {
	t.Helper()
	conf := domain.NewJobConf(map[string]string{domain.JobNameKey: query})
	work := &domain.SparkWork{
		Name:    "work-" + queryID,
		QueryID: queryID,
		Works:   []*domain.BaseWork{{Name: "Map 1"}, {Name: "Reducer 2"}},
		Edges:   []domain.WorkEdge{{Parent: "Map 1", Child: "Reducer 2"}},
	}
	j, err := job.NewStatusJob(f.codec, conf, domain.ScratchDir{Path: "/tmp/scratch/" + queryID}, work)
	require.NoError(t, err)
	return j.Payloads()
}

func TestStatusJobSucceeds(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	rep := newRecordingReporter()

	id := uuid.New()
	require.NoError(f.exec.Submit(context.Background(), Submission{
		ID:       id,
		Kind:     domain.JobKindStatus,
		Payloads: f.statusPayloads(t, "select * from t", "q123"),
	}, rep))

	e := rep.awaitTerminal(t)
	require.Equal("succeeded", e.event)
	require.Equal([]string{"started", "succeeded"}, rep.eventsFor(id))

	var res domain.StatusResult
	require.NoError(f.codec.DecodeResult(e.result, &res))
	require.Equal("q123", res.QueryID)
	require.Equal("/tmp/scratch/q123", res.ScratchDir)

	jobs := f.driver.Jobs()
	require.Len(jobs, 1)
	require.Equal(id.String(), jobs[0].Scope)
	require.Contains(jobs[0].Properties[domain.JobDescriptionKey], "select * from t")
	require.Contains(jobs[0].Properties[domain.JobGroupIDKey], "q123")

	// the scope is released once the invocation returns
	require.Empty(f.driver.LocalProperty(id.String(), domain.JobGroupIDKey))
	require.Eventually(func() bool { return len(f.exec.Running()) == 0 }, time.Second, 10*time.Millisecond)
}

func TestFailureIsContained(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	rep := newRecordingReporter()

	require.NoError(f.exec.Submit(context.Background(), Submission{ID: uuid.New(), Kind: kindBoom}, rep))
	e := rep.awaitTerminal(t)
	require.Equal("failed", e.event)
	require.Equal(defs.FailureExecution, e.failureKind)
	require.Contains(e.description, "table not found")

	require.NoError(f.exec.Submit(context.Background(), Submission{ID: uuid.New(), Kind: kindPanic}, rep))
	e = rep.awaitTerminal(t)
	require.Equal("failed", e.event)
	require.Equal(defs.FailurePanic, e.failureKind)
	require.Contains(e.description, "nil work graph")

	// the executor keeps accepting work
	require.NoError(f.exec.Submit(context.Background(), Submission{ID: uuid.New(), Kind: domain.JobKindDriverInfo}, rep))
	e = rep.awaitTerminal(t)
	require.Equal("succeeded", e.event)

	var info domain.DriverInfo
	require.NoError(f.codec.DecodeResult(e.result, &info))
	require.Equal(f.driver.AppID(), info.AppID)
	require.Equal(3, info.DefaultParallelism)
}

func TestUnknownKindAndCodecFailures(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	rep := newRecordingReporter()

	require.NoError(f.exec.Submit(context.Background(), Submission{ID: uuid.New(), Kind: "compile-query"}, rep))
	e := rep.awaitTerminal(t)
	require.Equal(defs.FailureUnknownKind, e.failureKind)
	require.NotEmpty(e.description)

	payloads := f.statusPayloads(t, "select 1", "q1")
	work := payloads[job.PayloadWork]
	work.Type = domain.PayloadTypeJobConf
	payloads[job.PayloadWork] = work

	require.NoError(f.exec.Submit(context.Background(), Submission{ID: uuid.New(), Kind: domain.JobKindStatus, Payloads: payloads}, rep))
	e = rep.awaitTerminal(t)
	require.Equal(defs.FailureCodec, e.failureKind)
	require.Empty(f.driver.Jobs())
}

func TestDuplicateSubmissionAndCancel(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	rep := newRecordingReporter()

	id := uuid.New()
	require.NoError(f.exec.Submit(context.Background(), Submission{ID: id, Kind: kindBlock}, rep))
	require.Equal(id, rep.awaitStarted(t))

	err := f.exec.Submit(context.Background(), Submission{ID: id, Kind: kindBlock}, rep)
	require.ErrorIs(err, errs.ErrDuplicateSubmission)

	require.False(f.exec.Cancel(context.Background(), uuid.New(), rep))
	require.Eventually(func() bool {
		return f.driver.LocalProperty(id.String(), domain.JobGroupIDKey) != ""
	}, time.Second, 5*time.Millisecond)
	require.True(f.exec.Cancel(context.Background(), id, rep))

	e := rep.awaitTerminal(t)
	require.Equal("cancelled", e.event)
	require.Equal(id, e.id)
	require.Equal([]string{"started", "cancelled"}, rep.eventsFor(id))
}

func TestCancelSparesJobsSharingTheGroup(t *testing.T) {
	require := require.New(t)
	f := newFixtureWithDriver(t, local.Config{AppName: "test", StageDelay: 300 * time.Millisecond})
	rep := newRecordingReporter()

	a, b := uuid.New(), uuid.New()
	require.NoError(f.exec.Submit(context.Background(), Submission{
		ID:       a,
		Kind:     domain.JobKindStatus,
		Payloads: f.statusPayloads(t, "select 1", "shared"),
	}, rep))
	require.NoError(f.exec.Submit(context.Background(), Submission{
		ID:       b,
		Kind:     domain.JobKindStatus,
		Payloads: f.statusPayloads(t, "select 2", "shared"),
	}, rep))
	require.Eventually(func() bool { return f.driver.RunningJobs() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.True(f.exec.Cancel(context.Background(), a, rep))

	outcomes := make(map[uuid.UUID]envelope, 2)
	for i := 0; i < 2; i++ {
		e := rep.awaitTerminal(t)
		outcomes[e.id] = e
	}
	require.Equal("cancelled", outcomes[a].event)
	require.Equal("succeeded", outcomes[b].event, outcomes[b].description)

	for _, dj := range f.driver.Jobs() {
		require.Equal("queryId = shared", dj.GroupID)
	}
}

func TestCancelIgnoresForeignReporter(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	owner, other := newRecordingReporter(), newRecordingReporter()

	id := uuid.New()
	require.NoError(f.exec.Submit(context.Background(), Submission{ID: id, Kind: kindBlock}, owner))
	owner.awaitStarted(t)

	require.False(f.exec.Cancel(context.Background(), id, other))
	require.Never(func() bool { return len(owner.eventsFor(id)) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
	require.ElementsMatch([]uuid.UUID{id}, f.exec.Running())

	require.True(f.exec.Cancel(context.Background(), id, owner))
	require.Equal("cancelled", owner.awaitTerminal(t).event)
}

func TestUnframeableResultIsReportedAsCodecFailure(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	rep := newRecordingReporter()
	rep.rejectResult = &errs.CodecError{PayloadType: "JobSucceeded", Err: errors.New("frame exceeds maximum payload size")}

	id := uuid.New()
	require.NoError(f.exec.Submit(context.Background(), Submission{ID: id, Kind: domain.JobKindDriverInfo}, rep))

	e := rep.awaitTerminal(t)
	require.Equal("failed", e.event)
	require.Equal(id, e.id)
	require.Equal(defs.FailureCodec, e.failureKind)
	require.Contains(e.description, "frame exceeds maximum payload size")
	require.Equal([]string{"started", "failed"}, rep.eventsFor(id))
}

func TestConcurrentJobsKeepTheirOwnGroup(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, WithMaxConcurrentJobs(16))
	rep := newRecordingReporter()

	const n = 12
	var ready sync.WaitGroup
	ready.Add(n)
	f.registry.Register(kindEcho, func(c *codec.PayloadCodec, payloads map[string]domain.Payload) (primary.Job, error) {
		var groupID string
		if err := c.Deserialize(payloads["group"], domain.PayloadTypeResult, &groupID); err != nil {
			return nil, err
		}
		return funcJob{kind: kindEcho, fn: func(ctx context.Context, jc primary.JobContext) (any, error) {
			jc.SetJobGroup(groupID, "echo "+groupID, false)
			// wait until every job has set its group
			ready.Done()
			ready.Wait()
			seen := jc.LocalProperty(domain.JobGroupIDKey)
			if _, err := jc.SharedDriver().RunJob(ctx, &domain.SparkWork{Name: groupID, Works: []*domain.BaseWork{{Name: "Map 1"}}}); err != nil {
				return nil, err
			}
			return seen, nil
		}}, nil
	})

	expected := make(map[uuid.UUID]string, n)
	for i := 0; i < n; i++ {
		id := uuid.New()
		groupID := fmt.Sprintf("queryId = q%d", i)
		expected[id] = groupID
		p, err := f.codec.Serialize(domain.PayloadTypeResult, groupID)
		require.NoError(err)
		require.NoError(f.exec.Submit(context.Background(), Submission{
			ID:       id,
			Kind:     kindEcho,
			Payloads: map[string]domain.Payload{"group": p},
		}, rep))
	}

	for i := 0; i < n; i++ {
		e := rep.awaitTerminal(t)
		require.Equal("succeeded", e.event, e.description)
		var seen string
		require.NoError(f.codec.DecodeResult(e.result, &seen))
		require.Equal(expected[e.id], seen)
	}

	for _, dj := range f.driver.Jobs() {
		id, err := uuid.Parse(dj.Scope)
		require.NoError(err)
		require.Equal(expected[id], dj.GroupID)
	}
}

func TestConcurrencyLimit(t *testing.T) {
	require := require.New(t)
	f := newFixture(t, WithMaxConcurrentJobs(1))
	rep := newRecordingReporter()

	first, second := uuid.New(), uuid.New()
	require.NoError(f.exec.Submit(context.Background(), Submission{ID: first, Kind: kindBlock}, rep))
	require.Equal(first, rep.awaitStarted(t))
	require.NoError(f.exec.Submit(context.Background(), Submission{ID: second, Kind: kindBlock}, rep))

	require.Never(func() bool { return len(rep.eventsFor(second)) > 0 }, 100*time.Millisecond, 10*time.Millisecond)

	require.True(f.exec.Cancel(context.Background(), first, rep))
	require.Equal(second, rep.awaitStarted(t))
	require.True(f.exec.Cancel(context.Background(), second, rep))
}

func TestAbandonCancelsOnlyThatReporter(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	gone, alive := newRecordingReporter(), newRecordingReporter()

	goneID, aliveID := uuid.New(), uuid.New()
	require.NoError(f.exec.Submit(context.Background(), Submission{ID: goneID, Kind: kindBlock}, gone))
	require.NoError(f.exec.Submit(context.Background(), Submission{ID: aliveID, Kind: kindBlock}, alive))
	gone.awaitStarted(t)
	alive.awaitStarted(t)

	require.Equal(1, f.exec.Abandon(gone))
	require.Equal("cancelled", gone.awaitTerminal(t).event)
	require.ElementsMatch([]uuid.UUID{aliveID}, f.exec.Running())

	require.True(f.exec.Cancel(context.Background(), aliveID, alive))
	require.Equal("cancelled", alive.awaitTerminal(t).event)
}

func TestTrackingRecordFollowsInvocation(t *testing.T) {
	require := require.New(t)
	tracking := newMemoryTracking()
	f := newFixture(t, WithTrackingRegistry(tracking))
	rep := newRecordingReporter()

	id := uuid.New()
	require.NoError(f.exec.Submit(context.Background(), Submission{ID: id, Kind: kindBlock}, rep))

	select {
	case rec := <-tracking.published:
		require.Equal(id.String(), rec.SubmissionID)
		require.Equal("queryId = blocking", rec.Tag.GroupID)
		require.Equal(domain.JobStatusRunning, rec.Status)
		require.Equal(f.driver.AppID(), rec.AppID)
	case <-time.After(5 * time.Second):
		t.Fatal("no tracking record published")
	}

	active, err := tracking.ListGroup(context.Background(), "queryId = blocking")
	require.NoError(err)
	require.Len(active, 1)

	require.True(f.exec.Cancel(context.Background(), id, rep))
	rep.awaitTerminal(t)
	require.Equal(id.String(), <-tracking.removed)
}

func TestPayloadsByReference(t *testing.T) {
	require := require.New(t)
	store := newMemoryPayloadStore()
	f := newFixture(t, WithPayloadStore(store))
	rep := newRecordingReporter()

	id := uuid.New()
	payloads := f.statusPayloads(t, "select 1", "q7")
	work := payloads[job.PayloadWork]
	ref, err := store.Put(context.Background(), id.String(), job.PayloadWork, work.Data)
	require.NoError(err)
	payloads[job.PayloadWork] = domain.Payload{Type: work.Type, Ref: ref}

	require.NoError(f.exec.Submit(context.Background(), Submission{ID: id, Kind: domain.JobKindStatus, Payloads: payloads}, rep))
	require.Equal("succeeded", rep.awaitTerminal(t).event)

	payloads[job.PayloadWork] = domain.Payload{Type: work.Type, Ref: "missing/sparkWork"}
	require.NoError(f.exec.Submit(context.Background(), Submission{ID: uuid.New(), Kind: domain.JobKindStatus, Payloads: payloads}, rep))
	e := rep.awaitTerminal(t)
	require.Equal(defs.FailureCodec, e.failureKind)
}

func TestUnresolvedRefWithoutStore(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	rep := newRecordingReporter()

	payloads := f.statusPayloads(t, "select 1", "q8")
	payloads[job.PayloadJobConf] = domain.Payload{Type: domain.PayloadTypeJobConf, Ref: "elsewhere"}

	require.NoError(f.exec.Submit(context.Background(), Submission{ID: uuid.New(), Kind: domain.JobKindStatus, Payloads: payloads}, rep))
	e := rep.awaitTerminal(t)
	require.Equal(defs.FailureCodec, e.failureKind)
	require.Contains(e.description, "payload not found")
}

func TestShutdownCancelsAndRefuses(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	rep := newRecordingReporter()

	require.NoError(f.exec.Submit(context.Background(), Submission{ID: uuid.New(), Kind: kindBlock}, rep))
	rep.awaitStarted(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(f.exec.Shutdown(ctx))
	require.Equal("cancelled", rep.awaitTerminal(t).event)

	err := f.exec.Submit(context.Background(), Submission{ID: uuid.New(), Kind: domain.JobKindDriverInfo}, rep)
	require.ErrorIs(err, ErrExecutorClosed)

	// Shutdown alone leaves the driver stopped
	_, err = f.driver.RunJob(context.Background(), "after-shutdown", &domain.SparkWork{Name: "w", Works: []*domain.BaseWork{{Name: "Map 1"}}})
	require.ErrorIs(err, local.ErrDriverStopped)
}
