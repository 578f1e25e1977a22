package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/domain"
)

type envelope struct {
	event       string
	id          uuid.UUID
	failureKind string
	description string
	result      []byte
}

// recordingReporter collects the envelopes an invocation emits
type recordingReporter struct {
	mu       sync.Mutex
	events   []envelope
	started  chan uuid.UUID
	terminal chan envelope
	// rejectResult makes JobSucceeded fail without recording anything
	rejectResult error
}

func newRecordingReporter() *recordingReporter {
	return &recordingReporter{
		started:  make(chan uuid.UUID, 64),
		terminal: make(chan envelope, 64),
	}
}

func (r *recordingReporter) add(e envelope, terminal bool) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	if terminal {
		r.terminal <- e
	} else {
		r.started <- e.id
	}
}

func (r *recordingReporter) JobStarted(_ context.Context, id uuid.UUID) error {
	r.add(envelope{event: "started", id: id}, false)
	return nil
}

func (r *recordingReporter) JobSucceeded(_ context.Context, id uuid.UUID, result []byte) error {
	if r.rejectResult != nil {
		return r.rejectResult
	}
	r.add(envelope{event: "succeeded", id: id, result: result}, true)
	return nil
}

func (r *recordingReporter) JobFailed(_ context.Context, id uuid.UUID, kind string, description string) error {
	r.add(envelope{event: "failed", id: id, failureKind: kind, description: description}, true)
	return nil
}

func (r *recordingReporter) JobCancelled(_ context.Context, id uuid.UUID) error {
	r.add(envelope{event: "cancelled", id: id}, true)
	return nil
}

func (r *recordingReporter) eventsFor(id uuid.UUID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0)
	for _, e := range r.events {
		if e.id == id {
			out = append(out, e.event)
		}
	}
	return out
}

func (r *recordingReporter) awaitTerminal(t *testing.T) envelope {
	t.Helper()
	select {
	case e := <-r.terminal:
		return e
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal envelope")
		return envelope{}
	}
}

func (r *recordingReporter) awaitStarted(t *testing.T) uuid.UUID {
	t.Helper()
	select {
	case id := <-r.started:
		return id
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job start")
		return uuid.Nil
	}
}

// funcJob runs an arbitrary function as a job
type funcJob struct {
	kind domain.JobKind
	fn   func(ctx context.Context, jc primary.JobContext) (any, error)
}

func (j funcJob) Kind() domain.JobKind                { return j.kind }
func (j funcJob) Payloads() map[string]domain.Payload { return nil }
func (j funcJob) Call(ctx context.Context, jc primary.JobContext) (any, error) {
	return j.fn(ctx, jc)
}

func funcFactory(kind domain.JobKind, fn func(ctx context.Context, jc primary.JobContext) (any, error)) func(*codec.PayloadCodec, map[string]domain.Payload) (primary.Job, error) {
	return func(*codec.PayloadCodec, map[string]domain.Payload) (primary.Job, error) {
		return funcJob{kind: kind, fn: fn}, nil
	}
}

// memoryPayloadStore keeps offloaded payloads in memory
type memoryPayloadStore struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryPayloadStore() *memoryPayloadStore {
	return &memoryPayloadStore{data: make(map[string][]byte)}
}

func (s *memoryPayloadStore) Put(_ context.Context, submissionID, name string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := fmt.Sprintf("%s/%s", submissionID, name)
	s.data[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (s *memoryPayloadStore) Get(_ context.Context, ref string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.data[ref]
	if !ok {
		return nil, errors.New("payload not found: " + ref)
	}
	return data, nil
}

func (s *memoryPayloadStore) Delete(_ context.Context, refs ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ref := range refs {
		delete(s.data, ref)
	}
	return nil
}

// memoryTracking records published and removed tracking records
type memoryTracking struct {
	mu        sync.Mutex
	active    map[string]domain.TrackingRecord
	published chan domain.TrackingRecord
	removed   chan string
}

func newMemoryTracking() *memoryTracking {
	return &memoryTracking{
		active:    make(map[string]domain.TrackingRecord),
		published: make(chan domain.TrackingRecord, 16),
		removed:   make(chan string, 16),
	}
}

func (m *memoryTracking) Publish(_ context.Context, record domain.TrackingRecord) error {
	m.mu.Lock()
	m.active[record.SubmissionID] = record
	m.mu.Unlock()
	m.published <- record
	return nil
}

func (m *memoryTracking) Remove(_ context.Context, submissionID, groupID string) error {
	m.mu.Lock()
	delete(m.active, submissionID)
	m.mu.Unlock()
	m.removed <- submissionID
	return nil
}

func (m *memoryTracking) ListGroup(_ context.Context, groupID string) ([]domain.TrackingRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.TrackingRecord, 0)
	for _, r := range m.active {
		if r.Tag.GroupID == groupID {
			out = append(out, r)
		}
	}
	return out, nil
}
