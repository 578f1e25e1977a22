// Package local implements the shared compute driver in-process. It keeps
// the contract of a cluster driver that matters to job submission: scoped
// local properties, job groups, and cancellation by group.
package local

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/ports/secondary"
	"github.com/vishnukl-alation/hive/internal/domain"
)

var _ secondary.Driver = (*Driver)(nil)

var (
	ErrDriverStopped = errors.New("driver stopped")
	ErrJobCancelled  = errors.New("driver job cancelled")
	ErrNilWork       = errors.New("nil work")
)

// Config configures the local driver
type Config struct {
	AppName            string
	DefaultParallelism int
	// StageDelay is how long each stage of a work graph takes
	StageDelay time.Duration
}

// DriverJob is a unit of driver work as seen by monitoring
type DriverJob struct {
	ID          int
	Scope       string
	GroupID     string
	Description string
	Properties  map[string]string
	Stages      []string
	Status      domain.JobStatus
	SubmittedAt time.Time
	CompletedAt time.Time
}

type runningJob struct {
	cancel            context.CancelFunc
	scope             string
	groupID           string
	interruptOnCancel bool
}

// Driver is an in-process compute driver shared by concurrent jobs
type Driver struct {
	cfg    Config
	appID  string
	logger primary.Logger

	mu        sync.RWMutex
	scopes    map[string]map[string]string
	nextJobID int
	jobs      []*DriverJob
	running   map[int]*runningJob
	stopped   bool
}

// NewDriver creates a started local driver
func NewDriver(cfg Config, logger primary.Logger) *Driver {
	if cfg.AppName == "" {
		cfg.AppName = "hive-on-spark"
	}
	if cfg.DefaultParallelism <= 0 {
		cfg.DefaultParallelism = 1
	}
	d := &Driver{
		cfg:     cfg,
		appID:   fmt.Sprintf("local-%s", uuid.New().String()[:8]),
		logger:  logger,
		scopes:  make(map[string]map[string]string),
		running: make(map[int]*runningJob),
	}
	logger.Info("Local driver started", "appId", d.appID, "appName", cfg.AppName)
	return d
}

func (d *Driver) AppID() string {
	return d.appID
}

func (d *Driver) DefaultParallelism() int {
	return d.cfg.DefaultParallelism
}

// SetLocalProperty sets a property for one scope. An empty value removes it.
func (d *Driver) SetLocalProperty(scope, key, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	props, ok := d.scopes[scope]
	if !ok {
		if value == "" {
			return
		}
		props = make(map[string]string)
		d.scopes[scope] = props
	}
	if value == "" {
		delete(props, key)
		return
	}
	props[key] = value
}

func (d *Driver) LocalProperty(scope, key string) string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.scopes[scope][key]
}

func (d *Driver) ClearScope(scope string) {
	d.mu.Lock()
	delete(d.scopes, scope)
	d.mu.Unlock()
}

// RunJob runs the stages of work in topological order. The job is tagged
// with a snapshot of the scope's local properties taken at submission.
func (d *Driver) RunJob(ctx context.Context, scope string, work *domain.SparkWork) (int, error) {
	if work == nil {
		return 0, ErrNilWork
	}
	stages, err := work.TopologicalOrder()
	if err != nil {
		return 0, fmt.Errorf("invalid work %s: %w", work.Name, err)
	}

	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return 0, ErrDriverStopped
	}
	snapshot := make(map[string]string, len(d.scopes[scope]))
	for k, v := range d.scopes[scope] {
		snapshot[k] = v
	}
	job := &DriverJob{
		ID:          d.nextJobID,
		Scope:       scope,
		GroupID:     snapshot[domain.JobGroupIDKey],
		Description: snapshot[domain.JobDescriptionKey],
		Properties:  snapshot,
		Stages:      make([]string, 0, len(stages)),
		Status:      domain.JobStatusRunning,
		SubmittedAt: time.Now(),
	}
	for _, s := range stages {
		job.Stages = append(job.Stages, s.Name)
	}
	d.nextJobID++
	d.jobs = append(d.jobs, job)

	jobCtx, cancel := context.WithCancel(ctx)
	d.running[job.ID] = &runningJob{
		cancel:            cancel,
		scope:             scope,
		groupID:           job.GroupID,
		interruptOnCancel: snapshot[domain.JobInterruptOnCancelKey] == "true",
	}
	d.mu.Unlock()

	d.logger.Debug("Driver job submitted", "appId", d.appID, "driverJobId", job.ID, "group", job.GroupID, "stages", len(stages))

	status, runErr := d.runStages(jobCtx, job)
	cancel()

	d.mu.Lock()
	delete(d.running, job.ID)
	job.Status = status
	job.CompletedAt = time.Now()
	d.mu.Unlock()

	return job.ID, runErr
}

func (d *Driver) runStages(ctx context.Context, job *DriverJob) (domain.JobStatus, error) {
	for _, stage := range job.Stages {
		if d.cfg.StageDelay > 0 {
			timer := time.NewTimer(d.cfg.StageDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return domain.JobStatusCancelled, fmt.Errorf("%w: stage %s: %v", ErrJobCancelled, stage, ctx.Err())
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return domain.JobStatusCancelled, fmt.Errorf("%w: stage %s: %v", ErrJobCancelled, stage, err)
		}
	}
	return domain.JobStatusSucceeded, nil
}

// CancelJobGroup cancels the running driver jobs of a group and returns how
// many were signalled. Jobs that did not ask for interruption still finish
// their current stage before observing the cancellation.
func (d *Driver) CancelJobGroup(groupID string) int {
	if groupID == "" {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id, rj := range d.running {
		if rj.groupID != groupID {
			continue
		}
		rj.cancel()
		n++
		d.logger.Info("Driver job cancelled", "driverJobId", id, "group", groupID, "interrupt", rj.interruptOnCancel)
	}
	return n
}

// CancelScope cancels the running driver jobs submitted from one scope.
// Jobs of other scopes are untouched even when they share a group.
func (d *Driver) CancelScope(scope string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for id, rj := range d.running {
		if rj.scope != scope {
			continue
		}
		rj.cancel()
		n++
		d.logger.Info("Driver job cancelled", "driverJobId", id, "scope", scope, "interrupt", rj.interruptOnCancel)
	}
	return n
}

// Jobs returns a copy of every driver job submitted so far
func (d *Driver) Jobs() []DriverJob {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]DriverJob, 0, len(d.jobs))
	for _, j := range d.jobs {
		cp := *j
		cp.Properties = make(map[string]string, len(j.Properties))
		for k, v := range j.Properties {
			cp.Properties[k] = v
		}
		cp.Stages = append([]string(nil), j.Stages...)
		out = append(out, cp)
	}
	return out
}

// RunningJobs returns the number of driver jobs in flight
func (d *Driver) RunningJobs() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.running)
}

// Stop cancels running jobs and rejects new ones
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	d.stopped = true
	for _, rj := range d.running {
		rj.cancel()
	}
	d.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for d.RunningJobs() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	d.logger.Info("Local driver stopped", "appId", d.appID)
	return nil
}
