package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/domain"
)

// Payload names of a status job
const (
	PayloadJobConf    = "jobConf"
	PayloadScratchDir = "scratchDir"
	PayloadWork       = "sparkWork"
)

var ErrScratchDirNotSet = errors.New("scratch dir not set")

var _ primary.Job = (*StatusJob)(nil)

// StatusJob runs a compiled query's work on the shared driver, tagged with
// the query's description and group id. It carries only serialized state.
type StatusJob struct {
	codec      *codec.PayloadCodec
	jobConf    domain.Payload
	scratchDir domain.Payload
	work       domain.Payload

	tag domain.TrackingTag
}

// NewStatusJob serializes the inputs of a status job
func NewStatusJob(c *codec.PayloadCodec, conf domain.JobConf, scratchDir domain.ScratchDir, work *domain.SparkWork) (*StatusJob, error) {
	confPayload, err := c.SerializeJobConf(conf)
	if err != nil {
		return nil, err
	}
	dirPayload, err := c.SerializeScratchDir(scratchDir)
	if err != nil {
		return nil, err
	}
	workPayload, err := c.SerializeWork(work)
	if err != nil {
		return nil, err
	}

	j := NewStatusJobFromPayloads(c, confPayload, dirPayload, workPayload)
	j.tag = domain.NewTrackingTag(conf, work)
	return j, nil
}

// NewStatusJobFromPayloads wraps already serialized payloads
func NewStatusJobFromPayloads(c *codec.PayloadCodec, jobConf, scratchDir, work domain.Payload) *StatusJob {
	return &StatusJob{
		codec:      c,
		jobConf:    jobConf,
		scratchDir: scratchDir,
		work:       work,
	}
}

func statusJobFactory(c *codec.PayloadCodec, payloads map[string]domain.Payload) (primary.Job, error) {
	conf, err := requirePayload(payloads, PayloadJobConf, domain.PayloadTypeJobConf)
	if err != nil {
		return nil, err
	}
	dir, err := requirePayload(payloads, PayloadScratchDir, domain.PayloadTypeScratchDir)
	if err != nil {
		return nil, err
	}
	work, err := requirePayload(payloads, PayloadWork, domain.PayloadTypeWork)
	if err != nil {
		return nil, err
	}
	return NewStatusJobFromPayloads(c, conf, dir, work), nil
}

func (j *StatusJob) Kind() domain.JobKind {
	return domain.JobKindStatus
}

func (j *StatusJob) Payloads() map[string]domain.Payload {
	return map[string]domain.Payload{
		PayloadJobConf:    j.jobConf,
		PayloadScratchDir: j.scratchDir,
		PayloadWork:       j.work,
	}
}

// TrackingTag returns the tag derived at construction, zero when the job was
// rebuilt from payloads
func (j *StatusJob) TrackingTag() domain.TrackingTag {
	return j.tag
}

// Call deserializes the inputs, tags the invocation and only then submits
// the work to the driver.
func (j *StatusJob) Call(ctx context.Context, jc primary.JobContext) (any, error) {
	conf, err := j.codec.DeserializeJobConf(j.jobConf)
	if err != nil {
		return nil, err
	}
	dir, err := j.codec.DeserializeScratchDir(j.scratchDir)
	if err != nil {
		return nil, err
	}
	work, err := j.codec.DeserializeWork(j.work)
	if err != nil {
		return nil, err
	}

	tag := domain.NewTrackingTag(conf, work)
	jc.SetJobGroup(tag.GroupID, tag.Description, true)

	if dir.Path == "" {
		return nil, ErrScratchDirNotSet
	}
	if err := work.Validate(); err != nil {
		return nil, fmt.Errorf("invalid spark work %s: %w", work.Name, err)
	}

	driverJobID, err := jc.SharedDriver().RunJob(ctx, work)
	if err != nil {
		return nil, fmt.Errorf("failed to run spark work %s: %w", work.Name, err)
	}

	return domain.StatusResult{
		QueryID:      work.QueryID,
		DriverJobIDs: []int{driverJobID},
		ScratchDir:   dir.Path,
	}, nil
}
