package publishers

import (
	"context"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/tcp/channel"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

var _ primary.JobReporter = (*JobEnvelopePublisher)(nil)

// JobEnvelopePublisher sends job lifecycle envelopes to the coordinator
// that submitted the job
type JobEnvelopePublisher struct {
	Sender primary.MessageSender
	Logger primary.Logger
}

func NewJobEnvelopePublisher(sender primary.MessageSender, logger primary.Logger) *JobEnvelopePublisher {
	return &JobEnvelopePublisher{
		Sender: sender,
		Logger: logger,
	}
}

func (p *JobEnvelopePublisher) JobStarted(_ context.Context, submissionID uuid.UUID) error {
	return p.publish(defs.MsgJobStarted, submissionID, defs.JobStartedData{ID: submissionID})
}

func (p *JobEnvelopePublisher) JobSucceeded(_ context.Context, submissionID uuid.UUID, result []byte) error {
	return p.publish(defs.MsgJobResult, submissionID, defs.JobResultData{ID: submissionID, Result: result})
}

func (p *JobEnvelopePublisher) JobFailed(_ context.Context, submissionID uuid.UUID, kind string, description string) error {
	return p.publish(defs.MsgJobFailure, submissionID, defs.JobFailureData{ID: submissionID, Kind: kind, Error: description})
}

func (p *JobEnvelopePublisher) JobCancelled(_ context.Context, submissionID uuid.UUID) error {
	return p.publish(defs.MsgJobCancelled, submissionID, defs.JobCancelledData{ID: submissionID})
}

func (p *JobEnvelopePublisher) publish(msgType byte, submissionID uuid.UUID, data any) error {
	if err := channel.SendJSON(p.Sender, msgType, data); err != nil {
		p.Logger.Error("Failed to publish envelope", "type", defs.MessageName(msgType), "submissionID", submissionID, "error", err)
		return err
	}
	p.Logger.Debug("Published envelope", "type", defs.MessageName(msgType), "submissionID", submissionID)
	return nil
}
