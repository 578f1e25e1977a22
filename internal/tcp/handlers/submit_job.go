package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/services/executor"
	"github.com/vishnukl-alation/hive/internal/static/errs"
	"github.com/vishnukl-alation/hive/internal/tcp/connectionmanager"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

var _ primary.MessageHandler = (*SubmitJobHandler)(nil)

// SubmitJobHandler hands submitted jobs to the executor
type SubmitJobHandler struct {
	Executor executor.IExecutorService
	Logger   primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *SubmitJobHandler) HandleMessage(ctx context.Context, session primary.Session, payload []byte, clientID *string) error {
	if *clientID == "" {
		connectionmanager.SendErrorMessage(session, defs.ErrCodeNotRegistered, "Client not registered")
		return fmt.Errorf("client not registered")
	}

	var data defs.SubmitJobData
	if err := json.Unmarshal(payload, &data); err != nil {
		h.Logger.Error("Failed to parse submit job", "clientID", *clientID, "error", err)
		connectionmanager.SendErrorMessage(session, defs.ErrCodeInvalidSubmit, "Invalid submit job data")
		return nil
	}
	if data.ID == uuid.Nil {
		connectionmanager.SendErrorMessage(session, defs.ErrCodeInvalidSubmit, "Missing submission id")
		return nil
	}

	sub := executor.Submission{
		ID:       data.ID,
		Kind:     data.Kind,
		Payloads: data.Payloads,
		Trace:    data.Trace,
	}

	err := h.Executor.Submit(ctx, sub, session.Reporter())
	switch {
	case err == nil:
		h.Logger.Debug("Job submitted", "clientID", *clientID, "submissionID", data.ID, "kind", data.Kind)
	case errors.Is(err, errs.ErrDuplicateSubmission):
		// the running invocation still owns this id
		h.Logger.Warn("Duplicate submission rejected", "clientID", *clientID, "submissionID", data.ID)
		connectionmanager.SendErrorMessage(session, defs.ErrCodeDuplicateJob, err.Error())
	default:
		h.Logger.Error("Failed to submit job", "submissionID", data.ID, "error", err)
		if err := session.Reporter().JobFailed(ctx, data.ID, defs.FailureExecution, err.Error()); err != nil {
			return err
		}
	}
	return nil
}
