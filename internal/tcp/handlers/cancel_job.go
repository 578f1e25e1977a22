package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/services/executor"
	"github.com/vishnukl-alation/hive/internal/tcp/connectionmanager"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

var _ primary.MessageHandler = (*CancelJobHandler)(nil)

// CancelJobHandler forwards cancel requests to the executor
type CancelJobHandler struct {
	Executor executor.IExecutorService
	Logger   primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *CancelJobHandler) HandleMessage(ctx context.Context, session primary.Session, payload []byte, clientID *string) error {
	if *clientID == "" {
		connectionmanager.SendErrorMessage(session, defs.ErrCodeNotRegistered, "Client not registered")
		return fmt.Errorf("client not registered")
	}

	var data defs.CancelJobData
	if err := json.Unmarshal(payload, &data); err != nil {
		h.Logger.Error("Failed to parse cancel job", "error", err)
		connectionmanager.SendErrorMessage(session, defs.ErrCodeInvalidCancel, "Invalid cancel job data")
		return nil
	}

	// only the session that submitted a job may cancel it
	if h.Executor.Cancel(ctx, data.ID, session.Reporter()) {
		h.Logger.Info("Job cancel requested", "clientID", *clientID, "submissionID", data.ID)
	}
	return nil
}
