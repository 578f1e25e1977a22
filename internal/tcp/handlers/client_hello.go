package handlers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/services/executor"
	"github.com/vishnukl-alation/hive/internal/tcp/channel"
	"github.com/vishnukl-alation/hive/internal/tcp/connectionmanager"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

var _ primary.MessageHandler = (*ClientHelloHandler)(nil)

// ClientHelloHandler opens a coordinator session
type ClientHelloHandler struct {
	Executor executor.IExecutorService
	Logger   primary.Logger
}

// HandleMessage implements the MessageHandler interface
func (h *ClientHelloHandler) HandleMessage(ctx context.Context, session primary.Session, payload []byte, clientID *string) error {
	if *clientID != "" {
		h.Logger.Warn("Duplicate client hello ignored", "clientID", *clientID)
		return nil
	}

	var hello defs.ClientHelloData
	if err := json.Unmarshal(payload, &hello); err != nil {
		h.Logger.Error("Failed to parse client hello", "error", err)
		connectionmanager.SendErrorMessage(session, defs.ErrCodeInvalidHello, "Invalid hello data")
		return err
	}

	if hello.Version != defs.ProtocolVersion {
		h.Logger.Error("Unsupported protocol version", "version", hello.Version)
		connectionmanager.SendErrorMessage(session, defs.ErrCodeVersion, fmt.Sprintf("Unsupported protocol version: %d", hello.Version))
		return fmt.Errorf("unsupported protocol version %d", hello.Version)
	}

	if hello.ClientID == "" {
		hello.ClientID = uuid.NewString()
	}

	reply := defs.ExecutorHelloData{
		AppID:             h.Executor.AppID(),
		MaxConcurrentJobs: h.Executor.MaxConcurrentJobs(),
		Version:           defs.ProtocolVersion,
	}
	if err := channel.SendJSON(session, defs.MsgExecutorHello, reply); err != nil {
		h.Logger.Error("Failed to send executor hello", "error", err)
		return err
	}

	*clientID = hello.ClientID
	h.Logger.Info("Client registered", "clientID", hello.ClientID)
	return nil
}
