package client

import (
	"context"

	"github.com/google/uuid"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/tcp/defs"
)

// IRemoteClient submits jobs to a remote executor and resolves their handles
type IRemoteClient interface {
	// Submit ships the job and returns its pending handle
	Submit(ctx context.Context, job primary.Job) (*Handle, error)

	// Lookup returns the handle of a submission that is not yet resolved
	Lookup(id uuid.UUID) (*Handle, bool)

	// Pending returns the ids of the unresolved submissions
	Pending() []uuid.UUID

	// Executor returns what the executor announced in its hello
	Executor() defs.ExecutorHelloData

	// Done is closed once the channel to the executor terminated
	Done() <-chan struct{}

	Close() error
}
