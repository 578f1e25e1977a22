package secondary

import (
	"context"

	"github.com/vishnukl-alation/hive/internal/domain"
)

// Driver is the long-lived compute driver shared by all invocations of an
// executor. Local properties are kept per scope so concurrent jobs never
// see each other's tags.
type Driver interface {
	AppID() string
	DefaultParallelism() int

	SetLocalProperty(scope, key, value string)
	LocalProperty(scope, key string) string
	ClearScope(scope string)

	// RunJob runs work tagged with the scope's current local properties and
	// returns the driver job id
	RunJob(ctx context.Context, scope string, work *domain.SparkWork) (int, error)

	// CancelScope interrupts the running driver jobs of one scope only
	CancelScope(scope string) int

	// CancelJobGroup interrupts running driver jobs of the group, best effort
	CancelJobGroup(groupID string) int

	Stop(ctx context.Context) error
}
