package jobcontext

import (
	"context"
	"strconv"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/ports/secondary"
	"github.com/vishnukl-alation/hive/internal/domain"
)

var (
	_ primary.JobContext   = (*JobContext)(nil)
	_ primary.DriverHandle = (*driverHandle)(nil)
)

// JobContext is the execution context of one job invocation. All property
// writes go to the invocation's own scope on the shared driver.
type JobContext struct {
	driver secondary.Driver
	scope  string
	handle *driverHandle
}

// New creates the context for the invocation identified by scope
func New(driver secondary.Driver, scope string) *JobContext {
	return &JobContext{
		driver: driver,
		scope:  scope,
		handle: &driverHandle{driver: driver, scope: scope},
	}
}

func (c *JobContext) ScopeID() string {
	return c.scope
}

// SharedDriver returns the read/execute view of the driver bound to this scope
func (c *JobContext) SharedDriver() primary.DriverHandle {
	return c.handle
}

func (c *JobContext) SetLocalProperty(key, value string) {
	c.driver.SetLocalProperty(c.scope, key, value)
}

func (c *JobContext) LocalProperty(key string) string {
	return c.driver.LocalProperty(c.scope, key)
}

// SetJobGroup tags every driver job issued afterwards in this scope
func (c *JobContext) SetJobGroup(groupID, description string, interruptOnCancel bool) {
	c.SetLocalProperty(domain.JobDescriptionKey, description)
	c.SetLocalProperty(domain.JobGroupIDKey, groupID)
	c.SetLocalProperty(domain.JobInterruptOnCancelKey, strconv.FormatBool(interruptOnCancel))
}

func (c *JobContext) SetJobDescription(description string) {
	c.SetLocalProperty(domain.JobDescriptionKey, description)
}

// Release drops the scope's properties once the invocation has returned
func (c *JobContext) Release() {
	c.driver.ClearScope(c.scope)
}

type driverHandle struct {
	driver secondary.Driver
	scope  string
}

func (h *driverHandle) AppID() string {
	return h.driver.AppID()
}

func (h *driverHandle) DefaultParallelism() int {
	return h.driver.DefaultParallelism()
}

func (h *driverHandle) RunJob(ctx context.Context, work *domain.SparkWork) (int, error) {
	return h.driver.RunJob(ctx, h.scope, work)
}

func (h *driverHandle) LocalProperty(key string) string {
	return h.driver.LocalProperty(h.scope, key)
}
