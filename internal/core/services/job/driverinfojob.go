package job

import (
	"context"

	"github.com/vishnukl-alation/hive/internal/adapter/codec"
	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/domain"
)

var _ primary.Job = DriverInfoJob{}

// DriverInfoJob reports the shared driver's identity. It carries no
// payloads: the executor resolves it purely by kind.
type DriverInfoJob struct{}

func driverInfoJobFactory(_ *codec.PayloadCodec, _ map[string]domain.Payload) (primary.Job, error) {
	return DriverInfoJob{}, nil
}

func (DriverInfoJob) Kind() domain.JobKind {
	return domain.JobKindDriverInfo
}

func (DriverInfoJob) Payloads() map[string]domain.Payload {
	return nil
}

func (DriverInfoJob) Call(_ context.Context, jc primary.JobContext) (any, error) {
	driver := jc.SharedDriver()
	return domain.DriverInfo{
		AppID:              driver.AppID(),
		DefaultParallelism: driver.DefaultParallelism(),
	}, nil
}
