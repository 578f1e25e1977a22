package schedulerengine

import (
	"context"
	"sync"
	"time"

	"github.com/vishnukl-alation/hive/internal/config"
	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/services/submission"
)

// SchedulerEngine runs the coordinator's periodic maintenance
type SchedulerEngine struct {
	ClientCfg *config.ClientConfig
	service   submission.ISubmissionService
	logger    primary.Logger
	wg        sync.WaitGroup
}

func NewSchedulerEngine(
	clientCfg *config.ClientConfig,
	service submission.ISubmissionService,
	logger primary.Logger,
) *SchedulerEngine {
	return &SchedulerEngine{
		ClientCfg: clientCfg,
		service:   service,
		logger:    logger,
	}
}

// Start sweeps resolved handles every SweepInterval until ctx ends
func (s *SchedulerEngine) Start(ctx context.Context) {
	if s.ClientCfg.SweepInterval <= 0 {
		s.logger.Info("Handle sweeping disabled")
		return
	}

	ticker := time.NewTicker(s.ClientCfg.SweepInterval)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.SweepHandles(now)
			}
		}
	}()
}

// Wait blocks until the background loop returned
func (s *SchedulerEngine) Wait() {
	s.wg.Wait()
}

func (s *SchedulerEngine) SweepHandles(now time.Time) {
	swept := s.service.Sweep(now)
	if swept == 0 {
		return
	}
	s.logger.Info("Swept resolved jobs", "count", swept, "live", s.service.Live())
}
