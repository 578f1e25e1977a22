package secondary

import (
	"context"

	"github.com/vishnukl-alation/hive/internal/domain"
)

// TrackingRegistry exposes running invocations and their tags to monitoring
type TrackingRegistry interface {
	Publish(ctx context.Context, record domain.TrackingRecord) error
	Remove(ctx context.Context, submissionID string, groupID string) error
	ListGroup(ctx context.Context, groupID string) ([]domain.TrackingRecord, error)
}
