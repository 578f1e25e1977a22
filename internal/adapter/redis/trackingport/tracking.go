package trackingport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/ports/secondary"
	"github.com/vishnukl-alation/hive/internal/domain"
)

const (
	trackingKeyPrefix   = "hive:tracking:"
	trackingGroupPrefix = "hive:tracking:group:"
	trackingExpiration  = 24 * time.Hour
)

var _ secondary.TrackingRegistry = (*TrackingRepository)(nil)

// TrackingRepository publishes running invocations and their tags in Redis.
// Records expire on their own if an executor dies without removing them.
type TrackingRepository struct {
	redisClient *redis.Client
	logger      primary.Logger
}

// NewTrackingRepository creates a new Redis tracking registry
func NewTrackingRepository(redisClient *redis.Client, logger primary.Logger) *TrackingRepository {
	return &TrackingRepository{
		redisClient: redisClient,
		logger:      logger,
	}
}

// Publish saves the record and indexes it by group id
func (r *TrackingRepository) Publish(ctx context.Context, record domain.TrackingRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		r.logger.Error("Failed to marshal tracking record", "error", err)
		return fmt.Errorf("failed to marshal tracking record: %w", err)
	}

	recordKey := trackingKeyPrefix + record.SubmissionID
	groupKey := trackingGroupPrefix + record.Tag.GroupID

	pipe := r.redisClient.TxPipeline()
	pipe.Set(ctx, recordKey, recordJSON, trackingExpiration)
	pipe.SAdd(ctx, groupKey, record.SubmissionID)
	pipe.Expire(ctx, groupKey, trackingExpiration)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to publish tracking record", "submissionID", record.SubmissionID, "error", err)
		return fmt.Errorf("failed to publish tracking record: %w", err)
	}
	return nil
}

// Remove drops the record and its group index entry
func (r *TrackingRepository) Remove(ctx context.Context, submissionID string, groupID string) error {
	pipe := r.redisClient.TxPipeline()
	pipe.Del(ctx, trackingKeyPrefix+submissionID)
	pipe.SRem(ctx, trackingGroupPrefix+groupID, submissionID)
	if _, err := pipe.Exec(ctx); err != nil {
		r.logger.Error("Failed to remove tracking record", "submissionID", submissionID, "error", err)
		return fmt.Errorf("failed to remove tracking record: %w", err)
	}
	return nil
}

// ListGroup returns the running invocations of a group. Index entries whose
// record expired are pruned.
func (r *TrackingRepository) ListGroup(ctx context.Context, groupID string) ([]domain.TrackingRecord, error) {
	groupKey := trackingGroupPrefix + groupID
	submissionIDs, err := r.redisClient.SMembers(ctx, groupKey).Result()
	if err != nil {
		r.logger.Error("Failed to get tracking group", "groupID", groupID, "error", err)
		return nil, fmt.Errorf("failed to get tracking group: %w", err)
	}

	records := make([]domain.TrackingRecord, 0, len(submissionIDs))
	for _, submissionID := range submissionIDs {
		recordJSON, err := r.redisClient.Get(ctx, trackingKeyPrefix+submissionID).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Record has expired, remove from group index
				if err := r.redisClient.SRem(ctx, groupKey, submissionID).Err(); err != nil {
					r.logger.Error("Failed to prune tracking group", "submissionID", submissionID, "error", err)
				}
				continue
			}
			r.logger.Error("Failed to get tracking record", "submissionID", submissionID, "error", err)
			continue
		}

		var record domain.TrackingRecord
		if err := json.Unmarshal(recordJSON, &record); err != nil {
			r.logger.Error("Failed to unmarshal tracking record", "submissionID", submissionID, "error", err)
			continue
		}
		records = append(records, record)
	}

	return records, nil
}
