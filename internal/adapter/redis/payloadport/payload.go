package payloadport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/core/ports/secondary"
	"github.com/vishnukl-alation/hive/internal/static/errs"
)

const (
	payloadKeyPrefix  = "hive:payload:"
	defaultExpiration = time.Hour
)

var _ secondary.PayloadStore = (*PayloadRepository)(nil)

// PayloadRepository keeps offloaded payload bytes in Redis until the job
// resolves or the key expires
type PayloadRepository struct {
	redisClient *redis.Client
	expiration  time.Duration
	logger      primary.Logger
}

// NewPayloadRepository creates a new Redis payload store
func NewPayloadRepository(redisClient *redis.Client, expiration time.Duration, logger primary.Logger) *PayloadRepository {
	if expiration <= 0 {
		expiration = defaultExpiration
	}
	return &PayloadRepository{
		redisClient: redisClient,
		expiration:  expiration,
		logger:      logger,
	}
}

// Put stores the bytes of one named payload and returns its reference
func (r *PayloadRepository) Put(ctx context.Context, submissionID string, name string, data []byte) (string, error) {
	ref := fmt.Sprintf("%s%s:%s", payloadKeyPrefix, submissionID, name)
	if err := r.redisClient.Set(ctx, ref, data, r.expiration).Err(); err != nil {
		r.logger.Error("Failed to store payload", "ref", ref, "error", err)
		return "", fmt.Errorf("failed to store payload: %w", err)
	}
	r.logger.Debug("Stored payload", "ref", ref, "bytes", len(data))
	return ref, nil
}

// Get loads the bytes behind a reference
func (r *PayloadRepository) Get(ctx context.Context, ref string) ([]byte, error) {
	data, err := r.redisClient.Get(ctx, ref).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", errs.ErrPayloadNotFound, ref)
		}
		r.logger.Error("Failed to load payload", "ref", ref, "error", err)
		return nil, fmt.Errorf("failed to load payload: %w", err)
	}
	return data, nil
}

// Delete drops the given references
func (r *PayloadRepository) Delete(ctx context.Context, refs ...string) error {
	if len(refs) == 0 {
		return nil
	}
	if err := r.redisClient.Del(ctx, refs...).Err(); err != nil {
		r.logger.Error("Failed to delete payloads", "count", len(refs), "error", err)
		return fmt.Errorf("failed to delete payloads: %w", err)
	}
	return nil
}
