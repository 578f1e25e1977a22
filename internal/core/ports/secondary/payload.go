package secondary

import (
	"context"
)

// PayloadStore holds payload bytes that are shipped by reference
type PayloadStore interface {
	Put(ctx context.Context, submissionID string, name string, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
	Delete(ctx context.Context, refs ...string) error
}
