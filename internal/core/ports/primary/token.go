package primary

import (
	"context"
	"time"
)

// TokenService issues and checks the service tokens of the HTTP API
type TokenService interface {
	Enabled() bool
	GenerateTokenHMAC(ctx context.Context, subject string, ttl time.Duration) (string, error)
	// VerifyTokenHMAC returns the subject of a valid token
	VerifyTokenHMAC(ctx context.Context, token string) (string, error)
}
