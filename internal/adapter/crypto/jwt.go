package crypto

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vishnukl-alation/hive/internal/config"
	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
)

var _ primary.TokenService = (*JWTServiceImpl)(nil)

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokensDisabled = errors.New("token service disabled")
)

const issuer = "hive-coordinator"

type JWTServiceImpl struct {
	HMACSecretKey string
}

func NewJWTService(jwtConfig *config.JwtConfig) *JWTServiceImpl {
	return &JWTServiceImpl{
		HMACSecretKey: jwtConfig.Secret,
	}
}

// Enabled reports whether a secret is configured
func (J JWTServiceImpl) Enabled() bool {
	return J.HMACSecretKey != ""
}

func (J JWTServiceImpl) GenerateTokenHMAC(_ context.Context, subject string, ttl time.Duration) (string, error) {
	if !J.Enabled() {
		return "", ErrTokensDisabled
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return tok.SignedString([]byte(J.HMACSecretKey))
}

func (J JWTServiceImpl) VerifyTokenHMAC(_ context.Context, token string) (string, error) {
	if !J.Enabled() {
		return "", ErrTokensDisabled
	}

	var claims jwt.RegisteredClaims
	parsedToken, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(J.HMACSecretKey), nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsedToken.Valid {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
