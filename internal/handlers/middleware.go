package handlers

import (
	"net/http"
	"strings"

	"github.com/vishnukl-alation/hive/internal/core/ports/primary"
	"github.com/vishnukl-alation/hive/internal/handlers/response"
)

type MiddlewareProvider struct {
	tokens primary.TokenService
	logger primary.Logger
}

func New(tokens primary.TokenService, logger primary.Logger) *MiddlewareProvider {
	return &MiddlewareProvider{
		tokens: tokens,
		logger: logger,
	}
}

// JWTMiddleware requires a bearer token once a secret is configured
func (m *MiddlewareProvider) JWTMiddleware(next http.Handler) http.Handler {
	if m.tokens == nil || !m.tokens.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			response.WriteError(w, response.ErrorMessage{Message: "Authorization header missing", StatusCode: http.StatusUnauthorized})
			return
		}

		// Extract token from "Bearer <token>"
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		subject, err := m.tokens.VerifyTokenHMAC(r.Context(), tokenString)
		if err != nil {
			m.logger.Warn("Rejected token", "path", r.URL.Path, "error", err)
			response.WriteError(w, response.ErrorMessage{Message: "Invalid token", StatusCode: http.StatusUnauthorized})
			return
		}

		m.logger.Debug("Authenticated request", "subject", subject, "path", r.URL.Path)
		next.ServeHTTP(w, r)
	})
}
