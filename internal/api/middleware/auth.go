// Package middleware provides the HTTP middleware shared by the API routes.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/api/shared"
	"github.com/phrazzld/nailart-api/internal/platform/logger"
	"github.com/phrazzld/nailart-api/internal/redact"
	"github.com/phrazzld/nailart-api/internal/service/auth"
)

// AccessTokenQueryParam carries the token for EventSource clients, which
// cannot set request headers.
const AccessTokenQueryParam = "access_token"

// AuthMiddleware provides JWT authentication for routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
	logger     *slog.Logger
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(jwtService auth.JWTService, log *slog.Logger) *AuthMiddleware {
	if log == nil {
		log = slog.Default()
	}
	return &AuthMiddleware{
		jwtService: jwtService,
		logger:     log.With(slog.String("component", "auth_middleware")),
	}
}

// Authenticate validates the bearer token and adds the owner id to the
// request context. Requests without a valid token get a 401.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, status, msg := m.authenticate(r)
		if status != http.StatusOK {
			shared.RespondWithError(w, r, status, msg)
			return
		}
		next.ServeHTTP(w, m.withUser(r, userID))
	})
}

// OptionalAuthenticate adds the owner id when the request carries a valid
// token and otherwise passes the request through unchanged. Handlers that
// must answer in their own protocol, like the status stream, check the
// identity themselves.
func (m *AuthMiddleware) OptionalAuthenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, status, msg := m.authenticate(r)
		if status != http.StatusOK {
			logger.FromContextOrDefault(r.Context(), m.logger).
				Debug("continuing without identity", "reason", msg)
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, m.withUser(r, userID))
	})
}

// authenticate returns the token's owner, or the status and message to
// reject the request with.
func (m *AuthMiddleware) authenticate(r *http.Request) (uuid.UUID, int, string) {
	token, msg := bearerToken(r)
	if token == "" {
		return uuid.Nil, http.StatusUnauthorized, msg
	}

	claims, err := m.jwtService.ValidateToken(r.Context(), token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			return uuid.Nil, http.StatusUnauthorized, "Token expired"
		case errors.Is(err, auth.ErrInvalidToken),
			errors.Is(err, auth.ErrInvalidSubject),
			errors.Is(err, auth.ErrTokenNotYetValid):
			return uuid.Nil, http.StatusUnauthorized, "Invalid token"
		default:
			logger.FromContextOrDefault(r.Context(), m.logger).
				Error("failed to validate token", "error", redact.Error(err))
			return uuid.Nil, http.StatusInternalServerError, "Authentication error"
		}
	}
	return claims.UserID, http.StatusOK, ""
}

func (m *AuthMiddleware) withUser(r *http.Request, userID uuid.UUID) *http.Request {
	ctx := shared.WithUserID(r.Context(), userID)
	log := logger.FromContextOrDefault(ctx, m.logger).With(slog.String("user_id", userID.String()))
	return r.WithContext(logger.WithLogger(ctx, log))
}

// bearerToken extracts the token from the Authorization header or, failing
// that, the access_token query parameter. On failure it returns the message
// for the 401 response.
func bearerToken(r *http.Request) (string, string) {
	header := r.Header.Get("Authorization")
	if header == "" {
		if token := r.URL.Query().Get(AccessTokenQueryParam); token != "" {
			return token, ""
		}
		return "", "Authorization header required"
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", "Invalid authorization format"
	}
	return strings.TrimSpace(token), ""
}
