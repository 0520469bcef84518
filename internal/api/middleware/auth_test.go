package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/nailart-api/internal/api/shared"
	"github.com/phrazzld/nailart-api/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockJWTService struct {
	mock.Mock
}

func (m *MockJWTService) GenerateToken(ctx context.Context, userID uuid.UUID) (string, error) {
	args := m.Called(ctx, userID)
	return args.String(0), args.Error(1)
}

func (m *MockJWTService) ValidateToken(ctx context.Context, token string) (*auth.Claims, error) {
	args := m.Called(ctx, token)
	var claims *auth.Claims
	if arg := args.Get(0); arg != nil {
		claims = arg.(*auth.Claims)
	}
	return claims, args.Error(1)
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	tests := []struct {
		name           string
		authHeader     string
		query          string
		token          string
		validateErr    error
		claims         *auth.Claims
		expectedStatus int
		expectedUserID uuid.UUID
	}{
		{
			name:           "valid token",
			authHeader:     "Bearer valid-token",
			token:          "valid-token",
			claims:         &auth.Claims{UserID: userID},
			expectedStatus: http.StatusOK,
			expectedUserID: userID,
		},
		{
			name:           "query token for event streams",
			query:          "?taskId=x&access_token=stream-token",
			token:          "stream-token",
			claims:         &auth.Claims{UserID: userID},
			expectedStatus: http.StatusOK,
			expectedUserID: userID,
		},
		{
			name:           "missing auth header",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "invalid auth format",
			authHeader:     "InvalidFormat",
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "expired token",
			authHeader:     "Bearer expired-token",
			token:          "expired-token",
			validateErr:    auth.ErrExpiredToken,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "subject is not a user id",
			authHeader:     "Bearer anon-token",
			token:          "anon-token",
			validateErr:    auth.ErrInvalidSubject,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unexpected validation failure",
			authHeader:     "Bearer odd-token",
			token:          "odd-token",
			validateErr:    errors.New("key lookup failed"),
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			jwtService := &MockJWTService{}
			if tc.token != "" {
				jwtService.On("ValidateToken", mock.Anything, tc.token).Return(tc.claims, tc.validateErr)
			}

			var gotUserID uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUserID, _ = shared.UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/tasks/history"+tc.query, nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rec := httptest.NewRecorder()

			NewAuthMiddleware(jwtService, nil).Authenticate(next).ServeHTTP(rec, req)

			assert.Equal(t, tc.expectedStatus, rec.Code)
			assert.Equal(t, tc.expectedUserID, gotUserID)
			jwtService.AssertExpectations(t)
		})
	}
}

func TestAuthMiddleware_OptionalAuthenticate(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	tests := []struct {
		name           string
		authHeader     string
		token          string
		validateErr    error
		claims         *auth.Claims
		expectedUserID uuid.UUID
	}{
		{
			name:           "valid token",
			authHeader:     "Bearer valid-token",
			token:          "valid-token",
			claims:         &auth.Claims{UserID: userID},
			expectedUserID: userID,
		},
		{
			name: "missing auth header",
		},
		{
			name:       "invalid auth format",
			authHeader: "InvalidFormat",
		},
		{
			name:        "expired token",
			authHeader:  "Bearer expired-token",
			token:       "expired-token",
			validateErr: auth.ErrExpiredToken,
		},
		{
			name:        "unexpected validation failure",
			authHeader:  "Bearer odd-token",
			token:       "odd-token",
			validateErr: errors.New("key lookup failed"),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			jwtService := &MockJWTService{}
			if tc.token != "" {
				jwtService.On("ValidateToken", mock.Anything, tc.token).Return(tc.claims, tc.validateErr)
			}

			var (
				called    bool
				gotUserID uuid.UUID
				found     bool
			)
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				gotUserID, found = shared.UserIDFromContext(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/tasks/status?taskId=x", nil)
			if tc.authHeader != "" {
				req.Header.Set("Authorization", tc.authHeader)
			}
			rec := httptest.NewRecorder()

			NewAuthMiddleware(jwtService, nil).OptionalAuthenticate(next).ServeHTTP(rec, req)

			assert.True(t, called)
			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tc.expectedUserID != uuid.Nil, found)
			assert.Equal(t, tc.expectedUserID, gotUserID)
			jwtService.AssertExpectations(t)
		})
	}
}

func TestOperatorKey(t *testing.T) {
	t.Parallel()

	hash, err := auth.HashOperatorKey("operator-secret")
	assert.NoError(t, err)

	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

	tests := []struct {
		name   string
		hash   string
		key    string
		status int
	}{
		{"disabled", "", "operator-secret", http.StatusForbidden},
		{"missing key", hash, "", http.StatusUnauthorized},
		{"wrong key", hash, "guess", http.StatusUnauthorized},
		{"valid key", hash, "operator-secret", http.StatusNoContent},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := httptest.NewRequest(http.MethodPost, "/api/tasks/cleanup", nil)
			if tc.key != "" {
				req.Header.Set(OperatorKeyHeader, tc.key)
			}
			rec := httptest.NewRecorder()
			OperatorKey(auth.NewOperatorKeyVerifier(tc.hash))(ok).ServeHTTP(rec, req)
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestTraceMiddleware(t *testing.T) {
	t.Parallel()

	var traceID string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID = shared.GetTraceID(r.Context())
	})

	rec := httptest.NewRecorder()
	NewTraceMiddleware(nil)(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Len(t, traceID, 32)
	assert.Equal(t, traceID, rec.Header().Get(TraceIDHeader))
}
