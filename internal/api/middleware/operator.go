package middleware

import (
	"net/http"

	"github.com/phrazzld/nailart-api/internal/api/shared"
	"github.com/phrazzld/nailart-api/internal/service/auth"
)

// OperatorKeyHeader carries the key for maintenance endpoints.
const OperatorKeyHeader = "X-Operator-Key"

// OperatorKey guards maintenance endpoints such as cleanup and process.
// When no key is configured the endpoints answer 403.
func OperatorKey(verifier *auth.OperatorKeyVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !verifier.Enabled() {
				shared.RespondWithError(w, r, http.StatusForbidden, "Operator endpoints are disabled")
				return
			}
			if err := verifier.Verify(r.Header.Get(OperatorKeyHeader)); err != nil {
				shared.RespondWithErrorAndLog(w, r, http.StatusUnauthorized, "Invalid operator key", err,
					shared.WithElevatedLogLevel())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
