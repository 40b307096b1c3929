package auth

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	id "namereg/pkg/domain"
	request "namereg/pkg/platform/middleware/request"
	"namereg/pkg/requestcontext"
)

// Claims represents the claims we expect from the token validator.
type Claims struct {
	Address id.Address
}

// TokenValidator validates a bearer token and extracts the caller account.
type TokenValidator interface {
	ValidateToken(tokenString string) (*Claims, error)
}

func writeJSONError(w http.ResponseWriter, status int, errCode, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":"%s","reason":"%s"}`, errCode, reason))
}

// RequireAuth resolves the caller account from the Authorization header and
// stores it in the request context. Requests without a valid bearer token are
// rejected; every authenticated handler downstream reads the caller via
// requestcontext.Caller.
func RequireAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			const bearerPrefix = "Bearer "
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", request.GetRequestID(ctx),
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
				return
			}

			ctx := requestcontext.WithCaller(r.Context(), claims.Address)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
