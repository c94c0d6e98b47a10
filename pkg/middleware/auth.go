package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	apperrors "github.com/henriquegoncalvesdev/credipesca/pkg/errors"
	"github.com/henriquegoncalvesdev/credipesca/pkg/httputil"
	"github.com/henriquegoncalvesdev/credipesca/pkg/logger"
)

type contextKeyType string

const identityKey contextKeyType = "identity"

// Identity is the caller resolved by the Auth middleware for the current request.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// Authenticator resolves a bearer token to the identity it belongs to.
// Errors carrying HTTP 401 are rendered as a uniform Unauthenticated
// response; any other error is treated as an internal failure.
type Authenticator func(ctx context.Context, token string) (*Identity, error)

// Gate decision labels recorded in auth_gate_decisions_total.
const (
	DecisionAllowed         = "allowed"
	DecisionUnauthenticated = "unauthenticated"
	DecisionForbidden       = "forbidden"
	DecisionError           = "error"
)

// Unauthenticated is the single client-facing error for every authentication
// failure. The concrete reason is only logged.
func Unauthenticated() *apperrors.AppError {
	return apperrors.Unauthenticated("Token de acesso inválido ou ausente", "Invalid or missing access token")
}

// InsufficientRole is returned when an authenticated caller lacks the role a route requires.
func InsufficientRole() *apperrors.AppError {
	return apperrors.Forbidden("Permissão insuficiente", "Insufficient permissions")
}

// Auth extracts the bearer token, resolves it through authenticate and stores
// the resulting Identity in the request context.
func Auth(authenticate Authenticator, l *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				deny(w, r, l, "missing or malformed authorization header", nil)
				return
			}

			identity, err := authenticate(ctx, token)
			if err != nil {
				if apperrors.HTTPStatus(err) == http.StatusUnauthorized {
					deny(w, r, l, "token rejected", err)
					return
				}
				authGateDecisions.WithLabelValues(DecisionError).Inc()
				httputil.WriteError(w, r, err, l)
				return
			}

			authGateDecisions.WithLabelValues(DecisionAllowed).Inc()

			ctx = WithIdentity(ctx, identity)
			ctx = logger.WithUserID(ctx, identity.ID)
			ctx = logger.NewContext(ctx, logger.FromContext(ctx).With(slog.String("user_id", identity.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows the request through only when the Identity attached by
// Auth has one of roles. A missing identity yields 401, a role outside the
// set yields 403.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	roleSet := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		roleSet[r] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := IdentityFromContext(r.Context())
			if !ok {
				authGateDecisions.WithLabelValues(DecisionUnauthenticated).Inc()
				httputil.WriteError(w, r, Unauthenticated(), nil)
				return
			}
			if _, ok := roleSet[identity.Role]; !ok {
				authGateDecisions.WithLabelValues(DecisionForbidden).Inc()
				logger.FromContext(r.Context()).WarnContext(r.Context(), "role not permitted",
					slog.String("role", identity.Role),
					slog.String("path", r.URL.Path),
				)
				httputil.WriteError(w, r, InsufficientRole(), nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WithIdentity returns a copy of ctx carrying identity.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity attached by Auth.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok && identity != nil
}

// UserIDFromContext returns the authenticated user ID, or "" when absent.
func UserIDFromContext(ctx context.Context) string {
	if identity, ok := IdentityFromContext(ctx); ok {
		return identity.ID
	}
	return ""
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func deny(w http.ResponseWriter, r *http.Request, l *slog.Logger, reason string, err error) {
	authGateDecisions.WithLabelValues(DecisionUnauthenticated).Inc()

	attrs := []any{slog.String("reason", reason), slog.String("path", r.URL.Path)}
	if err != nil {
		attrs = append(attrs, logger.Err(err))
	}
	requestLogger(r, l).InfoContext(r.Context(), "authentication failed", attrs...)

	httputil.WriteError(w, r, Unauthenticated(), l)
}

func requestLogger(r *http.Request, fallback *slog.Logger) *slog.Logger {
	l := logger.FromContext(r.Context())
	if l == slog.Default() && fallback != nil {
		return fallback
	}
	return l
}
