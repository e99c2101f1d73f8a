// Package middleware provides HTTP middlewares for authentication,
// authorization and logging.
package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/atinyakov/ProjectShelf/internal/common"
	"github.com/atinyakov/ProjectShelf/internal/models"
	"go.uber.org/zap"
)

type ctxKey string

const callerKey ctxKey = "caller"

// TokenHeader carries the identity token.
const TokenHeader = "x-access-token"

// Rejection reasons reported to the caller.
const (
	ReasonMissingToken  = "missing token"
	ReasonInvalidToken  = "invalid token"
	ReasonAdminRequired = "admin required"
)

// TokenVerifier resolves a token to the public id it asserts.
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// UserLookup resolves a public id to its user.
type UserLookup interface {
	Get(ctx context.Context, publicID string) (*models.User, error)
}

// AuthResult is the outcome of authenticating a request: either the
// resolved caller or the status and reason it was rejected with.
type AuthResult struct {
	User   *models.User
	Status int
	Reason string
	Err    error
}

// OK reports whether a caller was resolved.
func (r AuthResult) OK() bool { return r.User != nil }

// tokenFromRequest reads the token header, falling back to a bearer
// Authorization header.
func tokenFromRequest(r *http.Request) string {
	if tok := strings.TrimSpace(r.Header.Get(TokenHeader)); tok != "" {
		return tok
	}
	authz := r.Header.Get("Authorization")
	if len(authz) > 7 && strings.EqualFold(authz[:7], "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return ""
}

// Authenticate resolves the caller of r. Expired, tampered and malformed
// tokens, as well as tokens of deleted accounts, are all reported as
// invalid.
func Authenticate(r *http.Request, verifier TokenVerifier, users UserLookup) AuthResult {
	tok := tokenFromRequest(r)
	if tok == "" {
		return AuthResult{Status: http.StatusUnauthorized, Reason: ReasonMissingToken}
	}
	publicID, err := verifier.Verify(tok)
	if err != nil {
		return AuthResult{Status: http.StatusUnauthorized, Reason: ReasonInvalidToken, Err: err}
	}
	user, err := users.Get(r.Context(), publicID)
	if errors.Is(err, common.ErrNotFound) {
		return AuthResult{Status: http.StatusUnauthorized, Reason: ReasonInvalidToken, Err: err}
	}
	if err != nil {
		return AuthResult{Status: http.StatusInternalServerError, Reason: "internal error", Err: err}
	}
	return AuthResult{User: user, Status: http.StatusOK}
}

// TokenAuth rejects requests without a valid token. On success the caller
// is stored in the request context, see CallerFromContext.
func TokenAuth(verifier TokenVerifier, users UserLookup, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res := Authenticate(r, verifier, users)
			if !res.OK() {
				if res.Status == http.StatusInternalServerError {
					log.Error("resolve caller", zap.Error(res.Err))
				} else {
					log.Debug("request rejected",
						zap.String("path", r.URL.Path),
						zap.String("reason", res.Reason),
					)
				}
				common.RespondWithError(w, res.Status, res.Reason)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithCaller(r.Context(), res.User)))
		})
	}
}

// AdminOnly lets through callers with the admin flag. It must run after TokenAuth.
func AdminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller, ok := CallerFromContext(r.Context())
		if !ok {
			common.RespondWithError(w, http.StatusUnauthorized, ReasonMissingToken)
			return
		}
		if !caller.Admin {
			common.RespondWithError(w, http.StatusForbidden, ReasonAdminRequired)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// WithCaller returns a copy of ctx carrying user as the authenticated caller.
func WithCaller(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, callerKey, user)
}

// CallerFromContext extracts the authenticated caller from ctx.
func CallerFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(callerKey).(*models.User)
	return user, ok && user != nil
}
