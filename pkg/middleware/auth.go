package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/auth"
	"github.com/pariksha-io/pariksha/pkg/contextkeys"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/httputil"
)

// UserLoader is the directory slice the auth middleware needs.
// directory.Store and directory.CachedStore both satisfy it.
type UserLoader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*directory.User, error)
}

// AuthContext carries the resolved actor for a request. User is loaded
// from the directory on every request, so role changes and deactivations
// take effect immediately; Claims keeps what the token itself asserted.
type AuthContext struct {
	User   *directory.User
	Claims *auth.Claims
}

// AuthMiddleware verifies the bearer token and resolves the current user
type AuthMiddleware struct {
	issuer   *auth.Issuer
	users    UserLoader
	optional bool // if true, requests without a token pass through unauthenticated
}

// NewAuthMiddleware creates an authentication middleware. With optional
// set, requests without an Authorization header continue without an
// AuthContext; any token that IS presented must still be valid.
func NewAuthMiddleware(issuer *auth.Issuer, users UserLoader, optional bool) *AuthMiddleware {
	return &AuthMiddleware{
		issuer:   issuer,
		users:    users,
		optional: optional,
	}
}

// Handler wraps an HTTP handler with bearer-token authentication
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			if m.optional {
				next.ServeHTTP(w, r)
				return
			}
			httputil.WriteUnauthorized(w, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			httputil.WriteUnauthorized(w, "invalid authorization header format")
			return
		}

		claims, err := m.issuer.Verify(parts[1])
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid or expired token")
			return
		}
		if claims.TokenType == auth.TokenTypeRefresh {
			httputil.WriteUnauthorized(w, "refresh tokens cannot be used for authentication")
			return
		}

		userID, err := uuid.Parse(claims.Subject)
		if err != nil {
			httputil.WriteUnauthorized(w, "invalid token subject")
			return
		}

		// Authorization always runs against the user's current state,
		// not against what the token claimed at issuance.
		user, err := m.users.GetUser(r.Context(), userID)
		if err != nil {
			if apperr.IsNotFound(err) {
				httputil.WriteUnauthorized(w, "user no longer exists")
				return
			}
			httputil.WriteInternalError(w, err)
			return
		}
		if !user.Active {
			httputil.WriteUnauthorized(w, "account is inactive")
			return
		}

		ctx := contextkeys.WithAuth(r.Context(), &AuthContext{User: user, Claims: claims})
		ctx = contextkeys.WithUserID(ctx, user.ID.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthContext extracts the auth context from a request. Returns nil
// when the request is unauthenticated.
func GetAuthContext(r *http.Request) *AuthContext {
	value := r.Context().Value(contextkeys.AuthKey)
	if value == nil {
		return nil
	}
	authCtx, ok := value.(*AuthContext)
	if !ok {
		return nil
	}
	return authCtx
}

// Actor returns the authenticated user for a request, or nil
func Actor(r *http.Request) *directory.User {
	authCtx := GetAuthContext(r)
	if authCtx == nil {
		return nil
	}
	return authCtx.User
}

// ClientFromRequest builds the audit attribution for a request
func ClientFromRequest(r *http.Request) auth.ClientContext {
	return auth.ClientContext{
		IP:        audit.ClientIP(r),
		UserAgent: r.UserAgent(),
		RequestID: contextkeys.GetRequestID(r.Context()),
	}
}
