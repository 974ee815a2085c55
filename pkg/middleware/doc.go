// Package middleware provides HTTP middleware for authentication, authorization, and login throttling.
//
// # Overview
//
// This package implements the request-processing layers that sit between the
// router and the handlers: bearer-token authentication with actor resolution,
// permission guards for route subtrees, and a Redis-backed rate limit for the
// login endpoint.
//
// # Middleware Components
//
// AuthMiddleware: JWT bearer authentication
//
//	authMW := middleware.NewAuthMiddleware(issuer, cachedStore, false)
//	protected.Use(authMW.Handler)
//	// Verifies the token, loads the CURRENT user from the directory,
//	// stashes an AuthContext on the request context
//
// Guard: permission checks for route subtrees
//
//	guard := middleware.NewGuard(engine, recorder, metrics)
//	adminRoutes.Use(guard.RequireAdmin())
//	auditRoutes.Use(guard.RequirePermission("VIEW_AUDIT_LOG"))
//	// Denials return 403 and are written to the audit trail
//
// LoginRateLimiter: per-IP fixed window on the login endpoint
//
//	limiter := middleware.NewLoginRateLimiter(redis, 10, time.Minute, logger, metrics)
//	login.Handler(limiter.Handler(http.HandlerFunc(handlers.Login)))
//	// Fails open when Redis is unavailable
//
// # Actor Resolution
//
// The auth middleware resolves the user from the directory on every request
// rather than trusting token claims. Role changes and deactivations take
// effect on the next request instead of at token expiry; the directory's
// two-tier cache keeps the lookup off the database in the common case.
//
// # Related Packages
//
//   - pkg/auth: token verification
//   - pkg/rbac: permission and role checks
//   - pkg/audit: denial events, client IP extraction
//   - pkg/directory: user resolution (CachedStore)
package middleware
