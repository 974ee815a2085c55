// Package api provides the HTTP REST API server for the Pariksha testing
// platform backend.
//
// # Overview
//
// The package wires the domain packages into one http.Handler. Handler
// groups own their routes and register themselves on a gorilla/mux router:
// authentication endpoints, user administration, role and permission
// catalogs, audit queries, and hierarchy browsing. The Server applies the
// shared middleware chain and decides which guard sits in front of which
// group.
//
// # Endpoints
//
// Public (no token):
//
//	POST   /api/v1/auth/login            - Password login, rate limited per IP
//	POST   /api/v1/auth/refresh          - Exchange a refresh token
//	POST   /api/v1/auth/validate         - Inspect a token
//	GET    /api/v1/sso/login             - Begin federated login
//	GET    /api/v1/sso/callback          - Complete federated login
//
// Authenticated (bearer token, actor resolved from the directory):
//
//	GET    /api/v1/auth/me               - Current user profile
//	POST   /api/v1/auth/change-password  - Change own password
//	POST   /api/v1/users                 - Create user (scope checked)
//	GET    /api/v1/users                 - List users (narrowed to actor scope)
//	GET    /api/v1/users/{id}            - Get user
//	PUT    /api/v1/users/{id}            - Update user
//	PUT    /api/v1/users/{id}/roles      - Replace role set
//	POST   /api/v1/users/{id}/deactivate - Deactivate
//	POST   /api/v1/users/{id}/activate   - Reactivate
//	DELETE /api/v1/users/{id}            - Delete
//
// Guarded by VIEW_ROLES:
//
//	GET    /api/v1/roles, /api/v1/roles/{id}, /api/v1/permissions, ...
//
// Admin only:
//
//	POST/PUT/DELETE /api/v1/roles..., /api/v1/permissions...
//
// Guarded by VIEW_AUDIT_LOG:
//
//	GET    /api/v1/audit/events, /api/v1/audit/events/{id},
//	       /api/v1/audit/export, /api/v1/audit/stats
//
// Guarded by VIEW_HIERARCHY:
//
//	GET    /api/v1/hierarchy/states ... /api/v1/hierarchy/classes
//
// Liveness, readiness, and metrics are NOT served here; they live on the
// operational listener so the public port never exposes them.
//
// # Usage Example
//
//	server := api.NewServer(api.Config{
//		Directory:   store,
//		Engine:      engine,
//		Issuer:      issuer,
//		AuthService: authService,
//		Hasher:      hasher,
//		Recorder:    recorder,
//		Logger:      logger,
//	})
//	http.ListenAndServe(":8080", server)
//
// # Authorization Model
//
// The token only authenticates. Authorization always runs against the user
// record loaded from the directory during middleware, so role changes and
// deactivation take effect on the next request, not at token expiry. Scope
// decisions (who may manage whom) are made per handler through the rbac
// engine; coarse permission gates are applied as router middleware.
//
// # Related Packages
//
//   - pkg/auth: Credential verification and token issuing
//   - pkg/directory: Users, roles, permissions
//   - pkg/rbac: The decision engine behind the guards
//   - pkg/middleware: Token resolution, guards, login throttling
//   - pkg/audit: Recording and querying of audit events
//   - pkg/hierarchy: Region tree behind the browse endpoints
package api
