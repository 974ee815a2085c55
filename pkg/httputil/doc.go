// Package httputil provides HTTP utilities for standardized request/response handling.
//
// # Overview
//
// This package offers helper functions for JSON encoding/decoding, error responses,
// parameter parsing, validation, and common HTTP middleware patterns.
//
// # Response Helpers
//
// JSON responses:
//
//	httputil.WriteJSON(w, http.StatusOK, data)
//	httputil.WriteCreated(w, resource)
//	httputil.WriteNoContent(w)
//
// Error responses:
//
//	httputil.WriteAppError(w, err) // status and code derived from the error kind
//	httputil.WriteBadRequest(w, "Invalid input")
//	httputil.WriteUnauthorized(w, "Token expired")
//
// WriteAppError inspects the error with pkg/apperr and picks the HTTP status
// (404, 409, 422, 403) and machine-readable code; anything unclassified becomes
// an opaque 500.
//
// # Request Parsing
//
// JSON parsing:
//
//	var req CreateUserRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//
// Path parameters:
//
//	userID, ok := httputil.ParsePathUUIDOrError(w, r, "id")
//	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
//
// Query parameters:
//
//	limit := httputil.ParseQueryInt(r, "limit", 50)
//	from, err := httputil.ParseQueryTime(r, "from")
//
// # Validation
//
//	httputil.ValidateAll(w,
//		httputil.NonEmpty("username", req.Username),
//		httputil.NonEmpty("email", req.Email),
//	)
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.CORSMiddleware([]string{"*"}),
//		httputil.MaxBytesMiddleware(1*1024*1024), // 1MB
//	)
//
// # Related Packages
//
//   - pkg/middleware: Authentication and authorization middleware
//   - pkg/apperr: Error classification used by WriteAppError
package httputil
