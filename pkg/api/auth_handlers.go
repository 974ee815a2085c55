package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/auth"
	"github.com/pariksha-io/pariksha/pkg/httputil"
	"github.com/pariksha-io/pariksha/pkg/middleware"
	"github.com/pariksha-io/pariksha/pkg/observability"
)

// AuthHandlers handles login, token, and password HTTP requests
type AuthHandlers struct {
	service *auth.Service
	issuer  *auth.Issuer
	logger  *observability.Logger
}

// NewAuthHandlers creates a new auth handlers instance
func NewAuthHandlers(service *auth.Service, issuer *auth.Issuer, logger *observability.Logger) *AuthHandlers {
	return &AuthHandlers{
		service: service,
		issuer:  issuer,
		logger:  logger,
	}
}

// RegisterPublicRoutes registers the routes that run without an authenticated
// actor. limiter may be nil, leaving the login endpoint unthrottled.
func (h *AuthHandlers) RegisterPublicRoutes(router *mux.Router, limiter *middleware.LoginRateLimiter) {
	login := http.Handler(http.HandlerFunc(h.login))
	if limiter != nil {
		login = limiter.Handler(login)
	}
	router.Handle("/auth/login", login).Methods("POST")
	router.HandleFunc("/auth/refresh", h.refresh).Methods("POST")
	router.HandleFunc("/auth/validate", h.validate).Methods("POST")
}

// RegisterProtectedRoutes registers the routes that need a resolved actor
func (h *AuthHandlers) RegisterProtectedRoutes(router *mux.Router) {
	router.HandleFunc("/auth/me", h.me).Methods("GET")
	router.HandleFunc("/auth/change-password", h.changePassword).Methods("POST")
}

// login handles POST /auth/login
func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateAll(w,
		httputil.NonEmpty("identifier", req.Identifier),
		httputil.NonEmpty("password", req.Password),
	) {
		return
	}

	result, err := h.service.Authenticate(r.Context(), req.Identifier, req.Password, middleware.ClientFromRequest(r))
	if err != nil {
		switch {
		case apperr.IsNotFound(err):
			// An unknown identifier must not be distinguishable from a wrong
			// password at the public boundary.
			httputil.WriteUnauthorized(w, "invalid credentials")
		case apperr.IsValidation(err):
			httputil.WriteUnauthorized(w, appErrorMessage(err, "invalid credentials"))
		default:
			httputil.WriteAppError(w, err)
		}
		return
	}

	httputil.WriteSuccess(w, result)
}

// refresh handles POST /auth/refresh
func (h *AuthHandlers) refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateAll(w, httputil.NonEmpty("refresh_token", req.RefreshToken)) {
		return
	}

	result, err := h.service.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		// Possession of the token already proves a past login, so the exact
		// reason is safe to return. All rejections are a 401: the caller's
		// next move is a fresh login either way.
		if apperr.IsValidation(err) || apperr.IsNotFound(err) {
			httputil.WriteUnauthorized(w, appErrorMessage(err, "invalid or expired token"))
			return
		}
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteSuccess(w, result)
}

// validate handles POST /auth/validate. Other platform services call it to
// check tokens they receive; an invalid token is a 200 with valid=false.
func (h *AuthHandlers) validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	claims, err := h.issuer.Verify(req.Token)
	if err != nil {
		httputil.WriteSuccess(w, ValidateResponse{Valid: false})
		return
	}

	resp := ValidateResponse{
		Valid:  true,
		UserID: claims.Subject,
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = &claims.ExpiresAt.Time
	}
	httputil.WriteSuccess(w, resp)
}

// me handles GET /auth/me
func (h *AuthHandlers) me(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	httputil.WriteSuccess(w, actor)
}

// changePassword handles POST /auth/change-password
func (h *AuthHandlers) changePassword(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req ChangePasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateAll(w,
		httputil.NonEmpty("current_password", req.CurrentPassword),
		httputil.NonEmpty("new_password", req.NewPassword),
	) {
		return
	}

	if err := h.service.ChangePassword(r.Context(), actor.ID, req.CurrentPassword, req.NewPassword, middleware.ClientFromRequest(r)); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]string{"status": "password changed"})
}

// appErrorMessage returns the app-level message of err, or fallback when err
// is not an apperr.Error. Keeps internal wrapping detail out of responses.
func appErrorMessage(err error, fallback string) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return fallback
}
