package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/auth"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/hierarchy"
	"github.com/pariksha-io/pariksha/pkg/httputil"
	"github.com/pariksha-io/pariksha/pkg/middleware"
	"github.com/pariksha-io/pariksha/pkg/observability"
	"github.com/pariksha-io/pariksha/pkg/rbac"
	"github.com/pariksha-io/pariksha/pkg/sso"
)

// Config carries the server dependencies. Directory, Engine, Issuer,
// AuthService, Hasher, Recorder and Logger are required. The rest degrade
// gracefully when absent: a nil AuditStore hides the audit query endpoints,
// a nil Tree hides hierarchy browsing, a nil SSOService disables single
// sign-on, and a nil RateLimiter leaves the login endpoint unthrottled.
type Config struct {
	Directory   directory.Store
	Engine      *rbac.Engine
	Issuer      *auth.Issuer
	AuthService *auth.Service
	Hasher      auth.Hasher
	Recorder    audit.Recorder
	Logger      *observability.Logger
	Metrics     *observability.Metrics

	AuditStore  audit.Store
	Tree        *hierarchy.Tree
	SSOProvider sso.Provider
	SSOService  *sso.Service
	RateLimiter *middleware.LoginRateLimiter

	// MinPasswordLength applies to passwords set through the user admin
	// endpoints. Zero means the package default.
	MinPasswordLength int
	// CORSOrigins enables CORS handling when non-empty
	CORSOrigins []string
	// MaxBodyBytes caps request body size. Zero means 1 MiB.
	MaxBodyBytes int64
}

const defaultMaxBodyBytes = 1 << 20

// Server represents our API server
type Server struct {
	config Config
	router *mux.Router
}

// NewServer creates a new API server and mounts all routes
func NewServer(config Config) *Server {
	if config.Recorder == nil {
		config.Recorder = audit.NoopRecorder{}
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = defaultMaxBodyBytes
	}
	s := &Server{
		config: config,
		router: mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures the full /api/v1 surface. Everything below the
// prefix shares the base middleware chain; the protected subtree adds
// bearer-token authentication, and the admin subtrees add permission
// guards on top.
func (s *Server) setupRoutes() {
	cfg := s.config

	s.router.Use(httputil.RequestIDMiddleware)
	s.router.Use(httputil.LoggingMiddleware(cfg.Logger))
	s.router.Use(httputil.RecoveryMiddleware(cfg.Logger))
	if cfg.Metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(cfg.Metrics))
	}
	if len(cfg.CORSOrigins) > 0 {
		s.router.Use(httputil.CORSMiddleware(cfg.CORSOrigins))
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(httputil.ContentTypeMiddleware)
	api.Use(httputil.MaxBytesMiddleware(cfg.MaxBodyBytes))

	// Public routes: no actor yet, so login throttling is the only gate.
	authHandlers := NewAuthHandlers(cfg.AuthService, cfg.Issuer, cfg.Logger)
	authHandlers.RegisterPublicRoutes(api, cfg.RateLimiter)

	if cfg.SSOService != nil {
		ssoHandlers := sso.NewHandlers(cfg.SSOProvider, cfg.SSOService, cfg.Logger)
		ssoHandlers.RegisterRoutes(api)
	}

	// Everything below resolves the current user from the directory on
	// each request; tokens only authenticate, the directory authorizes.
	authMW := middleware.NewAuthMiddleware(cfg.Issuer, cfg.Directory, false)
	protected := api.NewRoute().Subrouter()
	protected.Use(authMW.Handler)

	authHandlers.RegisterProtectedRoutes(protected)

	userHandlers := NewUserHandlers(cfg.Directory, cfg.Engine, cfg.Hasher, cfg.Recorder, cfg.Logger, cfg.Metrics)
	if cfg.MinPasswordLength > 0 {
		userHandlers.WithMinPasswordLength(cfg.MinPasswordLength)
	}
	userHandlers.RegisterRoutes(protected)

	guard := middleware.NewGuard(cfg.Engine, cfg.Recorder, cfg.Metrics)

	roleHandlers := NewRoleHandlers(cfg.Directory, cfg.Recorder, cfg.Logger)
	permissionHandlers := NewPermissionHandlers(cfg.Directory, cfg.Recorder, cfg.Logger)

	catalogRead := protected.NewRoute().Subrouter()
	catalogRead.Use(guard.RequirePermission(directory.PermViewRoles))
	roleHandlers.RegisterReadRoutes(catalogRead)
	permissionHandlers.RegisterReadRoutes(catalogRead)

	catalogAdmin := protected.NewRoute().Subrouter()
	catalogAdmin.Use(guard.RequireAdmin())
	roleHandlers.RegisterAdminRoutes(catalogAdmin)
	permissionHandlers.RegisterAdminRoutes(catalogAdmin)

	if cfg.AuditStore != nil {
		auditRoutes := protected.NewRoute().Subrouter()
		auditRoutes.Use(guard.RequirePermission(directory.PermViewAuditLog))
		audit.NewHandlers(cfg.AuditStore).RegisterRoutes(auditRoutes)
	}

	if cfg.Tree != nil {
		hierarchyRoutes := protected.NewRoute().Subrouter()
		hierarchyRoutes.Use(guard.RequirePermission(directory.PermViewHierarchy))
		hierarchy.NewHandlers(cfg.Tree).
			WithAccess(cfg.Engine, middleware.Actor).
			RegisterRoutes(hierarchyRoutes)
	}
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Router exposes the underlying mux router for additional registrations
func (s *Server) Router() *mux.Router {
	return s.router
}

// recordAdminEvent emits a success audit event attributed to the request
// actor. Shared by the role and permission handlers; user handlers carry
// their own variant because they also attach scope metadata.
func recordAdminEvent(r *http.Request, recorder audit.Recorder, actor *directory.User, eventType audit.EventType, resourceType audit.ResourceType, resourceID, description string, metadata map[string]interface{}) {
	client := middleware.ClientFromRequest(r)
	recorder.Record(r.Context(), &audit.AuditEvent{
		EventType:    eventType,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actor.ID,
		ActorEmail:   actor.Email,
		ActorRoles:   actor.RoleNames(),
		ResourceType: resourceType,
		ResourceID:   resourceID,
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		RequestID:    client.RequestID,
		Description:  description,
		Metadata:     metadata,
	})
}
