package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/auth"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/httputil"
	"github.com/pariksha-io/pariksha/pkg/middleware"
	"github.com/pariksha-io/pariksha/pkg/observability"
	"github.com/pariksha-io/pariksha/pkg/rbac"
)

// defaultListLimit caps unpaginated user listings
const defaultListLimit = 100

// UserHandlers handles user administration HTTP requests. Every operation
// runs its authorization against the resolved actor and the loaded target,
// never against token claims.
type UserHandlers struct {
	store    directory.Store
	engine   *rbac.Engine
	hasher   auth.Hasher
	recorder audit.Recorder
	logger   *observability.Logger
	metrics  *observability.Metrics

	minPasswordLength int
}

// NewUserHandlers creates a new user handlers instance
func NewUserHandlers(store directory.Store, engine *rbac.Engine, hasher auth.Hasher, recorder audit.Recorder, logger *observability.Logger, metrics *observability.Metrics) *UserHandlers {
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	return &UserHandlers{
		store:             store,
		engine:            engine,
		hasher:            hasher,
		recorder:          recorder,
		logger:            logger,
		metrics:           metrics,
		minPasswordLength: 8,
	}
}

// WithMinPasswordLength overrides the minimum length for initial passwords
func (h *UserHandlers) WithMinPasswordLength(n int) *UserHandlers {
	if n > 0 {
		h.minPasswordLength = n
	}
	return h
}

// RegisterRoutes registers user administration routes. The router must carry
// the authentication middleware; permission and scope checks happen here.
func (h *UserHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.createUser).Methods("POST")
	router.HandleFunc("/users", h.listUsers).Methods("GET")
	router.HandleFunc("/users/{id}", h.getUser).Methods("GET")
	router.HandleFunc("/users/{id}", h.updateUser).Methods("PUT")
	router.HandleFunc("/users/{id}/roles", h.replaceRoles).Methods("PUT")
	router.HandleFunc("/users/{id}/deactivate", h.deactivateUser).Methods("POST")
	router.HandleFunc("/users/{id}/activate", h.activateUser).Methods("POST")
	router.HandleFunc("/users/{id}", h.deleteUser).Methods("DELETE")
}

// createUser handles POST /users
func (h *UserHandlers) createUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	var req CreateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateAll(w,
		httputil.NonEmpty("email", req.Email),
		httputil.NonEmpty("username", req.Username),
		httputil.NonEmpty("name", req.Name),
		httputil.MinLength("password", req.Password, h.minPasswordLength),
	) {
		return
	}
	if len(req.Roles) == 0 {
		httputil.WriteValidationError(w, "at least one role is required")
		return
	}

	if err := h.engine.RequirePermission(actor, directory.PermCreateUser); err != nil {
		h.deny(w, r, actor, err)
		return
	}

	roles, err := h.resolveRoles(r.Context(), req.Roles)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if err := h.requireGrantable(actor, roles); err != nil {
		h.deny(w, r, actor, err)
		return
	}

	user := &directory.User{
		Email:       strings.TrimSpace(req.Email),
		Username:    strings.TrimSpace(req.Username),
		Name:        strings.TrimSpace(req.Name),
		PhoneNumber: req.PhoneNumber,
		Active:      true,
		Roles:       roles,
	}
	applyPlacement(user, req.Placement)

	// The new account must sit inside the actor's management span.
	if err := h.engine.RequireCanManageUser(actor, user); err != nil {
		h.deny(w, r, actor, err)
		return
	}

	hash, err := h.hasher.Hash(req.Password)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	user.PasswordHash = hash

	if err := h.store.CreateUser(r.Context(), user); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, actor, audit.EventTypeAdminUserCreate, user.ID.String(),
		fmt.Sprintf("created user %s", user.Email),
		map[string]interface{}{"roles": user.RoleNames()})

	httputil.WriteCreated(w, user)
}

// listUsers handles GET /users
func (h *UserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	if err := h.engine.RequirePermission(actor, directory.PermViewUser); err != nil {
		h.deny(w, r, actor, err)
		return
	}

	filter := parseUserFilter(r)
	if err := h.scopeFilter(actor, &filter); err != nil {
		if apperr.IsPermissionDenied(err) {
			h.deny(w, r, actor, err)
			return
		}
		httputil.WriteAppError(w, err)
		return
	}

	users, err := h.store.ListUsers(r.Context(), filter)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"users":  users,
		"count":  len(users),
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}

// getUser handles GET /users/{id}
func (h *UserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	// Own record is always visible; everything else needs the view
	// permission plus a scope match.
	if !h.engine.CanEditOwnProfile(actor, id) {
		if err := h.engine.RequirePermission(actor, directory.PermViewUser); err != nil {
			h.deny(w, r, actor, err)
			return
		}
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if !h.engine.CanEditOwnProfile(actor, id) {
		if err := h.engine.RequireCanManageUser(actor, user); err != nil {
			h.deny(w, r, actor, err)
			return
		}
	}

	httputil.WriteSuccess(w, user)
}

// updateUser handles PUT /users/{id}
func (h *UserHandlers) updateUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req UpdateUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	manager := h.engine.HasPermission(actor, directory.PermUpdateUser) &&
		h.engine.CanManageUser(actor, user) &&
		!h.engine.HasHigherPrivilege(user, actor)

	if !manager {
		if !h.engine.CanEditOwnProfile(actor, id) {
			h.deny(w, r, actor, apperr.PermissionDenied("not authorized to manage this user"))
			return
		}
		// Self-service edits stop at the profile: placement and verification
		// are management decisions.
		if req.Placement != nil || req.EmailVerified != nil {
			h.deny(w, r, actor, apperr.PermissionDenied("changing placement or verification requires user management rights"))
			return
		}
	}

	if req.Name != nil {
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.PhoneNumber != nil {
		user.PhoneNumber = req.PhoneNumber
	}
	if req.EmailVerified != nil {
		user.EmailVerified = *req.EmailVerified
	}
	if req.Placement != nil {
		applyPlacement(user, *req.Placement)
	}

	if err := h.store.UpdateUser(r.Context(), user); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, actor, audit.EventTypeAdminUserUpdate, user.ID.String(),
		"updated user profile",
		map[string]interface{}{"self": actor.ID == user.ID})

	httputil.WriteSuccess(w, user)
}

// replaceRoles handles PUT /users/{id}/roles
func (h *UserHandlers) replaceRoles(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	var req ReplaceRolesRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if len(req.Roles) == 0 {
		httputil.WriteValidationError(w, "at least one role is required")
		return
	}

	if err := h.engine.RequirePermission(actor, directory.PermUpdateUser); err != nil {
		h.deny(w, r, actor, err)
		return
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if err := h.requireManageable(actor, user); err != nil {
		h.deny(w, r, actor, err)
		return
	}

	roles, err := h.resolveRoles(r.Context(), req.Roles)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	if err := h.requireGrantable(actor, roles); err != nil {
		h.deny(w, r, actor, err)
		return
	}

	roleIDs := make([]int64, len(roles))
	for i, role := range roles {
		roleIDs[i] = role.ID
	}
	if err := h.store.ReplaceUserRoles(r.Context(), id, roleIDs); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	user.Roles = roles

	h.record(r, actor, audit.EventTypeAdminUserUpdate, user.ID.String(),
		"replaced user roles",
		map[string]interface{}{"roles": user.RoleNames()})

	httputil.WriteSuccess(w, user)
}

// deactivateUser handles POST /users/{id}/deactivate
func (h *UserHandlers) deactivateUser(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, false)
}

// activateUser handles POST /users/{id}/activate
func (h *UserHandlers) activateUser(w http.ResponseWriter, r *http.Request) {
	h.setActive(w, r, true)
}

func (h *UserHandlers) setActive(w http.ResponseWriter, r *http.Request, active bool) {
	actor := middleware.Actor(r)
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	// Deactivation revokes access, reactivation restores it; they sit under
	// the delete and update permissions respectively.
	perm := directory.PermDeleteUser
	if active {
		perm = directory.PermUpdateUser
	}
	if err := h.engine.RequirePermission(actor, perm); err != nil {
		h.deny(w, r, actor, err)
		return
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if err := h.requireManageable(actor, user); err != nil {
		h.deny(w, r, actor, err)
		return
	}

	if err := h.store.SetUserActive(r.Context(), id, active); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	user.Active = active

	if active {
		h.record(r, actor, audit.EventTypeAdminUserUpdate, user.ID.String(),
			fmt.Sprintf("reactivated user %s", user.Email), nil)
		httputil.WriteSuccess(w, map[string]string{"status": "activated"})
		return
	}
	h.record(r, actor, audit.EventTypeAdminUserDeactivate, user.ID.String(),
		fmt.Sprintf("deactivated user %s", user.Email), nil)
	httputil.WriteSuccess(w, map[string]string{"status": "deactivated"})
}

// deleteUser handles DELETE /users/{id}. Hard deletion is admin tooling;
// day-to-day offboarding goes through deactivation.
func (h *UserHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	actor := middleware.Actor(r)
	if actor == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathUUIDOrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.engine.RequireAdmin(actor); err != nil {
		h.deny(w, r, actor, err)
		return
	}
	if id == actor.ID {
		httputil.WriteAppError(w, apperr.Validation("cannot delete your own account"))
		return
	}

	user, err := h.store.GetUser(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if err := h.store.DeleteUser(r.Context(), id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, actor, audit.EventTypeAdminUserDelete, id.String(),
		fmt.Sprintf("deleted user %s", user.Email), nil)

	httputil.WriteNoContent(w)
}

// resolveRoles loads the named roles from the directory. Unknown names are a
// validation failure: role assignment never creates roles on the fly.
func (h *UserHandlers) resolveRoles(ctx context.Context, names []string) ([]directory.Role, error) {
	roles := make([]directory.Role, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		role, err := h.store.GetRoleByName(ctx, name)
		if err != nil {
			if apperr.IsNotFound(err) {
				return nil, apperr.Validationf("unknown role: %s", name)
			}
			return nil, err
		}
		roles = append(roles, *role)
	}
	if len(roles) == 0 {
		return nil, apperr.Validation("at least one role is required")
	}
	return roles, nil
}

// requireGrantable rejects grants that would mint an account more privileged
// than the granting actor.
func (h *UserHandlers) requireGrantable(actor *directory.User, roles []directory.Role) error {
	if h.engine.IsAdmin(actor) {
		return nil
	}
	level := h.engine.Level(actor)
	for _, role := range roles {
		if rbac.RoleLevel(role.Name) < level {
			return apperr.PermissionDeniedf("cannot grant role %s: it outranks your own role", role.Name)
		}
	}
	return nil
}

// requireManageable layers the privilege ceiling over the scope rules: scope
// match alone does not let a manager act on an account that outranks theirs.
func (h *UserHandlers) requireManageable(actor, target *directory.User) error {
	if err := h.engine.RequireCanManageUser(actor, target); err != nil {
		return err
	}
	if h.engine.HasHigherPrivilege(target, actor) {
		return apperr.PermissionDenied("cannot manage a user who outranks you")
	}
	return nil
}

// scopeFilter confines a listing to regions the actor may access. Admins
// pass through; other actors must name a scope inside their span, or have
// their own narrowest region applied.
func (h *UserHandlers) scopeFilter(actor *directory.User, filter *directory.UserFilter) error {
	if h.engine.IsAdmin(actor) {
		return nil
	}

	switch {
	case filter.ClassCode != "":
		if filter.SchoolCode == "" {
			return apperr.Validation("class_code filter requires school_code")
		}
		if !h.engine.CanAccessClass(actor, filter.SchoolCode, filter.ClassCode) {
			return apperr.PermissionDenied("not authorized to access this resource")
		}
	case filter.SchoolCode != "":
		if !h.engine.CanAccessSchool(actor, filter.SchoolCode) {
			return apperr.PermissionDenied("not authorized to access this resource")
		}
	case filter.DistrictCode != "":
		if !h.engine.CanAccessDistrict(actor, filter.DistrictCode) {
			return apperr.PermissionDenied("not authorized to access this resource")
		}
	case filter.StateCode != "":
		if !h.engine.CanAccessState(actor, filter.StateCode) {
			return apperr.PermissionDenied("not authorized to access this resource")
		}
	default:
		switch {
		case actor.ClassCode != nil && actor.SchoolCode != nil:
			filter.SchoolCode = *actor.SchoolCode
			filter.ClassCode = *actor.ClassCode
		case actor.SchoolCode != nil:
			filter.SchoolCode = *actor.SchoolCode
		case actor.DistrictCode != nil:
			filter.DistrictCode = *actor.DistrictCode
		case actor.StateCode != nil:
			filter.StateCode = *actor.StateCode
		default:
			return apperr.PermissionDenied("listing users requires an organizational scope")
		}
	}
	return nil
}

// deny records the rejection before the error goes out
func (h *UserHandlers) deny(w http.ResponseWriter, r *http.Request, actor *directory.User, err error) {
	middleware.RecordDenial(h.recorder, h.metrics, r, actor, err)
	httputil.WriteAppError(w, err)
}

// record emits an administrative audit event attributed to the request actor
func (h *UserHandlers) record(r *http.Request, actor *directory.User, eventType audit.EventType, resourceID, description string, metadata map[string]interface{}) {
	client := middleware.ClientFromRequest(r)
	h.recorder.Record(r.Context(), &audit.AuditEvent{
		EventType:    eventType,
		Status:       audit.EventStatusSuccess,
		ActorID:      &actor.ID,
		ActorEmail:   actor.Email,
		ActorRoles:   actor.RoleNames(),
		ResourceType: audit.ResourceTypeUser,
		ResourceID:   resourceID,
		IPAddress:    client.IP,
		UserAgent:    client.UserAgent,
		RequestID:    client.RequestID,
		Description:  description,
		Metadata:     metadata,
	})
}

// applyPlacement copies a placement onto the user wholesale. Partial scope
// edits are not supported: the parent-code invariants couple the fields.
func applyPlacement(user *directory.User, p Placement) {
	user.StateCode = p.StateCode
	user.StateName = p.StateName
	user.DistrictCode = p.DistrictCode
	user.DistrictName = p.DistrictName
	user.SchoolCode = p.SchoolCode
	user.SchoolName = p.SchoolName
	user.ClassCode = p.ClassCode
	user.ClassName = p.ClassName
	user.RollNumber = p.RollNumber
	user.DateOfBirth = p.DateOfBirth
	user.ParentEmail = p.ParentEmail
}

// parseUserFilter parses listing filters from query parameters. Unparseable
// values are ignored rather than rejected.
func parseUserFilter(r *http.Request) directory.UserFilter {
	query := r.URL.Query()
	filter := directory.UserFilter{
		RoleName:     query.Get("role"),
		StateCode:    query.Get("state_code"),
		DistrictCode: query.Get("district_code"),
		SchoolCode:   query.Get("school_code"),
		ClassCode:    query.Get("class_code"),
		Limit:        defaultListLimit,
	}

	if activeStr := query.Get("active"); activeStr != "" {
		if active, err := strconv.ParseBool(activeStr); err == nil {
			filter.Active = &active
		}
	}
	if limit, err := httputil.ParseQueryInt(r, "limit", defaultListLimit); err == nil && limit > 0 {
		filter.Limit = limit
	}
	if offset, err := httputil.ParseQueryInt(r, "offset", 0); err == nil && offset > 0 {
		filter.Offset = offset
	}
	return filter
}
