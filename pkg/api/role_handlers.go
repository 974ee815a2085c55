package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/audit"
	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/httputil"
	"github.com/pariksha-io/pariksha/pkg/middleware"
	"github.com/pariksha-io/pariksha/pkg/observability"
)

// RoleHandlers handles role administration HTTP requests. The server mounts
// the read routes behind VIEW_ROLES and the mutations admin-only, so the
// handlers themselves carry no permission checks.
type RoleHandlers struct {
	store    directory.Store
	recorder audit.Recorder
	logger   *observability.Logger
}

// NewRoleHandlers creates a new role handlers instance
func NewRoleHandlers(store directory.Store, recorder audit.Recorder, logger *observability.Logger) *RoleHandlers {
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	return &RoleHandlers{
		store:    store,
		recorder: recorder,
		logger:   logger,
	}
}

// RegisterReadRoutes registers the role read routes
func (h *RoleHandlers) RegisterReadRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.listRoles).Methods("GET")
	router.HandleFunc("/roles/{id}", h.getRole).Methods("GET")
}

// RegisterAdminRoutes registers the role mutation routes
func (h *RoleHandlers) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.createRole).Methods("POST")
	router.HandleFunc("/roles/{id}", h.updateRole).Methods("PUT")
	router.HandleFunc("/roles/{id}", h.deleteRole).Methods("DELETE")
	router.HandleFunc("/roles/{id}/permissions", h.replacePermissions).Methods("PUT")
	router.HandleFunc("/roles/{id}/permissions/{permissionId}", h.addPermission).Methods("POST")
	router.HandleFunc("/roles/{id}/permissions/{permissionId}", h.removePermission).Methods("DELETE")
}

// listRoles handles GET /roles
func (h *RoleHandlers) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.store.ListRoles(r.Context())
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"roles": roles,
		"count": len(roles),
	})
}

// getRole handles GET /roles/{id}
func (h *RoleHandlers) getRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// createRole handles POST /roles. Permissions are referenced by name; the
// store resolves and attaches them, rejecting unknown names.
func (h *RoleHandlers) createRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateAll(w, httputil.NonEmpty("name", req.Name)) {
		return
	}

	permissions := make([]directory.Permission, 0, len(req.Permissions))
	for _, name := range req.Permissions {
		if name = strings.TrimSpace(name); name != "" {
			permissions = append(permissions, directory.Permission{Name: name})
		}
	}

	role := &directory.Role{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Permissions: permissions,
	}
	if err := h.store.CreateRole(r.Context(), role); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, audit.EventTypeAdminRoleCreate, role.ID,
		fmt.Sprintf("created role %s", role.Name),
		map[string]interface{}{"permissions": rolePermissionNames(role)})

	httputil.WriteCreated(w, role)
}

// updateRole handles PUT /roles/{id}
func (h *RoleHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req UpdateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if req.Name != nil {
		role.Name = strings.TrimSpace(*req.Name)
	}
	if req.Description != nil {
		role.Description = *req.Description
	}

	if err := h.store.UpdateRole(r.Context(), role); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, audit.EventTypeAdminRoleUpdate, role.ID,
		fmt.Sprintf("updated role %s", role.Name), nil)

	httputil.WriteSuccess(w, role)
}

// deleteRole handles DELETE /roles/{id}. The store refuses while any user
// still holds the role.
func (h *RoleHandlers) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if err := h.store.DeleteRole(r.Context(), id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, audit.EventTypeAdminRoleDelete, id,
		fmt.Sprintf("deleted role %s", role.Name), nil)

	httputil.WriteNoContent(w)
}

// replacePermissions handles PUT /roles/{id}/permissions
func (h *RoleHandlers) replacePermissions(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req ReplacePermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	permissions := make([]directory.Permission, 0, len(req.Permissions))
	ids := make([]int64, 0, len(req.Permissions))
	seen := make(map[string]bool, len(req.Permissions))
	for _, name := range req.Permissions {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true

		permission, err := h.store.GetPermissionByName(r.Context(), name)
		if err != nil {
			if apperr.IsNotFound(err) {
				httputil.WriteAppError(w, apperr.Validationf("unknown permission: %s", name))
				return
			}
			httputil.WriteAppError(w, err)
			return
		}
		permissions = append(permissions, *permission)
		ids = append(ids, permission.ID)
	}

	if err := h.store.ReplaceRolePermissions(r.Context(), id, ids); err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	role.Permissions = permissions

	h.record(r, audit.EventTypeAdminRoleUpdate, id,
		fmt.Sprintf("replaced permissions of role %s", role.Name),
		map[string]interface{}{"permissions": rolePermissionNames(role)})

	httputil.WriteSuccess(w, role)
}

// addPermission handles POST /roles/{id}/permissions/{permissionId}
func (h *RoleHandlers) addPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := httputil.ParsePathInt64OrError(w, r, "permissionId")
	if !ok {
		return
	}

	if err := h.store.AddPermissionToRole(r.Context(), roleID, permissionID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, audit.EventTypeAdminRoleUpdate, roleID,
		"attached permission "+strconv.FormatInt(permissionID, 10), nil)

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

// removePermission handles DELETE /roles/{id}/permissions/{permissionId}
func (h *RoleHandlers) removePermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	permissionID, ok := httputil.ParsePathInt64OrError(w, r, "permissionId")
	if !ok {
		return
	}

	if err := h.store.RemovePermissionFromRole(r.Context(), roleID, permissionID); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, audit.EventTypeAdminRoleUpdate, roleID,
		"detached permission "+strconv.FormatInt(permissionID, 10), nil)

	role, err := h.store.GetRole(r.Context(), roleID)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

func (h *RoleHandlers) record(r *http.Request, eventType audit.EventType, roleID int64, description string, metadata map[string]interface{}) {
	actor := middleware.Actor(r)
	if actor == nil {
		return
	}
	recordAdminEvent(r, h.recorder, actor, eventType, audit.ResourceTypeRole,
		strconv.FormatInt(roleID, 10), description, metadata)
}

func rolePermissionNames(role *directory.Role) []string {
	names := make([]string, len(role.Permissions))
	for i, p := range role.Permissions {
		names[i] = p.Name
	}
	return names
}
