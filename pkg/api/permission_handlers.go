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

// PermissionHandlers handles permission catalog HTTP requests. Reads are
// mounted behind VIEW_ROLES, mutations admin-only.
type PermissionHandlers struct {
	store    directory.Store
	recorder audit.Recorder
	logger   *observability.Logger
}

// NewPermissionHandlers creates a new permission handlers instance
func NewPermissionHandlers(store directory.Store, recorder audit.Recorder, logger *observability.Logger) *PermissionHandlers {
	if recorder == nil {
		recorder = audit.NoopRecorder{}
	}
	return &PermissionHandlers{
		store:    store,
		recorder: recorder,
		logger:   logger,
	}
}

// RegisterReadRoutes registers the permission read routes
func (h *PermissionHandlers) RegisterReadRoutes(router *mux.Router) {
	router.HandleFunc("/permissions", h.listPermissions).Methods("GET")
	router.HandleFunc("/permissions/{id}", h.getPermission).Methods("GET")
}

// RegisterAdminRoutes registers the permission mutation routes
func (h *PermissionHandlers) RegisterAdminRoutes(router *mux.Router) {
	router.HandleFunc("/permissions", h.createPermission).Methods("POST")
	router.HandleFunc("/permissions/{id}", h.updatePermission).Methods("PUT")
	router.HandleFunc("/permissions/{id}", h.deletePermission).Methods("DELETE")
}

// listPermissions handles GET /permissions
func (h *PermissionHandlers) listPermissions(w http.ResponseWriter, r *http.Request) {
	permissions, err := h.store.ListPermissions(r.Context())
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"permissions": permissions,
		"count":       len(permissions),
	})
}

// getPermission handles GET /permissions/{id}
func (h *PermissionHandlers) getPermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	permission, err := h.store.GetPermission(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}
	httputil.WriteSuccess(w, permission)
}

// createPermission handles POST /permissions
func (h *PermissionHandlers) createPermission(w http.ResponseWriter, r *http.Request) {
	var req CreatePermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.ValidateAll(w,
		httputil.NonEmpty("name", req.Name),
		httputil.NonEmpty("resource", req.Resource),
	) {
		return
	}

	action, err := parseAction(req.Action)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	permission := &directory.Permission{
		Name:        strings.TrimSpace(req.Name),
		Resource:    strings.TrimSpace(req.Resource),
		Action:      action,
		Description: req.Description,
	}
	if err := h.store.CreatePermission(r.Context(), permission); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, audit.EventTypeAdminPermissionCreate, permission.ID,
		fmt.Sprintf("created permission %s", permission.Name), nil)

	httputil.WriteCreated(w, permission)
}

// updatePermission handles PUT /permissions/{id}
func (h *PermissionHandlers) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req UpdatePermissionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	permission, err := h.store.GetPermission(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if req.Name != nil {
		permission.Name = strings.TrimSpace(*req.Name)
	}
	if req.Resource != nil {
		permission.Resource = strings.TrimSpace(*req.Resource)
	}
	if req.Action != nil {
		action, err := parseAction(*req.Action)
		if err != nil {
			httputil.WriteAppError(w, err)
			return
		}
		permission.Action = action
	}
	if req.Description != nil {
		permission.Description = *req.Description
	}

	if err := h.store.UpdatePermission(r.Context(), permission); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, audit.EventTypeAdminPermissionUpdate, id,
		fmt.Sprintf("updated permission %s", permission.Name), nil)

	httputil.WriteSuccess(w, permission)
}

// deletePermission handles DELETE /permissions/{id}. The store refuses while
// any role still carries the permission.
func (h *PermissionHandlers) deletePermission(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	permission, err := h.store.GetPermission(r.Context(), id)
	if err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	if err := h.store.DeletePermission(r.Context(), id); err != nil {
		httputil.WriteAppError(w, err)
		return
	}

	h.record(r, audit.EventTypeAdminPermissionDelete, id,
		fmt.Sprintf("deleted permission %s", permission.Name), nil)

	httputil.WriteNoContent(w)
}

func (h *PermissionHandlers) record(r *http.Request, eventType audit.EventType, permissionID int64, description string, metadata map[string]interface{}) {
	actor := middleware.Actor(r)
	if actor == nil {
		return
	}
	recordAdminEvent(r, h.recorder, actor, eventType, audit.ResourceTypePermission,
		strconv.FormatInt(permissionID, 10), description, metadata)
}

// parseAction validates an action value against the closed set
func parseAction(value string) (directory.Action, error) {
	action := directory.Action(strings.ToUpper(strings.TrimSpace(value)))
	switch action {
	case directory.ActionRead, directory.ActionWrite, directory.ActionDelete, directory.ActionExecute:
		return action, nil
	}
	return "", apperr.Validationf("invalid action: %q", value)
}
