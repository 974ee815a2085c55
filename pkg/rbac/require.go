package rbac

import (
	"strings"

	"github.com/google/uuid"

	"github.com/pariksha-io/pariksha/pkg/apperr"
	"github.com/pariksha-io/pariksha/pkg/directory"
)

// The Require* guards are the enforcement form of the predicates: nil when
// allowed, apperr.PermissionDenied when not. Services call one at the top of
// each operation; the plain predicates stay boolean for composition.

// RequirePermission fails unless the user holds the named permission
func (e *Engine) RequirePermission(user *directory.User, name string) error {
	if !e.count("permission", e.HasPermission(user, name)) {
		return apperr.PermissionDeniedf("missing required permission: %s", name)
	}
	return nil
}

// RequireAnyPermission fails unless the user holds at least one of the named
// permissions.
func (e *Engine) RequireAnyPermission(user *directory.User, names ...string) error {
	if !e.count("any_permission", e.HasAnyPermission(user, names...)) {
		return apperr.PermissionDeniedf("missing required permission: one of %s", strings.Join(names, ", "))
	}
	return nil
}

// RequireRole fails unless the user holds the named role
func (e *Engine) RequireRole(user *directory.User, name string) error {
	if !e.count("role", e.HasRole(user, name)) {
		return apperr.PermissionDeniedf("role %s required", name)
	}
	return nil
}

// RequireAdmin fails unless the user holds the ADMIN role
func (e *Engine) RequireAdmin(user *directory.User) error {
	if !e.count("admin", e.IsAdmin(user)) {
		return apperr.PermissionDenied("administrator access required")
	}
	return nil
}

// RequireCanManageUser fails unless manager may act on target. The message
// stays generic so a denied caller learns nothing about the target's scope.
func (e *Engine) RequireCanManageUser(manager, target *directory.User) error {
	if !e.count("manage_user", e.CanManageUser(manager, target)) {
		return apperr.PermissionDenied("not authorized to manage this user")
	}
	return nil
}

// RequireOwnershipOrAdmin fails unless the user is the resource owner or an
// admin.
func (e *Engine) RequireOwnershipOrAdmin(user *directory.User, ownerID uuid.UUID) error {
	if !e.count("ownership_or_admin", e.CanEditOwnProfile(user, ownerID)) {
		return apperr.PermissionDenied("not authorized to access this resource")
	}
	return nil
}

// count records a guard decision and passes the verdict through
func (e *Engine) count(check string, allowed bool) bool {
	if e.metrics != nil {
		outcome := "denied"
		if allowed {
			outcome = "allowed"
		}
		e.metrics.AuthzDecisionsTotal.WithLabelValues(check, outcome).Inc()
	}
	return allowed
}
