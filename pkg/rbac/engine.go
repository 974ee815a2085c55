package rbac

import (
	"github.com/google/uuid"

	"github.com/pariksha-io/pariksha/pkg/directory"
	"github.com/pariksha-io/pariksha/pkg/observability"
)

// Containment answers region-ancestry questions for the scope access checks.
// Both *hierarchy.Index and *hierarchy.Tree satisfy it.
type Containment interface {
	DistrictInState(districtCode, stateCode string) bool
	SchoolInDistrict(schoolCode, districtCode string) bool
	SchoolInState(schoolCode, stateCode string) bool
	ClassInSchool(classCode, schoolCode string) bool
}

// Engine evaluates authorization decisions over resolved user records. It
// holds no mutable state; a single engine serves all goroutines.
type Engine struct {
	regions Containment
	metrics *observability.Metrics
}

// NewEngine creates an engine. A nil regions source disables the containment
// lookups: higher roles then pass the district/school checks for any code
// below their level, which is only acceptable for tools that never load a
// region tree.
func NewEngine(regions Containment) *Engine {
	return &Engine{regions: regions}
}

// WithMetrics enables decision counting on the Require* guards
func (e *Engine) WithMetrics(m *observability.Metrics) *Engine {
	e.metrics = m
	return e
}

// HasRole reports whether the user holds a role with exactly this name.
// Matching is case-sensitive: "admin" is not ADMIN.
func (e *Engine) HasRole(user *directory.User, name string) bool {
	if user == nil {
		return false
	}
	for _, role := range user.Roles {
		if role.Name == name {
			return true
		}
	}
	return false
}

// HasAnyRole reports whether the user holds at least one of the named roles
func (e *Engine) HasAnyRole(user *directory.User, names ...string) bool {
	for _, name := range names {
		if e.HasRole(user, name) {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the user holds the ADMIN role
func (e *Engine) IsAdmin(user *directory.User) bool {
	return e.HasRole(user, directory.RoleAdmin)
}

// HasPermission reports whether the named permission appears in any of the
// user's roles.
func (e *Engine) HasPermission(user *directory.User, name string) bool {
	if user == nil {
		return false
	}
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			if perm.Name == name {
				return true
			}
		}
	}
	return false
}

// HasPermissionFor reports whether any permission across the user's roles
// matches both resource and action exactly. No wildcard matching.
func (e *Engine) HasPermissionFor(user *directory.User, resource string, action directory.Action) bool {
	if user == nil {
		return false
	}
	for _, role := range user.Roles {
		for _, perm := range role.Permissions {
			if perm.Resource == resource && perm.Action == action {
				return true
			}
		}
	}
	return false
}

// HasAnyPermission short-circuits over HasPermission
func (e *Engine) HasAnyPermission(user *directory.User, names ...string) bool {
	for _, name := range names {
		if e.HasPermission(user, name) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every named permission.
// An empty list is vacuously true.
func (e *Engine) HasAllPermissions(user *directory.User, names ...string) bool {
	for _, name := range names {
		if !e.HasPermission(user, name) {
			return false
		}
	}
	return true
}

// IsResourceOwner reports whether the user is the owner of a resource
// attributed to ownerID.
func (e *Engine) IsResourceOwner(user *directory.User, ownerID uuid.UUID) bool {
	return user != nil && user.ID == ownerID
}

// CanEditOwnProfile reports whether the user may edit the profile of
// targetID: admins may edit anyone, others only themselves.
func (e *Engine) CanEditOwnProfile(user *directory.User, targetID uuid.UUID) bool {
	return e.IsAdmin(user) || e.IsResourceOwner(user, targetID)
}

// CanManageUser decides whether manager may administratively act on target.
// The branches are ordered most-privileged-first and the first role match
// decides: a STATE coordinator outside the target's state is denied even if
// a lower-level code happens to line up.
func (e *Engine) CanManageUser(manager, target *directory.User) bool {
	if manager == nil || target == nil {
		return false
	}
	switch {
	case e.IsAdmin(manager):
		return true
	case e.HasRole(manager, directory.RoleState):
		// A state coordinator manages everyone under their state,
		// transitively; no district/school match required.
		return codesEqual(manager.StateCode, target.StateCode)
	case e.HasRole(manager, directory.RoleDistrict):
		// State must match too: district codes can collide across states.
		return codesEqual(manager.StateCode, target.StateCode) &&
			codesEqual(manager.DistrictCode, target.DistrictCode)
	case e.HasRole(manager, directory.RoleSchool):
		// School codes are globally unique; no parent check.
		return codesEqual(manager.SchoolCode, target.SchoolCode)
	case e.HasRole(manager, directory.RoleClass):
		// The only rule with a target-role constraint: a class teacher
		// manages the students of their class, not fellow teachers.
		return codesEqual(manager.SchoolCode, target.SchoolCode) &&
			codesEqual(manager.ClassCode, target.ClassCode) &&
			e.HasRole(target, directory.RoleStudent)
	default:
		return false
	}
}

// CanAccessState reports whether the user may read data scoped to a state
func (e *Engine) CanAccessState(user *directory.User, stateCode string) bool {
	if user == nil {
		return false
	}
	if e.IsAdmin(user) {
		return true
	}
	if stateCode == "" {
		return false
	}
	return user.StateCode != nil && *user.StateCode == stateCode
}

// CanAccessDistrict reports whether the user may read data scoped to a
// district. STATE coordinators reach every district contained in their
// state; everyone else needs their own district code to match.
func (e *Engine) CanAccessDistrict(user *directory.User, districtCode string) bool {
	if user == nil {
		return false
	}
	if e.IsAdmin(user) {
		return true
	}
	if districtCode == "" {
		return false
	}
	if e.HasRole(user, directory.RoleState) {
		if e.regions == nil {
			return true
		}
		return user.StateCode != nil && e.regions.DistrictInState(districtCode, *user.StateCode)
	}
	return user.DistrictCode != nil && *user.DistrictCode == districtCode
}

// CanAccessSchool reports whether the user may read data scoped to a school.
// STATE and DISTRICT coordinators reach schools contained in their scope;
// everyone else needs their own school code to match.
func (e *Engine) CanAccessSchool(user *directory.User, schoolCode string) bool {
	if user == nil {
		return false
	}
	if e.IsAdmin(user) {
		return true
	}
	if schoolCode == "" {
		return false
	}
	switch {
	case e.HasRole(user, directory.RoleState):
		if e.regions == nil {
			return true
		}
		return user.StateCode != nil && e.regions.SchoolInState(schoolCode, *user.StateCode)
	case e.HasRole(user, directory.RoleDistrict):
		if e.regions == nil {
			return true
		}
		return user.DistrictCode != nil && e.regions.SchoolInDistrict(schoolCode, *user.DistrictCode)
	default:
		return user.SchoolCode != nil && *user.SchoolCode == schoolCode
	}
}

// CanAccessClass reports whether the user may read data scoped to one class
// of one school. Coordinators above school level reach any class of a school
// inside their scope; a school admin reaches every class of their own
// school; CLASS and STUDENT roles see exactly their own class.
func (e *Engine) CanAccessClass(user *directory.User, schoolCode, classCode string) bool {
	if user == nil {
		return false
	}
	if e.IsAdmin(user) {
		return true
	}
	if schoolCode == "" || classCode == "" {
		return false
	}
	switch {
	case e.HasRole(user, directory.RoleState):
		if e.regions == nil {
			return true
		}
		return user.StateCode != nil &&
			e.regions.SchoolInState(schoolCode, *user.StateCode) &&
			e.regions.ClassInSchool(classCode, schoolCode)
	case e.HasRole(user, directory.RoleDistrict):
		if e.regions == nil {
			return true
		}
		return user.DistrictCode != nil &&
			e.regions.SchoolInDistrict(schoolCode, *user.DistrictCode) &&
			e.regions.ClassInSchool(classCode, schoolCode)
	case e.HasRole(user, directory.RoleSchool):
		if user.SchoolCode == nil || *user.SchoolCode != schoolCode {
			return false
		}
		return e.regions == nil || e.regions.ClassInSchool(classCode, schoolCode)
	case e.HasRole(user, directory.RoleClass), e.HasRole(user, directory.RoleStudent):
		return user.SchoolCode != nil && *user.SchoolCode == schoolCode &&
			user.ClassCode != nil && *user.ClassCode == classCode
	default:
		return false
	}
}

// codesEqual reports whether two scope codes are both present and equal.
// A nil on either side never matches: absent scope grants nothing.
func codesEqual(a, b *string) bool {
	return a != nil && b != nil && *a == *b
}
