package rbac

import (
	"github.com/pariksha-io/pariksha/pkg/directory"
)

// LevelUnknown is the privilege level of a role name outside the hierarchy
// table, and of a user with no roles. It compares lower-privileged than
// every real level.
const LevelUnknown = 999

// roleLevels ranks the canonical roles; lower is more privileged. The level
// is used only for privilege comparison, never for scope matching.
var roleLevels = map[string]int{
	directory.RoleAdmin:    0,
	directory.RoleState:    1,
	directory.RoleDistrict: 2,
	directory.RoleSchool:   3,
	directory.RoleClass:    4,
	directory.RoleStudent:  5,
}

// RoleLevel returns the hierarchy level of a role name, or LevelUnknown for
// names outside the table. Matching is exact and case-sensitive.
func RoleLevel(name string) int {
	if level, ok := roleLevels[name]; ok {
		return level
	}
	return LevelUnknown
}

// Level returns the most privileged (numerically lowest) level among the
// user's roles. A user with both ADMIN and STUDENT is level 0.
func (e *Engine) Level(user *directory.User) int {
	if user == nil {
		return LevelUnknown
	}
	level := LevelUnknown
	for _, role := range user.Roles {
		if l := RoleLevel(role.Name); l < level {
			level = l
		}
	}
	return level
}

// HasHigherPrivilege reports whether a outranks b in the role hierarchy.
// Equal levels are not "higher": a school admin does not outrank another
// school admin.
func (e *Engine) HasHigherPrivilege(a, b *directory.User) bool {
	return e.Level(a) < e.Level(b)
}
