package directory

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pariksha-io/pariksha/pkg/apperr"
)

// Action represents an action a permission grants on a resource
type Action string

const (
	ActionRead    Action = "READ"
	ActionWrite   Action = "WRITE"
	ActionDelete  Action = "DELETE"
	ActionExecute Action = "EXECUTE"
)

// Canonical role names. Role rows are data; these names are the ones the
// authorization engine assigns hierarchy levels to.
const (
	RoleAdmin    = "ADMIN"
	RoleState    = "STATE"
	RoleDistrict = "DISTRICT"
	RoleSchool   = "SCHOOL"
	RoleClass    = "CLASS"
	RoleStudent  = "STUDENT"
)

// Permission represents a named capability grant. Identity is by Name;
// Resource and Action are coarse tags used for exact-match checks.
type Permission struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Resource    string    `json:"resource"`
	Action      Action    `json:"action"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Role represents a named bundle of permissions. An empty permission set is
// valid: such a role grants nothing.
type Role struct {
	ID          int64        `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Permissions []Permission `json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// User represents an account with identity fields, status flags, assigned
// roles, and an optional position in the organizational hierarchy.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Username      string    `json:"username"`
	Name          string    `json:"name"`
	PasswordHash  string    `json:"-"`
	PhoneNumber   *string   `json:"phone_number,omitempty"`
	Active        bool      `json:"active"`
	EmailVerified bool      `json:"email_verified"`
	Roles         []Role    `json:"roles"`

	// Hierarchy scope. All nullable; parent-code invariants are enforced by
	// Validate, not by the schema.
	StateCode    *string `json:"state_code,omitempty"`
	StateName    *string `json:"state_name,omitempty"`
	DistrictCode *string `json:"district_code,omitempty"`
	DistrictName *string `json:"district_name,omitempty"`
	SchoolCode   *string `json:"school_code,omitempty"`
	SchoolName   *string `json:"school_name,omitempty"`
	ClassCode    *string `json:"class_code,omitempty"`
	ClassName    *string `json:"class_name,omitempty"`

	// Student-only fields.
	RollNumber  *string    `json:"roll_number,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	ParentEmail *string    `json:"parent_email,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
}

// RoleNames returns the names of the user's roles in assignment order.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}

// PermissionNames returns the deduplicated union of permission names across
// all the user's roles, sorted for stable token claims.
func (u *User) PermissionNames() []string {
	seen := make(map[string]struct{})
	for _, r := range u.Roles {
		for _, p := range r.Permissions {
			seen[p.Name] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate checks identity fields, role assignment, and the scope-consistency
// invariants. Returns ValidationFailed on the first violation.
func (u *User) Validate() error {
	if strings.TrimSpace(u.Email) == "" {
		return apperr.Validation("email is required")
	}
	if strings.TrimSpace(u.Username) == "" {
		return apperr.Validation("username is required")
	}
	if strings.TrimSpace(u.Name) == "" {
		return apperr.Validation("name is required")
	}
	if len(u.Roles) == 0 {
		return apperr.Validation("user must have at least one role")
	}
	// A district places the user inside a state; a class inside a school. A
	// school code alone is fine (codes are globally unique), but a child code
	// with its parent missing is not.
	if u.DistrictCode != nil && u.StateCode == nil {
		return apperr.Validation("district_code requires state_code")
	}
	if u.ClassCode != nil && u.SchoolCode == nil {
		return apperr.Validation("class_code requires school_code")
	}
	return nil
}

// UserFilter narrows ListUsers. Zero values mean "no constraint".
type UserFilter struct {
	RoleName     string
	StateCode    string
	DistrictCode string
	SchoolCode   string
	ClassCode    string
	Active       *bool
	Limit        int
	Offset       int
}
