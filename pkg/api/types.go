package api

import (
	"time"
)

// LoginRequest is the body for POST /auth/login. Identifier is an email or
// a username; email is tried first.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

// RefreshRequest is the body for POST /auth/refresh
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ValidateRequest is the body for POST /auth/validate
type ValidateRequest struct {
	Token string `json:"token"`
}

// ValidateResponse reports whether a token verifies. Invalid tokens are a
// 200 with Valid=false, not an error: the endpoint exists for other platform
// services to consult.
type ValidateResponse struct {
	Valid     bool       `json:"valid"`
	UserID    string     `json:"user_id,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ChangePasswordRequest is the body for POST /auth/change-password
type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Placement positions a user in the organizational hierarchy. The fields
// move together: replacing a user's placement replaces all of them, so the
// parent-code invariants stay checkable.
type Placement struct {
	StateCode    *string `json:"state_code,omitempty"`
	StateName    *string `json:"state_name,omitempty"`
	DistrictCode *string `json:"district_code,omitempty"`
	DistrictName *string `json:"district_name,omitempty"`
	SchoolCode   *string `json:"school_code,omitempty"`
	SchoolName   *string `json:"school_name,omitempty"`
	ClassCode    *string `json:"class_code,omitempty"`
	ClassName    *string `json:"class_name,omitempty"`

	RollNumber  *string    `json:"roll_number,omitempty"`
	DateOfBirth *time.Time `json:"date_of_birth,omitempty"`
	ParentEmail *string    `json:"parent_email,omitempty"`
}

// CreateUserRequest is the body for POST /users
type CreateUserRequest struct {
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	Name        string   `json:"name"`
	Password    string   `json:"password"`
	PhoneNumber *string  `json:"phone_number,omitempty"`
	Roles       []string `json:"roles"`

	Placement
}

// UpdateUserRequest is the body for PUT /users/{id}. Nil fields are left
// unchanged; a non-nil Placement replaces the hierarchy position wholesale.
type UpdateUserRequest struct {
	Name          *string    `json:"name"`
	PhoneNumber   *string    `json:"phone_number"`
	EmailVerified *bool      `json:"email_verified"`
	Placement     *Placement `json:"placement"`
}

// ReplaceRolesRequest is the body for PUT /users/{id}/roles
type ReplaceRolesRequest struct {
	Roles []string `json:"roles"`
}

// CreateRoleRequest is the body for POST /roles. Permissions are referenced
// by name and must already exist.
type CreateRoleRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest is the body for PUT /roles/{id}
type UpdateRoleRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// ReplacePermissionsRequest is the body for PUT /roles/{id}/permissions
type ReplacePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

// CreatePermissionRequest is the body for POST /permissions
type CreatePermissionRequest struct {
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

// UpdatePermissionRequest is the body for PUT /permissions/{id}
type UpdatePermissionRequest struct {
	Name        *string `json:"name"`
	Resource    *string `json:"resource"`
	Action      *string `json:"action"`
	Description *string `json:"description"`
}
