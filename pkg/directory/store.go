package directory

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store handles user, role, and permission persistence. Missing rows map to
// apperr.NotFound; unique-constraint hits on email, username, role name, and
// permission name map to apperr.AlreadyExists.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context, filter UserFilter) ([]*User, error)
	UpdateUser(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error
	SetUserActive(ctx context.Context, id uuid.UUID, active bool) error
	ReplaceUserRoles(ctx context.Context, id uuid.UUID, roleIDs []int64) error
	DeleteUser(ctx context.Context, id uuid.UUID) error

	// Roles
	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id int64) (*Role, error)
	GetRoleByName(ctx context.Context, name string) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, id int64) error
	AddPermissionToRole(ctx context.Context, roleID, permissionID int64) error
	RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64) error
	ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error

	// Permissions
	CreatePermission(ctx context.Context, permission *Permission) error
	GetPermission(ctx context.Context, id int64) (*Permission, error)
	GetPermissionByName(ctx context.Context, name string) (*Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	UpdatePermission(ctx context.Context, permission *Permission) error
	DeletePermission(ctx context.Context, id int64) error
}
