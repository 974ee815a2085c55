package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/pariksha-io/pariksha/pkg/apperr"
)

// PostgresStore implements Store on a SQL database
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new store on the given database handle
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

// isUniqueViolation reports whether err is a unique-constraint violation.
// Drivers without typed errors report constraint hits as plain strings.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint")
}

func strPtr(ns sql.NullString) *string {
	if ns.Valid {
		s := ns.String
		return &s
	}
	return nil
}

func timePtr(nt sql.NullTime) *time.Time {
	if nt.Valid {
		t := nt.Time
		return &t
	}
	return nil
}

const userColumns = `id, email, username, name, password_hash, phone_number, active, email_verified,
		state_code, state_name, district_code, district_name,
		school_code, school_name, class_code, class_name,
		roll_number, date_of_birth, parent_email,
		created_at, updated_at, last_login_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var user User
	var phone, stateCode, stateName, districtCode, districtName sql.NullString
	var schoolCode, schoolName, classCode, className sql.NullString
	var rollNumber, parentEmail sql.NullString
	var dateOfBirth, lastLoginAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Email, &user.Username, &user.Name, &user.PasswordHash,
		&phone, &user.Active, &user.EmailVerified,
		&stateCode, &stateName, &districtCode, &districtName,
		&schoolCode, &schoolName, &classCode, &className,
		&rollNumber, &dateOfBirth, &parentEmail,
		&user.CreatedAt, &user.UpdatedAt, &lastLoginAt,
	)
	if err != nil {
		return nil, err
	}

	user.PhoneNumber = strPtr(phone)
	user.StateCode = strPtr(stateCode)
	user.StateName = strPtr(stateName)
	user.DistrictCode = strPtr(districtCode)
	user.DistrictName = strPtr(districtName)
	user.SchoolCode = strPtr(schoolCode)
	user.SchoolName = strPtr(schoolName)
	user.ClassCode = strPtr(classCode)
	user.ClassName = strPtr(className)
	user.RollNumber = strPtr(rollNumber)
	user.ParentEmail = strPtr(parentEmail)
	user.DateOfBirth = timePtr(dateOfBirth)
	user.LastLoginAt = timePtr(lastLoginAt)

	return &user, nil
}

// CreateUser creates a new user along with its role assignments. The user must
// carry at least one role with a resolved ID.
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	for _, r := range user.Roles {
		if r.ID == 0 {
			return apperr.Validationf("role %q has no id; resolve roles before creating the user", r.Name)
		}
	}

	if existing, err := s.GetUserByEmail(ctx, user.Email); err == nil && existing != nil {
		return apperr.AlreadyExistsf("email already in use: %s", user.Email)
	}
	if existing, err := s.GetUserByUsername(ctx, user.Username); err == nil && existing != nil {
		return apperr.AlreadyExistsf("username already in use: %s", user.Username)
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO users (
			id, email, username, name, password_hash, phone_number, active, email_verified,
			state_code, state_name, district_code, district_name,
			school_code, school_name, class_code, class_name,
			roll_number, date_of_birth, parent_email,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8,
			$9, $10, $11, $12,
			$13, $14, $15, $16,
			$17, $18, $19,
			$20, $21
		)
	`

	now := time.Now()
	_, err = tx.ExecContext(ctx, query,
		user.ID, user.Email, user.Username, user.Name, user.PasswordHash,
		user.PhoneNumber, user.Active, user.EmailVerified,
		user.StateCode, user.StateName, user.DistrictCode, user.DistrictName,
		user.SchoolCode, user.SchoolName, user.ClassCode, user.ClassName,
		user.RollNumber, user.DateOfBirth, user.ParentEmail,
		now, now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExists("email or username already in use")
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	for _, role := range user.Roles {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id, assigned_at) VALUES ($1, $2, $3)`,
			user.ID, role.ID, now,
		); err != nil {
			return fmt.Errorf("failed to assign role %q: %w", role.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user creation: %w", err)
	}

	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

// GetUser retrieves a user by ID with roles and permissions resolved
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.getUserWhere(ctx, "id = $1", id)
}

// GetUserByEmail retrieves a user by email with roles and permissions resolved
func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUserWhere(ctx, "email = $1", email)
}

// GetUserByUsername retrieves a user by username with roles and permissions resolved
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUserWhere(ctx, "username = $1", username)
}

func (s *PostgresStore) getUserWhere(ctx context.Context, where string, arg interface{}) (*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s`, userColumns, where)

	user, err := scanUser(s.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	user.Roles, err = s.loadUserRoles(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// loadUserRoles loads a user's roles with their permission sets in one query.
func (s *PostgresStore) loadUserRoles(ctx context.Context, userID uuid.UUID) ([]Role, error) {
	query := `
		SELECT r.id, r.name, r.description, r.created_at, r.updated_at,
		       p.id, p.name, p.resource, p.action, p.description, p.created_at, p.updated_at
		FROM user_roles ur
		JOIN roles r ON r.id = ur.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		ORDER BY r.name, p.name
	`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load user roles: %w", err)
	}
	defer rows.Close()

	roles := []Role{}
	index := make(map[int64]int)
	for rows.Next() {
		var role Role
		var roleDesc sql.NullString
		var permID sql.NullInt64
		var permName, permResource, permAction, permDesc sql.NullString
		var permCreated, permUpdated sql.NullTime

		err := rows.Scan(
			&role.ID, &role.Name, &roleDesc, &role.CreatedAt, &role.UpdatedAt,
			&permID, &permName, &permResource, &permAction, &permDesc,
			&permCreated, &permUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user role: %w", err)
		}

		pos, seen := index[role.ID]
		if !seen {
			if roleDesc.Valid {
				role.Description = roleDesc.String
			}
			role.Permissions = []Permission{}
			roles = append(roles, role)
			pos = len(roles) - 1
			index[role.ID] = pos
		}

		if permID.Valid {
			roles[pos].Permissions = append(roles[pos].Permissions, Permission{
				ID:          permID.Int64,
				Name:        permName.String,
				Resource:    permResource.String,
				Action:      Action(permAction.String),
				Description: permDesc.String,
				CreatedAt:   permCreated.Time,
				UpdatedAt:   permUpdated.Time,
			})
		}
	}

	return roles, rows.Err()
}

// ListUsers lists users matching the filter, ordered by username
func (s *PostgresStore) ListUsers(ctx context.Context, filter UserFilter) ([]*User, error) {
	query := fmt.Sprintf(`SELECT %s FROM users WHERE 1=1`, userColumns)

	args := []interface{}{}
	argCount := 1

	if filter.RoleName != "" {
		query += fmt.Sprintf(` AND EXISTS (
			SELECT 1 FROM user_roles ur JOIN roles r ON r.id = ur.role_id
			WHERE ur.user_id = users.id AND r.name = $%d)`, argCount)
		args = append(args, filter.RoleName)
		argCount++
	}
	if filter.StateCode != "" {
		query += fmt.Sprintf(" AND state_code = $%d", argCount)
		args = append(args, filter.StateCode)
		argCount++
	}
	if filter.DistrictCode != "" {
		query += fmt.Sprintf(" AND district_code = $%d", argCount)
		args = append(args, filter.DistrictCode)
		argCount++
	}
	if filter.SchoolCode != "" {
		query += fmt.Sprintf(" AND school_code = $%d", argCount)
		args = append(args, filter.SchoolCode)
		argCount++
	}
	if filter.ClassCode != "" {
		query += fmt.Sprintf(" AND class_code = $%d", argCount)
		args = append(args, filter.ClassCode)
		argCount++
	}
	if filter.Active != nil {
		query += fmt.Sprintf(" AND active = $%d", argCount)
		args = append(args, *filter.Active)
		argCount++
	}

	query += " ORDER BY username ASC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argCount)
		args = append(args, filter.Limit)
		argCount++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argCount)
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating users: %w", err)
	}

	for _, user := range users {
		user.Roles, err = s.loadUserRoles(ctx, user.ID)
		if err != nil {
			return nil, err
		}
	}

	return users, nil
}

// UpdateUser updates profile, contact, and scope fields. Email, username,
// password, active flag, and roles have dedicated operations.
func (s *PostgresStore) UpdateUser(ctx context.Context, user *User) error {
	if err := user.Validate(); err != nil {
		return err
	}

	query := `
		UPDATE users
		SET name = $1, phone_number = $2, email_verified = $3,
		    state_code = $4, state_name = $5, district_code = $6, district_name = $7,
		    school_code = $8, school_name = $9, class_code = $10, class_name = $11,
		    roll_number = $12, date_of_birth = $13, parent_email = $14,
		    updated_at = $15
		WHERE id = $16
	`

	user.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx, query,
		user.Name, user.PhoneNumber, user.EmailVerified,
		user.StateCode, user.StateName, user.DistrictCode, user.DistrictName,
		user.SchoolCode, user.SchoolName, user.ClassCode, user.ClassName,
		user.RollNumber, user.DateOfBirth, user.ParentEmail,
		user.UpdatedAt, user.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return requireRowAffected(result, "user not found")
}

// UpdatePassword replaces the user's password hash
func (s *PostgresStore) UpdatePassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`,
		passwordHash, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRowAffected(result, "user not found")
}

// UpdateLastLogin records a successful authentication. Deliberately does not
// touch updated_at; a login is not a profile mutation.
func (s *PostgresStore) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET last_login_at = $1 WHERE id = $2`,
		at, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update last login: %w", err)
	}
	return requireRowAffected(result, "user not found")
}

// SetUserActive soft-activates or deactivates a user
func (s *PostgresStore) SetUserActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET active = $1, updated_at = $2 WHERE id = $3`,
		active, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to set user active: %w", err)
	}
	return requireRowAffected(result, "user not found")
}

// ReplaceUserRoles replaces the user's role set wholesale
func (s *PostgresStore) ReplaceUserRoles(ctx context.Context, id uuid.UUID, roleIDs []int64) error {
	if len(roleIDs) == 0 {
		return apperr.Validation("user must have at least one role")
	}
	if _, err := s.GetUser(ctx, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("failed to clear user roles: %w", err)
	}

	now := time.Now()
	for _, roleID := range roleIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_roles (user_id, role_id, assigned_at) VALUES ($1, $2, $3)`,
			id, roleID, now,
		); err != nil {
			return fmt.Errorf("failed to assign role %d: %w", roleID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role replacement: %w", err)
	}
	return nil
}

// DeleteUser hard-deletes a user and its role assignments. SetUserActive is
// the preferred path; this one exists for admin tooling.
func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM user_roles WHERE user_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete user roles: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	if err := requireRowAffected(result, "user not found"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}
	return nil
}

// CreateRole creates a role. Attached permissions with a zero ID are resolved
// by name so seeded definitions can be passed in directly.
func (s *PostgresStore) CreateRole(ctx context.Context, role *Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return apperr.Validation("role name is required")
	}
	if existing, err := s.GetRoleByName(ctx, role.Name); err == nil && existing != nil {
		return apperr.AlreadyExistsf("role already exists: %s", role.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	err = tx.QueryRowContext(ctx,
		`INSERT INTO roles (name, description, created_at, updated_at) VALUES ($1, $2, $3, $4) RETURNING id`,
		role.Name, role.Description, now, now,
	).Scan(&role.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExistsf("role already exists: %s", role.Name)
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	for i, perm := range role.Permissions {
		permID := perm.ID
		if permID == 0 {
			err := tx.QueryRowContext(ctx,
				`SELECT id FROM permissions WHERE name = $1`, perm.Name,
			).Scan(&permID)
			if err == sql.ErrNoRows {
				return apperr.Validationf("unknown permission: %s", perm.Name)
			}
			if err != nil {
				return fmt.Errorf("failed to resolve permission %q: %w", perm.Name, err)
			}
			role.Permissions[i].ID = permID
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
			role.ID, permID,
		); err != nil {
			return fmt.Errorf("failed to attach permission %q: %w", perm.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role creation: %w", err)
	}

	role.CreatedAt = now
	role.UpdatedAt = now
	return nil
}

// GetRole retrieves a role by ID with its permission set
func (s *PostgresStore) GetRole(ctx context.Context, id int64) (*Role, error) {
	return s.getRoleWhere(ctx, "id = $1", id)
}

// GetRoleByName retrieves a role by exact, case-sensitive name
func (s *PostgresStore) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	return s.getRoleWhere(ctx, "name = $1", name)
}

func (s *PostgresStore) getRoleWhere(ctx context.Context, where string, arg interface{}) (*Role, error) {
	query := fmt.Sprintf(`SELECT id, name, description, created_at, updated_at FROM roles WHERE %s`, where)

	var role Role
	var desc sql.NullString
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("role not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get role: %w", err)
	}
	if desc.Valid {
		role.Description = desc.String
	}

	role.Permissions, err = s.loadRolePermissions(ctx, role.ID)
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *PostgresStore) loadRolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	query := `
		SELECT p.id, p.name, p.resource, p.action, p.description, p.created_at, p.updated_at
		FROM role_permissions rp
		JOIN permissions p ON p.id = rp.permission_id
		WHERE rp.role_id = $1
		ORDER BY p.name
	`

	rows, err := s.db.QueryContext(ctx, query, roleID)
	if err != nil {
		return nil, fmt.Errorf("failed to load role permissions: %w", err)
	}
	defer rows.Close()

	perms := []Permission{}
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, *perm)
	}
	return perms, rows.Err()
}

// ListRoles lists all roles with their permission sets
func (s *PostgresStore) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, created_at, updated_at FROM roles ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		var role Role
		var desc sql.NullString
		if err := rows.Scan(&role.ID, &role.Name, &desc, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan role: %w", err)
		}
		if desc.Valid {
			role.Description = desc.String
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating roles: %w", err)
	}

	for i := range roles {
		roles[i].Permissions, err = s.loadRolePermissions(ctx, roles[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return roles, nil
}

// UpdateRole renames a role or changes its description. The permission set has
// its own operations.
func (s *PostgresStore) UpdateRole(ctx context.Context, role *Role) error {
	if strings.TrimSpace(role.Name) == "" {
		return apperr.Validation("role name is required")
	}

	role.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE roles SET name = $1, description = $2, updated_at = $3 WHERE id = $4`,
		role.Name, role.Description, role.UpdatedAt, role.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExistsf("role already exists: %s", role.Name)
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	return requireRowAffected(result, "role not found")
}

// DeleteRole deletes a role and its permission attachments. Refused while any
// user still holds the role.
func (s *PostgresStore) DeleteRole(ctx context.Context, id int64) error {
	var holders int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM user_roles WHERE role_id = $1`, id,
	).Scan(&holders)
	if err != nil {
		return fmt.Errorf("failed to count role holders: %w", err)
	}
	if holders > 0 {
		return apperr.Validationf("role is assigned to %d user(s); reassign them first", holders)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, id); err != nil {
		return fmt.Errorf("failed to detach role permissions: %w", err)
	}

	result, err := tx.ExecContext(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if err := requireRowAffected(result, "role not found"); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role deletion: %w", err)
	}
	return nil
}

// AddPermissionToRole attaches a permission to a role. Adding one that is
// already attached is a no-op.
func (s *PostgresStore) AddPermissionToRole(ctx context.Context, roleID, permissionID int64) error {
	if err := s.requireRole(ctx, roleID); err != nil {
		return err
	}
	if err := s.requirePermission(ctx, permissionID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
		roleID, permissionID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("failed to add permission to role: %w", err)
	}
	return nil
}

// RemovePermissionFromRole detaches a permission from a role. Removing one
// that is not attached is a no-op.
func (s *PostgresStore) RemovePermissionFromRole(ctx context.Context, roleID, permissionID int64) error {
	if err := s.requireRole(ctx, roleID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`DELETE FROM role_permissions WHERE role_id = $1 AND permission_id = $2`,
		roleID, permissionID,
	)
	if err != nil {
		return fmt.Errorf("failed to remove permission from role: %w", err)
	}
	return nil
}

// ReplaceRolePermissions replaces a role's permission set wholesale. An empty
// set is valid.
func (s *PostgresStore) ReplaceRolePermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := s.requireRole(ctx, roleID); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
		return fmt.Errorf("failed to clear role permissions: %w", err)
	}
	for _, permID := range permissionIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, permission_id) VALUES ($1, $2)`,
			roleID, permID,
		); err != nil {
			return fmt.Errorf("failed to attach permission %d: %w", permID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit permission replacement: %w", err)
	}

	if _, err := s.db.ExecContext(ctx,
		`UPDATE roles SET updated_at = $1 WHERE id = $2`, time.Now(), roleID,
	); err != nil {
		return fmt.Errorf("failed to touch role: %w", err)
	}
	return nil
}

func (s *PostgresStore) requireRole(ctx context.Context, roleID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM roles WHERE id = $1)`, roleID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check role: %w", err)
	}
	if !exists {
		return apperr.NotFound("role not found")
	}
	return nil
}

func (s *PostgresStore) requirePermission(ctx context.Context, permissionID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM permissions WHERE id = $1)`, permissionID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check permission: %w", err)
	}
	if !exists {
		return apperr.NotFound("permission not found")
	}
	return nil
}

func scanPermission(row rowScanner) (*Permission, error) {
	var perm Permission
	var desc sql.NullString
	err := row.Scan(
		&perm.ID, &perm.Name, &perm.Resource, &perm.Action, &desc,
		&perm.CreatedAt, &perm.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if desc.Valid {
		perm.Description = desc.String
	}
	return &perm, nil
}

// CreatePermission creates a permission
func (s *PostgresStore) CreatePermission(ctx context.Context, permission *Permission) error {
	if strings.TrimSpace(permission.Name) == "" {
		return apperr.Validation("permission name is required")
	}
	if existing, err := s.GetPermissionByName(ctx, permission.Name); err == nil && existing != nil {
		return apperr.AlreadyExistsf("permission already exists: %s", permission.Name)
	}

	now := time.Now()
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO permissions (name, resource, action, description, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		permission.Name, permission.Resource, string(permission.Action), permission.Description, now, now,
	).Scan(&permission.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExistsf("permission already exists: %s", permission.Name)
		}
		return fmt.Errorf("failed to create permission: %w", err)
	}

	permission.CreatedAt = now
	permission.UpdatedAt = now
	return nil
}

// GetPermission retrieves a permission by ID
func (s *PostgresStore) GetPermission(ctx context.Context, id int64) (*Permission, error) {
	perm, err := scanPermission(s.db.QueryRowContext(ctx,
		`SELECT id, name, resource, action, description, created_at, updated_at FROM permissions WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("permission not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return perm, nil
}

// GetPermissionByName retrieves a permission by its unique name
func (s *PostgresStore) GetPermissionByName(ctx context.Context, name string) (*Permission, error) {
	perm, err := scanPermission(s.db.QueryRowContext(ctx,
		`SELECT id, name, resource, action, description, created_at, updated_at FROM permissions WHERE name = $1`,
		name,
	))
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("permission not found")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get permission: %w", err)
	}
	return perm, nil
}

// ListPermissions lists all permissions ordered by name
func (s *PostgresStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, resource, action, description, created_at, updated_at FROM permissions ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, *perm)
	}
	return perms, rows.Err()
}

// UpdatePermission updates a permission's fields
func (s *PostgresStore) UpdatePermission(ctx context.Context, permission *Permission) error {
	if strings.TrimSpace(permission.Name) == "" {
		return apperr.Validation("permission name is required")
	}

	permission.UpdatedAt = time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE permissions SET name = $1, resource = $2, action = $3, description = $4, updated_at = $5 WHERE id = $6`,
		permission.Name, permission.Resource, string(permission.Action), permission.Description,
		permission.UpdatedAt, permission.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperr.AlreadyExistsf("permission already exists: %s", permission.Name)
		}
		return fmt.Errorf("failed to update permission: %w", err)
	}
	return requireRowAffected(result, "permission not found")
}

// DeletePermission deletes a permission. Refused while any role still carries
// it.
func (s *PostgresStore) DeletePermission(ctx context.Context, id int64) error {
	var attachments int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_permissions WHERE permission_id = $1`, id,
	).Scan(&attachments)
	if err != nil {
		return fmt.Errorf("failed to count permission attachments: %w", err)
	}
	if attachments > 0 {
		return apperr.Validationf("permission is attached to %d role(s); detach it first", attachments)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM permissions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete permission: %w", err)
	}
	return requireRowAffected(result, "permission not found")
}

func requireRowAffected(result sql.Result, notFoundMsg string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound(notFoundMsg)
	}
	return nil
}
