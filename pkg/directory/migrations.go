package directory

import (
	"context"
	"database/sql"
	"fmt"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns all directory migrations
func GetMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `
				CREATE TABLE IF NOT EXISTS users (
					id UUID PRIMARY KEY,
					email VARCHAR(255) NOT NULL UNIQUE,
					username VARCHAR(255) NOT NULL UNIQUE,
					name VARCHAR(255) NOT NULL,
					password_hash VARCHAR(255) NOT NULL,
					phone_number VARCHAR(50),
					active BOOLEAN NOT NULL DEFAULT TRUE,
					email_verified BOOLEAN NOT NULL DEFAULT FALSE,
					state_code VARCHAR(50),
					state_name VARCHAR(255),
					district_code VARCHAR(50),
					district_name VARCHAR(255),
					school_code VARCHAR(50),
					school_name VARCHAR(255),
					class_code VARCHAR(50),
					class_name VARCHAR(255),
					roll_number VARCHAR(50),
					date_of_birth TIMESTAMP,
					parent_email VARCHAR(255),
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
					last_login_at TIMESTAMP
				);

				CREATE INDEX idx_users_state_code ON users(state_code);
				CREATE INDEX idx_users_district_code ON users(district_code);
				CREATE INDEX idx_users_school_code ON users(school_code);
				CREATE INDEX idx_users_class_code ON users(class_code);
				CREATE INDEX idx_users_active ON users(active);
			`,
		},
		{
			Version:     2,
			Description: "Create roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS roles (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					description TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_roles_name ON roles(name);
			`,
		},
		{
			Version:     3,
			Description: "Create permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS permissions (
					id BIGSERIAL PRIMARY KEY,
					name VARCHAR(255) NOT NULL UNIQUE,
					resource VARCHAR(255) NOT NULL,
					action VARCHAR(50) NOT NULL,
					description TEXT,
					created_at TIMESTAMP NOT NULL DEFAULT NOW(),
					updated_at TIMESTAMP NOT NULL DEFAULT NOW()
				);

				CREATE INDEX idx_permissions_resource ON permissions(resource);
			`,
		},
		{
			Version:     4,
			Description: "Create user_roles table",
			SQL: `
				CREATE TABLE IF NOT EXISTS user_roles (
					user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					assigned_at TIMESTAMP NOT NULL DEFAULT NOW(),
					PRIMARY KEY (user_id, role_id)
				);

				CREATE INDEX idx_user_roles_role_id ON user_roles(role_id);
			`,
		},
		{
			Version:     5,
			Description: "Create role_permissions table",
			SQL: `
				CREATE TABLE IF NOT EXISTS role_permissions (
					role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
					permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
					PRIMARY KEY (role_id, permission_id)
				);

				CREATE INDEX idx_role_permissions_permission_id ON role_permissions(permission_id);
			`,
		},
	}
}

// RunMigrations executes all pending migrations
func RunMigrations(ctx context.Context, db *sql.DB) error {
	// Create migration tracking table
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS directory_migrations (
			version INT PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	// Get applied migrations
	rows, err := db.QueryContext(ctx, "SELECT version FROM directory_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}

	appliedVersions := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		appliedVersions[version] = true
	}
	rows.Close()

	// Run pending migrations
	migrations := GetMigrations()
	for _, migration := range migrations {
		if appliedVersions[migration.Version] {
			continue
		}

		fmt.Printf("Running migration %d: %s\n", migration.Version, migration.Description)

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO directory_migrations (version, description) VALUES ($1, $2)",
			migration.Version, migration.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, err)
		}

		fmt.Printf("Migration %d completed successfully\n", migration.Version)
	}

	return nil
}

// Seed creates the permission catalog and built-in roles if they don't exist.
// Existing built-in roles are converged to the current catalog so permissions
// added in an upgrade propagate.
func Seed(ctx context.Context, store Store) error {
	for _, perm := range PermissionCatalog() {
		perm := perm
		existing, err := store.GetPermissionByName(ctx, perm.Name)
		if err == nil && existing != nil {
			continue
		}

		if err := store.CreatePermission(ctx, &perm); err != nil {
			return fmt.Errorf("failed to create permission %s: %w", perm.Name, err)
		}

		fmt.Printf("Created permission: %s\n", perm.Name)
	}

	for _, role := range BuiltInRoles() {
		role := role
		existing, err := store.GetRoleByName(ctx, role.Name)
		if err == nil && existing != nil {
			permIDs, err := resolvePermissionIDs(ctx, store, role.Permissions)
			if err != nil {
				return err
			}
			if err := store.ReplaceRolePermissions(ctx, existing.ID, permIDs); err != nil {
				return fmt.Errorf("failed to converge role %s: %w", role.Name, err)
			}
			continue
		}

		if err := store.CreateRole(ctx, &role); err != nil {
			return fmt.Errorf("failed to create built-in role %s: %w", role.Name, err)
		}

		fmt.Printf("Created built-in role: %s\n", role.Name)
	}

	return nil
}

func resolvePermissionIDs(ctx context.Context, store Store, perms []Permission) ([]int64, error) {
	ids := make([]int64, 0, len(perms))
	for _, perm := range perms {
		stored, err := store.GetPermissionByName(ctx, perm.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve permission %s: %w", perm.Name, err)
		}
		ids = append(ids, stored.ID)
	}
	return ids, nil
}
