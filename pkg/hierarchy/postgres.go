package hierarchy

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pariksha-io/pariksha/pkg/apperr"
)

// DBStore persists regions for deployments that manage the tree through the
// admin CLI instead of a watched file.
type DBStore struct {
	db *sql.DB
}

// NewDBStore creates the store and its table if needed
func NewDBStore(db *sql.DB) (*DBStore, error) {
	s := &DBStore{db: db}
	if err := s.ensureTable(); err != nil {
		return nil, fmt.Errorf("failed to ensure regions table: %w", err)
	}
	return s, nil
}

func (s *DBStore) ensureTable() error {
	// Identity is (level, code, parent); parent is '' for states so the
	// primary key works on engines that treat NULLs as distinct
	query := `
	CREATE TABLE IF NOT EXISTS regions (
		level VARCHAR(20) NOT NULL,
		code VARCHAR(100) NOT NULL,
		name VARCHAR(255) NOT NULL,
		parent_code VARCHAR(100) NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (level, code, parent_code)
	);

	CREATE INDEX IF NOT EXISTS idx_regions_parent_code ON regions(parent_code);
	CREATE INDEX IF NOT EXISTS idx_regions_level ON regions(level);
	`

	_, err := s.db.Exec(query)
	return err
}

// UpsertRegion inserts a region or renames an existing one
func (s *DBStore) UpsertRegion(ctx context.Context, region *Region) error {
	if err := region.Validate(); err != nil {
		return err
	}

	now := time.Now()
	result, err := s.db.ExecContext(ctx,
		`UPDATE regions SET name = $1, updated_at = $2 WHERE level = $3 AND code = $4 AND parent_code = $5`,
		region.Name, now, string(region.Level), region.Code, region.ParentCode,
	)
	if err != nil {
		return fmt.Errorf("failed to update region: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		region.UpdatedAt = now
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO regions (level, code, name, parent_code, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(region.Level), region.Code, region.Name, region.ParentCode, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert region: %w", err)
	}

	region.CreatedAt = now
	region.UpdatedAt = now
	return nil
}

// DeleteRegion removes a region. Refused while child regions reference it.
func (s *DBStore) DeleteRegion(ctx context.Context, level Level, code, parentCode string) error {
	var children int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM regions WHERE parent_code = $1 AND level = $2`,
		code, string(childLevel(level)),
	).Scan(&children)
	if err != nil {
		return fmt.Errorf("failed to count child regions: %w", err)
	}
	if children > 0 {
		return apperr.Validationf("region %s has %d child region(s); delete them first", code, children)
	}

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM regions WHERE level = $1 AND code = $2 AND parent_code = $3`,
		string(level), code, parentCode,
	)
	if err != nil {
		return fmt.Errorf("failed to delete region: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if n == 0 {
		return apperr.NotFound("region not found")
	}
	return nil
}

func childLevel(level Level) Level {
	switch level {
	case LevelState:
		return LevelDistrict
	case LevelDistrict:
		return LevelSchool
	case LevelSchool:
		return LevelClass
	}
	return ""
}

// ListRegions returns every region
func (s *DBStore) ListRegions(ctx context.Context) ([]Region, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT level, code, name, parent_code, created_at, updated_at
		 FROM regions ORDER BY level, parent_code, code`)
	if err != nil {
		return nil, fmt.Errorf("failed to list regions: %w", err)
	}
	defer rows.Close()

	var regions []Region
	for rows.Next() {
		var region Region
		var level string
		if err := rows.Scan(&level, &region.Code, &region.Name, &region.ParentCode,
			&region.CreatedAt, &region.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan region: %w", err)
		}
		region.Level = Level(level)
		regions = append(regions, region)
	}
	return regions, rows.Err()
}

// ReplaceAll swaps the whole table for a new region list, used by bulk
// import. The list is indexed first so a malformed import never lands.
func (s *DBStore) ReplaceAll(ctx context.Context, regions []Region) error {
	if _, err := NewIndex(regions); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM regions`); err != nil {
		return fmt.Errorf("failed to clear regions: %w", err)
	}

	now := time.Now()
	for _, region := range regions {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO regions (level, code, name, parent_code, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			string(region.Level), region.Code, region.Name, region.ParentCode, now, now,
		); err != nil {
			return fmt.Errorf("failed to insert region %s: %w", region.Code, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit region import: %w", err)
	}
	return nil
}

// BuildIndex loads all regions and builds a containment snapshot
func (s *DBStore) BuildIndex(ctx context.Context) (*Index, error) {
	regions, err := s.ListRegions(ctx)
	if err != nil {
		return nil, err
	}
	return NewIndex(regions)
}
