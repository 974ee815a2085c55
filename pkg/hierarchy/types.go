package hierarchy

import (
	"strings"
	"time"

	"github.com/pariksha-io/pariksha/pkg/apperr"
)

// Level identifies a region's position in the tree
type Level string

const (
	LevelState    Level = "STATE"
	LevelDistrict Level = "DISTRICT"
	LevelSchool   Level = "SCHOOL"
	LevelClass    Level = "CLASS"
)

// Valid reports whether the level is one of the four known tree levels
func (l Level) Valid() bool {
	switch l {
	case LevelState, LevelDistrict, LevelSchool, LevelClass:
		return true
	}
	return false
}

// Region is one node of the tree, identified by (level, code, parent).
// State, district, and school codes are globally unique; class codes repeat
// across schools, so a class is identified by its (school, class) pair.
type Region struct {
	Level      Level     `json:"level"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	ParentCode string    `json:"parent_code,omitempty"`
	CreatedAt  time.Time `json:"created_at,omitempty"`
	UpdatedAt  time.Time `json:"updated_at,omitempty"`
}

// Validate checks the region's own fields. Parent existence is checked when
// an Index is built, not here.
func (r *Region) Validate() error {
	if !r.Level.Valid() {
		return apperr.Validationf("unknown region level: %q", string(r.Level))
	}
	if strings.TrimSpace(r.Code) == "" {
		return apperr.Validation("region code is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return apperr.Validationf("region %s has no name", r.Code)
	}
	if r.Level == LevelState && r.ParentCode != "" {
		return apperr.Validationf("state %s must not have a parent", r.Code)
	}
	if r.Level != LevelState && r.ParentCode == "" {
		return apperr.Validationf("%s %s requires a parent code", strings.ToLower(string(r.Level)), r.Code)
	}
	return nil
}
