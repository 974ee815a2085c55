package hierarchy

import (
	"sort"
	"sync"

	"github.com/pariksha-io/pariksha/pkg/apperr"
)

// Index is an immutable containment snapshot. Build one with NewIndex and
// never mutate it; swap whole snapshots through a Tree instead.
type Index struct {
	states    map[string]Region
	districts map[string]Region
	schools   map[string]Region

	// class code → region, keyed by owning school
	classesBySchool map[string]map[string]Region

	stateOfDistrict  map[string]string
	districtOfSchool map[string]string

	districtsByState  map[string][]Region
	schoolsByDistrict map[string][]Region
}

// NewIndex validates the region list and builds the containment maps.
// Duplicate codes at a level, unknown parents, and malformed regions all
// fail the build; a Tree keeps serving its previous snapshot in that case.
func NewIndex(regions []Region) (*Index, error) {
	idx := &Index{
		states:            make(map[string]Region),
		districts:         make(map[string]Region),
		schools:           make(map[string]Region),
		classesBySchool:   make(map[string]map[string]Region),
		stateOfDistrict:   make(map[string]string),
		districtOfSchool:  make(map[string]string),
		districtsByState:  make(map[string][]Region),
		schoolsByDistrict: make(map[string][]Region),
	}

	var districts, schools, classes []Region
	for _, region := range regions {
		if err := region.Validate(); err != nil {
			return nil, err
		}
		switch region.Level {
		case LevelState:
			if _, dup := idx.states[region.Code]; dup {
				return nil, apperr.Validationf("duplicate state code: %s", region.Code)
			}
			idx.states[region.Code] = region
		case LevelDistrict:
			districts = append(districts, region)
		case LevelSchool:
			schools = append(schools, region)
		case LevelClass:
			classes = append(classes, region)
		}
	}

	for _, region := range districts {
		if _, dup := idx.districts[region.Code]; dup {
			return nil, apperr.Validationf("duplicate district code: %s", region.Code)
		}
		if _, ok := idx.states[region.ParentCode]; !ok {
			return nil, apperr.Validationf("district %s references unknown state %s", region.Code, region.ParentCode)
		}
		idx.districts[region.Code] = region
		idx.stateOfDistrict[region.Code] = region.ParentCode
		idx.districtsByState[region.ParentCode] = append(idx.districtsByState[region.ParentCode], region)
	}

	for _, region := range schools {
		if _, dup := idx.schools[region.Code]; dup {
			return nil, apperr.Validationf("duplicate school code: %s", region.Code)
		}
		if _, ok := idx.districts[region.ParentCode]; !ok {
			return nil, apperr.Validationf("school %s references unknown district %s", region.Code, region.ParentCode)
		}
		idx.schools[region.Code] = region
		idx.districtOfSchool[region.Code] = region.ParentCode
		idx.schoolsByDistrict[region.ParentCode] = append(idx.schoolsByDistrict[region.ParentCode], region)
	}

	for _, region := range classes {
		if _, ok := idx.schools[region.ParentCode]; !ok {
			return nil, apperr.Validationf("class %s references unknown school %s", region.Code, region.ParentCode)
		}
		bySchool := idx.classesBySchool[region.ParentCode]
		if bySchool == nil {
			bySchool = make(map[string]Region)
			idx.classesBySchool[region.ParentCode] = bySchool
		}
		if _, dup := bySchool[region.Code]; dup {
			return nil, apperr.Validationf("duplicate class %s in school %s", region.Code, region.ParentCode)
		}
		bySchool[region.Code] = region
	}

	for code := range idx.districtsByState {
		sortRegions(idx.districtsByState[code])
	}
	for code := range idx.schoolsByDistrict {
		sortRegions(idx.schoolsByDistrict[code])
	}

	return idx, nil
}

func sortRegions(regions []Region) {
	sort.Slice(regions, func(i, j int) bool { return regions[i].Code < regions[j].Code })
}

// HasState reports whether the state code exists
func (idx *Index) HasState(stateCode string) bool {
	_, ok := idx.states[stateCode]
	return ok
}

// HasDistrict reports whether the district code exists
func (idx *Index) HasDistrict(districtCode string) bool {
	_, ok := idx.districts[districtCode]
	return ok
}

// HasSchool reports whether the school code exists
func (idx *Index) HasSchool(schoolCode string) bool {
	_, ok := idx.schools[schoolCode]
	return ok
}

// DistrictInState reports whether the district exists under the state
func (idx *Index) DistrictInState(districtCode, stateCode string) bool {
	return idx.stateOfDistrict[districtCode] == stateCode && stateCode != ""
}

// SchoolInDistrict reports whether the school exists under the district
func (idx *Index) SchoolInDistrict(schoolCode, districtCode string) bool {
	return idx.districtOfSchool[schoolCode] == districtCode && districtCode != ""
}

// SchoolInState reports whether the school sits anywhere under the state
func (idx *Index) SchoolInState(schoolCode, stateCode string) bool {
	district, ok := idx.districtOfSchool[schoolCode]
	if !ok {
		return false
	}
	return idx.DistrictInState(district, stateCode)
}

// ClassInSchool reports whether the class exists under the school
func (idx *Index) ClassInSchool(classCode, schoolCode string) bool {
	bySchool, ok := idx.classesBySchool[schoolCode]
	if !ok {
		return false
	}
	_, ok = bySchool[classCode]
	return ok
}

// StateOfDistrict returns the parent state of a district
func (idx *Index) StateOfDistrict(districtCode string) (string, bool) {
	state, ok := idx.stateOfDistrict[districtCode]
	return state, ok
}

// DistrictOfSchool returns the parent district of a school
func (idx *Index) DistrictOfSchool(schoolCode string) (string, bool) {
	district, ok := idx.districtOfSchool[schoolCode]
	return district, ok
}

// StateOfSchool returns the state a school sits under
func (idx *Index) StateOfSchool(schoolCode string) (string, bool) {
	district, ok := idx.districtOfSchool[schoolCode]
	if !ok {
		return "", false
	}
	state, ok := idx.stateOfDistrict[district]
	return state, ok
}

// States returns all states sorted by code
func (idx *Index) States() []Region {
	states := make([]Region, 0, len(idx.states))
	for _, region := range idx.states {
		states = append(states, region)
	}
	sortRegions(states)
	return states
}

// Districts returns a state's districts sorted by code
func (idx *Index) Districts(stateCode string) []Region {
	return append([]Region(nil), idx.districtsByState[stateCode]...)
}

// Schools returns a district's schools sorted by code
func (idx *Index) Schools(districtCode string) []Region {
	return append([]Region(nil), idx.schoolsByDistrict[districtCode]...)
}

// Classes returns a school's classes sorted by code
func (idx *Index) Classes(schoolCode string) []Region {
	classes := make([]Region, 0, len(idx.classesBySchool[schoolCode]))
	for _, region := range idx.classesBySchool[schoolCode] {
		classes = append(classes, region)
	}
	sortRegions(classes)
	return classes
}

// Counts returns the node count per level, for reload logging
func (idx *Index) Counts() (states, districts, schools, classes int) {
	for _, bySchool := range idx.classesBySchool {
		classes += len(bySchool)
	}
	return len(idx.states), len(idx.districts), len(idx.schools), classes
}

var emptyIndex = mustEmptyIndex()

func mustEmptyIndex() *Index {
	idx, err := NewIndex(nil)
	if err != nil {
		panic(err)
	}
	return idx
}

// Tree holds the current Index snapshot and lets it be swapped while
// readers keep going. Containment methods delegate to the snapshot, so a
// *Tree can be used wherever an *Index can.
type Tree struct {
	mu  sync.RWMutex
	idx *Index
}

// NewTree wraps an initial snapshot. A nil index means an empty tree, which
// denies every containment query until a snapshot is swapped in.
func NewTree(idx *Index) *Tree {
	if idx == nil {
		idx = emptyIndex
	}
	return &Tree{idx: idx}
}

// Swap replaces the current snapshot
func (t *Tree) Swap(idx *Index) {
	if idx == nil {
		idx = emptyIndex
	}
	t.mu.Lock()
	t.idx = idx
	t.mu.Unlock()
}

// Snapshot returns the current index
func (t *Tree) Snapshot() *Index {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.idx
}

// HasState reports whether the state code exists
func (t *Tree) HasState(stateCode string) bool {
	return t.Snapshot().HasState(stateCode)
}

// DistrictInState reports whether the district exists under the state
func (t *Tree) DistrictInState(districtCode, stateCode string) bool {
	return t.Snapshot().DistrictInState(districtCode, stateCode)
}

// SchoolInDistrict reports whether the school exists under the district
func (t *Tree) SchoolInDistrict(schoolCode, districtCode string) bool {
	return t.Snapshot().SchoolInDistrict(schoolCode, districtCode)
}

// SchoolInState reports whether the school sits anywhere under the state
func (t *Tree) SchoolInState(schoolCode, stateCode string) bool {
	return t.Snapshot().SchoolInState(schoolCode, stateCode)
}

// ClassInSchool reports whether the class exists under the school
func (t *Tree) ClassInSchool(classCode, schoolCode string) bool {
	return t.Snapshot().ClassInSchool(classCode, schoolCode)
}
