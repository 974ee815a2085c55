package hierarchy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// The file format nests regions the way administrators think about them;
// parent codes are implied by position.
//
//	states:
//	  - code: MH
//	    name: Maharashtra
//	    districts:
//	      - code: MH-PUN
//	        name: Pune
//	        schools:
//	          - code: SCH-001
//	            name: Sunrise Public School
//	            classes:
//	              - code: 10A
//	                name: Class 10 Section A
type regionFile struct {
	States []fileState `yaml:"states"`
}

type fileState struct {
	Code      string         `yaml:"code"`
	Name      string         `yaml:"name"`
	Districts []fileDistrict `yaml:"districts"`
}

type fileDistrict struct {
	Code    string       `yaml:"code"`
	Name    string       `yaml:"name"`
	Schools []fileSchool `yaml:"schools"`
}

type fileSchool struct {
	Code    string      `yaml:"code"`
	Name    string      `yaml:"name"`
	Classes []fileClass `yaml:"classes"`
}

type fileClass struct {
	Code string `yaml:"code"`
	Name string `yaml:"name"`
}

// ParseRegions flattens the nested YAML document into a region list
func ParseRegions(data []byte) ([]Region, error) {
	var doc regionFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse region file: %w", err)
	}

	var regions []Region
	for _, state := range doc.States {
		regions = append(regions, Region{Level: LevelState, Code: state.Code, Name: state.Name})
		for _, district := range state.Districts {
			regions = append(regions, Region{
				Level: LevelDistrict, Code: district.Code, Name: district.Name, ParentCode: state.Code,
			})
			for _, school := range district.Schools {
				regions = append(regions, Region{
					Level: LevelSchool, Code: school.Code, Name: school.Name, ParentCode: district.Code,
				})
				for _, class := range school.Classes {
					regions = append(regions, Region{
						Level: LevelClass, Code: class.Code, Name: class.Name, ParentCode: school.Code,
					})
				}
			}
		}
	}
	return regions, nil
}

// LoadFile reads and flattens a region file
func LoadFile(path string) ([]Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read region file: %w", err)
	}
	return ParseRegions(data)
}

// LoadIndexFromFile reads, flattens, and indexes a region file in one step
func LoadIndexFromFile(path string) (*Index, error) {
	regions, err := LoadFile(path)
	if err != nil {
		return nil, err
	}
	return NewIndex(regions)
}
