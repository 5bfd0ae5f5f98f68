package identity

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Roster is the on-disk allow-list format. Suffix entries start with ".",
// anything else is a literal domain.
//
//	domains:
//	  - .gov
//	  - .mil
//	  - .fed.us
//	  - example.edu
type Roster struct {
	Domains []string `yaml:"domains"`
}

// LoadRoster reads an allow-list roster from a YAML file. The roster is read
// once at startup; there is no re-load mid-run.
func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file: %w", err)
	}

	var roster Roster
	if err := yaml.Unmarshal(data, &roster); err != nil {
		return nil, fmt.Errorf("failed to parse roster file %s: %w", path, err)
	}

	if len(roster.Domains) == 0 {
		return nil, fmt.Errorf("roster file %s contains no domains", path)
	}

	return &roster, nil
}
