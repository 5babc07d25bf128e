package history

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sortition/internal/draw"
)

// datasetFile is the YAML shape of a historical draw dataset:
//
//	draws:
//	  - [4, 17, 23, 35, 41, 58]
//	  - [2, 9, 21, 33, 47, 55]
//
// Draws are ordered oldest first; the last entry is the most recent draw.
type datasetFile struct {
	Draws [][]int `yaml:"draws"`
}

// LoadDataset reads a historical draw dataset from a YAML file.
// Every draw is canonicalized and structurally validated against (k, n);
// a malformed entry fails the whole load, because a partial history would
// silently weaken the historical rules.
func LoadDataset(path string, k, n int) ([]draw.Draw, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", path, err)
	}
	return ParseDataset(data, k, n)
}

// ParseDataset parses YAML dataset bytes. See LoadDataset.
func ParseDataset(data []byte, k, n int) ([]draw.Draw, error) {
	var file datasetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse dataset: %w", err)
	}

	draws := make([]draw.Draw, 0, len(file.Draws))
	for i, numbers := range file.Draws {
		c := draw.Canonical(numbers)
		if err := c.CheckStructure(k, n); err != nil {
			return nil, fmt.Errorf("dataset draw %d: %w", i, err)
		}
		draws = append(draws, draw.Draw{Seq: i, Numbers: c})
	}
	return draws, nil
}
