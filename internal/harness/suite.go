package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// LoadScenarios loads a scenario file, or every .yaml/.yml file directly
// inside a directory in name order.
func LoadScenarios(path string) ([]*Scenario, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios: %w", err)
	}
	if !info.IsDir() {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, err
		}
		return []*Scenario{s}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenarios: %w", err)
	}

	var scenarios []*Scenario
	seen := make(map[string]string)
	for _, e := range entries {
		ext := filepath.Ext(e.Name())
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		file := filepath.Join(path, e.Name())
		s, err := LoadScenario(file)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[s.Name]; dup {
			return nil, fmt.Errorf("scenario %s declared in both %s and %s", s.Name, prev, file)
		}
		seen[s.Name] = file
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// Summary aggregates results of a scenario suite.
type Summary struct {
	Total    int       `json:"total"`
	Passed   int       `json:"passed"`
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
}

// Failure is one failed scenario.
type Failure struct {
	Scenario string   `json:"scenario"`
	Errors   []string `json:"errors"`
}

// Summarize tallies results, which must be in scenario order.
func Summarize(scenarios []*Scenario, results []*Result) Summary {
	sum := Summary{Total: len(results)}
	for i, r := range results {
		if r.Pass {
			sum.Passed++
			continue
		}
		sum.Failed++
		sum.Failures = append(sum.Failures, Failure{
			Scenario: scenarios[i].Name,
			Errors:   slices.Clone(r.Errors),
		})
	}
	return sum
}
