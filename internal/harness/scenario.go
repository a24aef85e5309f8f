package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/sieve/internal/engine"
)

// Scenario defines a conformance test scenario: a database built from
// Schema and Fixtures, the query files under test, and a sequence of cases
// run against them.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file
	// and prefixes run ids.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Queries lists query files or directories to load. Relative paths are
	// resolved against the scenario file's directory.
	Queries []string `yaml:"queries"`

	// Policy applies to queries that don't declare their own.
	Policy string `yaml:"policy,omitempty"`

	// Schema is DDL executed before fixtures are seeded.
	Schema string `yaml:"schema"`

	// Fixtures maps table names to rows seeded in table-name order.
	Fixtures map[string][]map[string]any `yaml:"fixtures,omitempty"`

	// Cases run in order; each is one recorded run.
	Cases []Case `yaml:"cases"`

	// Assertions validate the run log after all cases ran.
	// Supported types: run_contains, run_order, run_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Case is a single query run with its expectations.
type Case struct {
	Name  string `yaml:"name"`
	Query string `yaml:"query"`

	// Params is the raw parameter payload, exactly as a caller would send
	// it. Nested maps and lists are allowed.
	Params map[string]any `yaml:"params,omitempty"`

	// CountOnly runs a count instead of fetching rows.
	CountOnly bool `yaml:"count_only,omitempty"`

	Expect Expectation `yaml:"expect"`
}

// Expectation lists what a case must produce. Unset fields are not checked.
type Expectation struct {
	// Outcome is "result", "empty" or "error".
	Outcome string `yaml:"outcome,omitempty"`

	Count *int `yaml:"count,omitempty"`

	// IDs are the values of the id column, in order.
	IDs []any `yaml:"ids,omitempty"`

	// Rows are compared as a subset: only listed columns are checked,
	// but the row count must match.
	Rows []map[string]any `yaml:"rows,omitempty"`

	// Errors maps keys to their validation messages. An empty map asserts
	// the run had no errors.
	Errors map[string][]string `yaml:"errors,omitempty"`

	// Invoked lists the operations that ran, in order. An empty list
	// asserts that none ran.
	Invoked []string `yaml:"invoked,omitempty"`

	// Error is a substring of the execution error, for outcome "error".
	Error string `yaml:"error,omitempty"`
}

// Assertion validates the run log or final database state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "run_contains": some run of Query was made with Params (subset)
	// - "run_order": runs of Queries appear in this order
	// - "run_count": Query was run exactly Count times
	// - "final_state": a row of Table matching Where has Expect values
	Type string `yaml:"type"`

	// Query is the query name (used by run_contains, run_count).
	Query string `yaml:"query,omitempty"`

	// Params are the expected recorded params (used by run_contains).
	Params map[string]any `yaml:"params,omitempty"`

	// Queries is the expected run order (used by run_order).
	Queries []string `yaml:"queries,omitempty"`

	// Count is the expected number of runs (used by run_count).
	Count int `yaml:"count,omitempty"`

	// Table, Where and Expect are used by final_state. The runs table
	// holds the run log.
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertRunContains = "run_contains"
	AssertRunOrder    = "run_order"
	AssertRunCount    = "run_count"
	AssertFinalState  = "final_state"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Reject unknown fields (catches typos like "case:" vs "cases:")
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	// Resolve query paths relative to the scenario BEFORE validation
	base := filepath.Dir(path)
	for i, q := range scenario.Queries {
		if !filepath.IsAbs(q) {
			scenario.Queries[i] = filepath.Join(base, q)
		}
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario %s: %w", path, err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Queries) == 0 {
		return fmt.Errorf("queries list is required and must be non-empty")
	}
	if len(s.Cases) == 0 {
		return fmt.Errorf("cases list is required and must be non-empty")
	}

	for _, q := range s.Queries {
		if _, err := os.Stat(q); os.IsNotExist(err) {
			return fmt.Errorf("query file not found: %s", q)
		}
	}

	for i, c := range s.Cases {
		if c.Name == "" {
			return fmt.Errorf("cases[%d]: name is required", i)
		}
		if c.Query == "" {
			return fmt.Errorf("cases[%d]: query is required", i)
		}
		switch engine.Outcome(c.Expect.Outcome) {
		case "", engine.OutcomeResult, engine.OutcomeEmpty, engine.OutcomeError:
		default:
			return fmt.Errorf("cases[%d].expect: unknown outcome %q", i, c.Expect.Outcome)
		}
		if c.Expect.Error != "" && c.Expect.Outcome != string(engine.OutcomeError) {
			return fmt.Errorf("cases[%d].expect: error requires outcome %q", i, engine.OutcomeError)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRunContains:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for run_contains", index)
		}
	case AssertRunOrder:
		if len(a.Queries) == 0 {
			return fmt.Errorf("assertions[%d]: queries list is required for run_order", index)
		}
	case AssertRunCount:
		if a.Query == "" {
			return fmt.Errorf("assertions[%d]: query is required for run_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for run_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
