package harness

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/sieve/internal/ir"
)

// TraceSnapshot captures the complete trace for a scenario execution.
// It is serialized as canonical JSON for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toIR converts a TraceSnapshot to an IRObject for canonical JSON
// serialization. Empty optional fields are left out.
func (s *TraceSnapshot) toIR() ir.IRObject {
	trace := make(ir.IRArray, len(s.Trace))
	for i, event := range s.Trace {
		invoked := make(ir.IRArray, len(event.Invoked))
		for j, op := range event.Invoked {
			invoked[j] = ir.IRString(op)
		}
		params := event.Params
		if params == nil {
			params = ir.IRObject{}
		}

		obj := ir.IRObject{
			"seq":     ir.IRInt(event.Seq),
			"case":    ir.IRString(event.Case),
			"query":   ir.IRString(event.Query),
			"params":  params,
			"invoked": invoked,
			"outcome": ir.IRString(event.Outcome),
			"count":   ir.IRInt(int64(event.Count)),
		}
		if event.RunID != "" {
			obj["run_id"] = ir.IRString(event.RunID)
		}
		if len(event.Errors) > 0 {
			errs := make(ir.IRObject, len(event.Errors))
			for key, msgs := range event.Errors {
				list := make(ir.IRArray, len(msgs))
				for j, m := range msgs {
					list[j] = ir.IRString(m)
				}
				errs[key] = list
			}
			obj["errors"] = errs
		}
		if len(event.IDs) > 0 {
			obj["ids"] = ir.IRArray(event.IDs)
		}
		if event.Error != "" {
			obj["error"] = ir.IRString(event.Error)
		}
		trace[i] = obj
	}

	return ir.IRObject{
		"scenario_name": ir.IRString(s.ScenarioName),
		"trace":         trace,
	}
}

// MarshalSnapshot serializes the trace of a result as canonical JSON.
func MarshalSnapshot(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{ScenarioName: scenarioName, Trace: result.Trace}
	return ir.MarshalCanonical(snapshot.toIR())
}

// RunWithGolden executes a scenario and compares the trace against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if trace doesn't match golden file.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares the given result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, traceJSON)
	return nil
}
