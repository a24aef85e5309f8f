package engine

import (
	"slices"

	"github.com/roach88/sieve/internal/mapping"
	"github.com/roach88/sieve/internal/params"
)

// Step is the planned outcome of one mapping.
type Step struct {
	// Operation is the mapped operation name.
	Operation string `json:"operation"`

	// Keys are the mapping's keys in argument order.
	Keys []params.Key `json:"keys"`

	// Args are the resolved values, nil where absent.
	Args []any `json:"args"`

	// Skipped is set when some non-whitelisted key is absent.
	Skipped bool `json:"skipped"`

	// Missing lists the absent keys that caused the skip.
	Missing []params.Key `json:"missing,omitempty"`
}

// plan resolves every mapping against r and records a validation error per
// missing required key. Resolution never looks at the chain, so the plan is
// complete before any operation runs.
func plan(def *mapping.Definition, r *params.Resolver) ([]Step, Errors) {
	mappings := def.Mappings()
	steps := make([]Step, 0, len(mappings))
	errs := make(Errors)

	for _, m := range mappings {
		check := m.Check(r.Resolve)
		steps = append(steps, Step{
			Operation: m.Operation(),
			Keys:      m.Keys(),
			Args:      check.Args,
			Skipped:   !check.Satisfied(),
			Missing:   check.Missing,
		})
		for _, k := range check.MissingRequired {
			errs.add(k, MessageRequired)
		}
	}
	return steps, errs
}

func (s Step) clone() Step {
	s.Keys = slices.Clone(s.Keys)
	s.Args = slices.Clone(s.Args)
	s.Missing = slices.Clone(s.Missing)
	return s
}
