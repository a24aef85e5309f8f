package harness

import "github.com/roach88/sieve/internal/ir"

// TraceEvent records one case's run for assertions and golden comparison.
type TraceEvent struct {
	Seq     int64               `json:"seq"`
	RunID   string              `json:"run_id"`
	Case    string              `json:"case"`
	Query   string              `json:"query"`
	Params  ir.IRObject         `json:"params"`
	Errors  map[string][]string `json:"errors,omitempty"`
	Invoked []string            `json:"invoked"`
	Outcome string              `json:"outcome"`
	Count   int                 `json:"count"`

	// IDs are the id column values of the returned rows, when present.
	IDs []ir.IRValue `json:"ids,omitempty"`

	// Error is the execution error of a failed run.
	Error string `json:"error,omitempty"`

	rows []ir.IRObject
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every case expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per case, in execution order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
