package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/sieve/internal/store"
)

// ReplayResult compares a recorded run with a fresh execution of the same
// definition and parameters.
type ReplayResult struct {
	Original store.Run `json:"original"`
	Replayed *Response `json:"replayed"`

	// Match is true when the replay reached the same fingerprint, outcome
	// and row count as the recorded run.
	Match bool `json:"match"`

	// Differences names what diverged, in a fixed order.
	Differences []string `json:"differences,omitempty"`

	// Error is the replay's execution error, if it failed.
	Error string `json:"error,omitempty"`
}

// Replay re-executes a recorded run. Replays are not recorded themselves,
// so replaying is idempotent with respect to the log.
//
// Row contents are not compared; the log stores only the row count. A
// replay whose execution fails is still compared: a recorded failure that
// fails again matches, any other change shows up as an outcome difference.
// An error is returned only when the run cannot be replayed at all.
func (s *Service) Replay(ctx context.Context, id string) (*ReplayResult, error) {
	if s.log == nil {
		return nil, errors.New("replay: no run log configured")
	}

	orig, err := s.log.ReadRun(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("replay: %w", err)
	}

	resp, err := s.Run(ctx, orig.Definition, orig.Params, RunOptions{NoRecord: true})
	if resp == nil {
		return nil, fmt.Errorf("replay %s: %w", id, err)
	}

	res := &ReplayResult{Original: orig, Replayed: resp}
	if err != nil {
		res.Error = err.Error()
	}
	if resp.ParamsHash != orig.ParamsHash {
		res.Differences = append(res.Differences, "params_hash")
	}
	if !slices.Equal(resp.Invoked, orig.Invoked) {
		res.Differences = append(res.Differences, "invoked")
	}
	if resp.Fingerprint != orig.Fingerprint {
		res.Differences = append(res.Differences, "fingerprint")
	}
	if string(resp.Outcome) != orig.Outcome {
		res.Differences = append(res.Differences, "outcome")
	}
	if resp.Count != orig.RowCount {
		res.Differences = append(res.Differences, "row_count")
	}
	res.Match = len(res.Differences) == 0
	return res, nil
}
