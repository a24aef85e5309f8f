// Package service runs named queries end to end: it plans them through the
// registry, executes them, and appends every run to the run log.
//
// The same code path serves the CLI, the HTTP server and replay. Runs are
// stamped with a logical seq from engine.Clock so the log orders
// deterministically.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/sieve/internal/engine"
	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/registry"
	"github.com/roach88/sieve/internal/store"
)

// RunLog persists runs. *store.Store implements it.
type RunLog interface {
	WriteRun(ctx context.Context, run store.Run) error
	ReadRun(ctx context.Context, id string) (store.Run, error)
	ReadRuns(ctx context.Context, filter store.RunFilter) ([]store.Run, error)
}

// Sequencer stamps runs with strictly increasing seq values.
// *engine.Clock implements it.
type Sequencer interface {
	Next() int64
}

// Service executes queries from a registry.
//
// Thread-safety: Run is safe for concurrent use when the RunLog is.
type Service struct {
	registry *registry.Registry
	log      RunLog
	clock    Sequencer
	ids      engine.IDGenerator
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithRunLog records every run in l. Without it runs are not recorded.
func WithRunLog(l RunLog) Option {
	return func(s *Service) { s.log = l }
}

// WithClock sets the clock that stamps runs, typically resumed from
// store.GetLastSeq.
func WithClock(c Sequencer) Option {
	return func(s *Service) { s.clock = c }
}

// WithIDGenerator sets the run id generator. Default: UUIDv7Generator.
func WithIDGenerator(g engine.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// New creates a Service over reg.
func New(reg *registry.Registry, opts ...Option) *Service {
	s := &Service{
		registry: reg,
		clock:    engine.NewClock(),
		ids:      engine.UUIDv7Generator{},
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the registry queries are looked up in.
func (s *Service) Registry() *registry.Registry { return s.registry }

// RunOptions adjusts a single run.
type RunOptions struct {
	// CountOnly counts the result instead of enumerating it.
	CountOnly bool

	// NoRecord skips the run log.
	NoRecord bool
}

// Response is the outcome of one run.
type Response struct {
	ID          string              `json:"id"`
	Seq         int64               `json:"seq,omitempty"`
	Definition  string              `json:"definition"`
	Params      ir.IRObject         `json:"params"`
	ParamsHash  string              `json:"params_hash"`
	Errors      map[string][]string `json:"errors"`
	Invoked     []string            `json:"invoked"`
	Outcome     engine.Outcome      `json:"outcome"`
	Rows        []ir.IRObject       `json:"rows,omitempty"`
	Count       int                 `json:"count"`
	Fingerprint string              `json:"fingerprint"`
}

// Run plans and executes the query registered under name with the raw
// parameter payload.
//
// Validation errors are not failures: the response carries them with an
// empty result. A returned error means the definition is unknown, the
// payload could not be read, or execution failed. Failed executions are
// still recorded, and their response is returned alongside the error.
func (s *Service) Run(ctx context.Context, name string, raw any, opts RunOptions) (*Response, error) {
	id := s.ids.Generate()
	q, err := s.registry.Query(name, raw, engine.WithID(id), engine.WithLogger(s.logger))
	if err != nil {
		return nil, err
	}

	resp := &Response{
		ID:         id,
		Definition: name,
		Params:     q.Params().Object(),
		ParamsHash: q.ParamsHash(),
		Errors:     q.Errors().Strings(),
	}

	var execErr error
	if opts.CountOnly {
		resp.Count, execErr = q.Count(ctx)
	} else {
		resp.Rows, execErr = q.Rows(ctx)
		resp.Count = len(resp.Rows)
	}
	resp.Invoked = q.Invoked()
	if resp.Invoked == nil {
		resp.Invoked = []string{}
	}
	resp.Outcome = q.Outcome()
	if execErr != nil {
		resp.Outcome = engine.OutcomeError
	}

	fp, err := ir.RunFingerprint(name, resp.Params, resp.Invoked)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", name, err)
	}
	resp.Fingerprint = fp

	if s.log != nil && !opts.NoRecord {
		resp.Seq = s.clock.Next()
		run := store.Run{
			ID:          resp.ID,
			Seq:         resp.Seq,
			Definition:  name,
			Source:      q.Definition().Source(),
			Params:      resp.Params,
			ParamsHash:  resp.ParamsHash,
			Errors:      resp.Errors,
			Invoked:     resp.Invoked,
			Outcome:     string(resp.Outcome),
			RowCount:    resp.Count,
			Fingerprint: resp.Fingerprint,
		}
		if execErr != nil {
			run.Error = execErr.Error()
		}
		if err := s.log.WriteRun(ctx, run); err != nil {
			return nil, errors.Join(execErr, fmt.Errorf("record run %s: %w", id, err))
		}
	}

	if execErr != nil {
		return resp, execErr
	}

	s.logger.Debug("run recorded",
		"run_id", resp.ID,
		"seq", resp.Seq,
		"definition", name,
		"outcome", resp.Outcome,
		"count", resp.Count,
	)
	return resp, nil
}

// History lists recorded runs in log order.
func (s *Service) History(ctx context.Context, filter store.RunFilter) ([]store.Run, error) {
	if s.log == nil {
		return nil, errors.New("history: no run log configured")
	}
	return s.log.ReadRuns(ctx, filter)
}

// Lookup returns one recorded run.
func (s *Service) Lookup(ctx context.Context, id string) (store.Run, error) {
	if s.log == nil {
		return store.Run{}, errors.New("lookup: no run log configured")
	}
	return s.log.ReadRun(ctx, id)
}
