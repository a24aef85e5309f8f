package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/roach88/sieve/internal/compiler"
	"github.com/roach88/sieve/internal/engine"
	"github.com/roach88/sieve/internal/ir"
	"github.com/roach88/sieve/internal/service"
	"github.com/roach88/sieve/internal/store"
	"github.com/roach88/sieve/internal/testutil"
)

// Harness is the test execution engine.
// It runs one scenario with a deterministic clock and run ids.
type Harness struct {
	store  *store.Store
	svc    *service.Service
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database, apply schema, seed fixtures
// 2. Load and assemble the scenario's query files
// 3. Run every case through the service, recording it in the run log
// 4. Evaluate assertions
//
// A returned error means the scenario could not be set up; failing cases
// and assertions are reported in the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	if err := setupDatabase(ctx, st, scenario); err != nil {
		return nil, fmt.Errorf("failed to set up database: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	specs, err := loadQueries(scenario)
	if err != nil {
		return nil, err
	}
	reg, err := compiler.Assemble(specs, st, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble queries: %w", err)
	}

	h := &Harness{
		store: st,
		svc: service.New(reg,
			service.WithRunLog(st),
			service.WithClock(testutil.NewDeterministicClock()),
			service.WithIDGenerator(testutil.NewSequentialIDGenerator(scenario.Name)),
			service.WithLogger(logger),
		),
		logger: logger,
	}

	result := NewResult()
	for i, c := range scenario.Cases {
		h.executeCase(ctx, i, c, result)
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, st) {
		result.AddError(msg)
	}
	return result, nil
}

// setupDatabase applies the schema, then seeds fixtures in table-name order.
func setupDatabase(ctx context.Context, st *store.Store, scenario *Scenario) error {
	if scenario.Schema != "" {
		if err := st.Exec(ctx, scenario.Schema); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}

	for _, table := range slices.Sorted(maps.Keys(scenario.Fixtures)) {
		rows := make([]ir.IRObject, len(scenario.Fixtures[table]))
		for i, raw := range scenario.Fixtures[table] {
			row, err := convertRow(raw)
			if err != nil {
				return fmt.Errorf("fixture %s[%d]: %w", table, i, err)
			}
			rows[i] = row
		}
		if err := st.Seed(ctx, table, rows); err != nil {
			return err
		}
	}
	return nil
}

// loadQueries loads every query file and applies the scenario policy to
// queries without their own.
func loadQueries(scenario *Scenario) ([]*compiler.QuerySpec, error) {
	var specs []*compiler.QuerySpec
	for _, path := range scenario.Queries {
		loaded, err := compiler.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load queries: %w", err)
		}
		specs = append(specs, loaded...)
	}
	if scenario.Policy != "" {
		for _, spec := range specs {
			if spec.Policy == "" {
				spec.Policy = scenario.Policy
			}
		}
	}
	return specs, nil
}

// executeCase runs one case and checks its expectations. Execution errors
// are recorded in the trace; they fail the case unless it expects them.
func (h *Harness) executeCase(ctx context.Context, index int, c Case, result *Result) {
	var raw any = map[string]any{}
	if c.Params != nil {
		raw = c.Params
	}

	resp, err := h.svc.Run(ctx, c.Query, raw, service.RunOptions{CountOnly: c.CountOnly})
	event := TraceEvent{Case: c.Name, Query: c.Query, Params: ir.IRObject{}, Invoked: []string{}}
	if resp != nil {
		event.Seq = resp.Seq
		event.RunID = resp.ID
		event.Params = resp.Params
		event.Invoked = resp.Invoked
		event.Outcome = string(resp.Outcome)
		event.Count = resp.Count
		event.rows = resp.Rows
		if len(resp.Errors) > 0 {
			event.Errors = resp.Errors
		}
		event.IDs = rowIDs(resp.Rows)
	}
	if err != nil {
		event.Outcome = string(engine.OutcomeError)
		event.Error = err.Error()
	}
	result.Trace = append(result.Trace, event)

	for _, msg := range checkExpectation(event, c.Expect) {
		result.AddError(fmt.Sprintf("case %d (%s): %s", index, c.Name, msg))
	}

	h.logger.Info("case completed",
		"case", c.Name,
		"query", c.Query,
		"run_id", event.RunID,
		"outcome", event.Outcome,
		"count", event.Count,
	)
}

// rowIDs collects the id column of rows. Returns nil when any row lacks one.
func rowIDs(rows []ir.IRObject) []ir.IRValue {
	if len(rows) == 0 {
		return nil
	}
	ids := make([]ir.IRValue, 0, len(rows))
	for _, row := range rows {
		id, ok := row["id"]
		if !ok {
			return nil
		}
		ids = append(ids, id)
	}
	return ids
}

// RunAll executes scenarios concurrently, at most limit at a time (no limit
// when limit <= 0). Results are returned in scenario order. The first setup
// error cancels the remaining scenarios.
func RunAll(ctx context.Context, scenarios []*Scenario, limit int) ([]*Result, error) {
	results := make([]*Result, len(scenarios))

	eg, egctx := errgroup.WithContext(ctx)
	if limit > 0 {
		eg.SetLimit(limit)
	}
	for i, s := range scenarios {
		eg.Go(func() error {
			res, err := Run(egctx, s)
			if err != nil {
				return fmt.Errorf("scenario %s: %w", s.Name, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// convertRow converts a YAML-decoded row to an IRObject.
func convertRow(raw map[string]any) (ir.IRObject, error) {
	v, err := ir.FromAny(raw)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return ir.IRObject{}, nil
	}
	return obj, nil
}
