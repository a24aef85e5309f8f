package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/roach88/sieve/internal/compiler"
	"github.com/roach88/sieve/internal/engine"
	"github.com/roach88/sieve/internal/registry"
	"github.com/roach88/sieve/internal/service"
	"github.com/roach88/sieve/internal/store"
)

// workspace is the database plus the queries assembled over it.
type workspace struct {
	store    *store.Store
	registry *registry.Registry
	service  *service.Service
}

// loadQuerySpecs parses the query files at path. policy, when set,
// applies to queries that declare none.
func loadQuerySpecs(path, policy string) ([]*compiler.QuerySpec, error) {
	specs, err := compiler.Load(path)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no query files found in %s", path))
	}
	if policy != "" {
		for _, spec := range specs {
			if spec.Policy == "" {
				spec.Policy = policy
			}
		}
	}
	return specs, nil
}

// loadErrorCode classifies a compiler.Load failure.
func loadErrorCode(err error) string {
	var exitErr *ExitError
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ErrCodeNotFound
	case errors.As(err, &exitErr):
		return ErrCodeNoFiles
	default:
		return ErrCodeLoadFailed
	}
}

// openWorkspace loads and assembles the configured queries over the
// configured database. The run log clock resumes after the last recorded
// seq.
func openWorkspace(ctx context.Context, opts *RootOptions, f *OutputFormatter, logger *slog.Logger) (*workspace, error) {
	specs, err := loadQuerySpecs(opts.Queries, opts.Policy)
	if err != nil {
		return nil, f.Fail(ExitCommandError, loadErrorCode(err), "failed to load queries", err)
	}
	f.VerboseLog("Loaded %d queries from %s", len(specs), opts.Queries)

	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeGeneric, "failed to open database", err)
	}

	reg, err := compiler.Assemble(specs, st, logger)
	if err != nil {
		st.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeLoadFailed, "failed to assemble queries", err)
	}

	last, err := st.GetLastSeq(ctx)
	if err != nil {
		st.Close()
		return nil, f.Fail(ExitCommandError, ErrCodeGeneric, "failed to read run log", err)
	}

	svc := service.New(reg,
		service.WithRunLog(st),
		service.WithClock(engine.NewClockAt(last)),
		service.WithLogger(logger),
	)
	return &workspace{store: st, registry: reg, service: svc}, nil
}

// openRunLog opens the database for commands that only read the run log.
func openRunLog(opts *RootOptions, f *OutputFormatter) (*store.Store, error) {
	st, err := store.Open(opts.Database)
	if err != nil {
		return nil, f.Fail(ExitCommandError, ErrCodeGeneric, "failed to open database", err)
	}
	return st, nil
}

func (w *workspace) Close() error {
	return w.store.Close()
}
