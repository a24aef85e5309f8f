package params

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/sieve/internal/ir"
)

// Override computes a key's effective value from the whole filtered
// parameter set. Returning an error, a nil value or a blank value all mean
// "absent"; none of them fail the query.
type Override func(p *Filtered) (any, error)

// Resolver looks up effective values for keys of one parameter set.
// Results are memoized per key, so a key referenced by several mappings is
// computed once.
//
// Resolver is safe for concurrent use.
type Resolver struct {
	params    *Filtered
	overrides map[Key]Override
	logger    *slog.Logger

	mu    sync.Mutex
	cache map[Key]resolution
}

type resolution struct {
	value   any
	present bool
}

// NewResolver creates a resolver over p. overrides may be nil.
func NewResolver(p *Filtered, overrides map[Key]Override, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		params:    p,
		overrides: overrides,
		logger:    logger,
		cache:     make(map[Key]resolution),
	}
}

// Resolve returns the effective value for key and whether it is present.
//
// Without an override the value is the filtered parameter converted with
// ir.ToNative. With an override, its result is used as is unless blank.
func (r *Resolver) Resolve(key Key) (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if res, ok := r.cache[key]; ok {
		return res.value, res.present
	}

	var res resolution
	if override, ok := r.overrides[key]; ok {
		res = r.runOverride(key, override)
	} else if v, ok := r.params.Get(key); ok {
		res = resolution{value: ir.ToNative(v), present: true}
	}

	r.cache[key] = res
	return res.value, res.present
}

// runOverride converts every failure mode into absence, including panics
// raised by parsing code.
func (r *Resolver) runOverride(key Key, override Override) (res resolution) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Debug("override panicked, treating as absent", "key", string(key), "panic", fmt.Sprint(rec))
			res = resolution{}
		}
	}()

	v, err := override(r.params)
	if err != nil {
		r.logger.Debug("override failed, treating as absent", "key", string(key), "error", err)
		return resolution{}
	}
	if IsBlankAny(v) {
		return resolution{}
	}
	return resolution{value: v, present: true}
}

// Params returns the parameter set the resolver reads from.
func (r *Resolver) Params() *Filtered {
	return r.params
}
