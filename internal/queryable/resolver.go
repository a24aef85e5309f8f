package queryable

import (
	"context"
	"sort"
)

// Resolver turns a source identifier into a Queryable. Resolution happens
// lazily, the first time a query needs its source.
type Resolver interface {
	Resolve(ctx context.Context, source string) (Queryable, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, source string) (Queryable, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, source string) (Queryable, error) {
	return f(ctx, source)
}

// Sources is a fixed set of named queryables.
type Sources map[string]Queryable

// Resolve returns the queryable registered under source.
func (s Sources) Resolve(_ context.Context, source string) (Queryable, error) {
	q, ok := s[source]
	if !ok {
		return nil, &MissingSourceError{Source: source}
	}
	return q, nil
}

// Names lists the registered sources in sorted order.
func (s Sources) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
