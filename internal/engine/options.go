package engine

import "log/slog"

// Option configures a Query.
type Option func(*options)

type options struct {
	logger *slog.Logger
	ids    IDGenerator
	id     string
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIDGenerator sets the query id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(o *options) { o.ids = g }
}

// WithID fixes the query id, taking priority over any generator.
func WithID(id string) Option {
	return func(o *options) { o.id = id }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default(), ids: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.id == "" {
		o.id = o.ids.Generate()
	}
	return o
}
