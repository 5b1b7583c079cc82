package boltdb

import "log/slog"

// options holds bolt store configuration.
type options struct {
	logger *slog.Logger
}

// Option configures the bolt store.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
