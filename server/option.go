package server

import "log/slog"

// DefaultBodyLimit caps request bodies. Large enough for a full
// acknowledgment batch, small enough to shed junk uploads.
const DefaultBodyLimit = 4 * 1024 * 1024

// options holds server configuration.
type options struct {
	logger     *slog.Logger
	bodyLimit  int
	requestLog bool
}

func defaultOptions() *options {
	return &options{
		logger:     slog.Default(),
		bodyLimit:  DefaultBodyLimit,
		requestLog: true,
	}
}

// Option configures the server.
type Option func(*options)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithBodyLimit overrides the request body size limit.
func WithBodyLimit(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bodyLimit = n
		}
	}
}

// WithRequestLog enables or disables per-request logging middleware.
// Enabled by default; tests usually turn it off.
func WithRequestLog(enabled bool) Option {
	return func(o *options) {
		o.requestLog = enabled
	}
}
