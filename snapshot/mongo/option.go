package mongo

import (
	"log/slog"
	"time"
)

// Defaults for the snapshot collection.
const (
	DefaultDatabase   = "chatman"
	DefaultCollection = "snapshots"
	DefaultKey        = "latest"
	DefaultTimeout    = 10 * time.Second
)

// options holds mongo store configuration.
type options struct {
	database   string
	collection string
	key        string
	timeout    time.Duration
	logger     *slog.Logger
}

func defaultOptions() *options {
	return &options{
		database:   DefaultDatabase,
		collection: DefaultCollection,
		key:        DefaultKey,
		timeout:    DefaultTimeout,
		logger:     slog.Default(),
	}
}

// Option configures the mongo store.
type Option func(*options)

// WithDatabase sets the database name. Default is "chatman".
func WithDatabase(name string) Option {
	return func(o *options) {
		if name != "" {
			o.database = name
		}
	}
}

// WithCollection sets the collection name. Default is "snapshots".
func WithCollection(name string) Option {
	return func(o *options) {
		if name != "" {
			o.collection = name
		}
	}
}

// WithKey sets the document key this store reads and writes.
// Default is "latest".
func WithKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.key = key
		}
	}
}

// WithTimeout bounds each database operation. Default is 10 seconds.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}
