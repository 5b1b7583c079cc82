package postgres

import "log/slog"

// Defaults for the snapshot table.
const (
	DefaultTable = "chat_snapshots"
	DefaultKey   = "latest"
)

// options holds postgres store configuration.
type options struct {
	table  string
	key    string
	logger *slog.Logger
}

func defaultOptions() *options {
	return &options{
		table:  DefaultTable,
		key:    DefaultKey,
		logger: slog.Default(),
	}
}

// Option configures the postgres store.
type Option func(*options)

// WithTable sets the snapshot table name. Default is "chat_snapshots".
func WithTable(table string) Option {
	return func(o *options) {
		if table != "" {
			o.table = table
		}
	}
}

// WithKey sets the row key this store reads and writes. Engines
// sharing a database should use distinct keys. Default is "latest".
func WithKey(key string) Option {
	return func(o *options) {
		if key != "" {
			o.key = key
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
