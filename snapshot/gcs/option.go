package gcs

import "log/slog"

// options holds GCS store configuration.
type options struct {
	bucket string
	prefix string

	// Authentication
	credentialsJSON []byte
	credentialsFile string

	// Custom endpoint (for emulators, testing)
	endpoint string

	// Logger
	logger *slog.Logger
}

// Option configures the GCS store.
type Option func(*options)

// WithBucket sets the GCS bucket name (required).
func WithBucket(bucket string) Option {
	return func(o *options) {
		o.bucket = bucket
	}
}

// WithPrefix sets the object prefix for the snapshot.
// Default is "chatman".
func WithPrefix(prefix string) Option {
	return func(o *options) {
		o.prefix = prefix
	}
}

// WithCredentialsJSON sets inline service account key JSON.
func WithCredentialsJSON(data []byte) Option {
	return func(o *options) {
		o.credentialsJSON = data
	}
}

// WithCredentialsFile sets a path to a service account key file.
// When no credential options are set, Application Default Credentials
// are used.
func WithCredentialsFile(file string) Option {
	return func(o *options) {
		o.credentialsFile = file
	}
}

// WithEndpoint sets a custom endpoint (for the GCS emulator).
func WithEndpoint(endpoint string) Option {
	return func(o *options) {
		o.endpoint = endpoint
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
