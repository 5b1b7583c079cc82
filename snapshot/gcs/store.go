// Package gcs persists snapshots as a single Google Cloud Storage
// object.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"cloud.google.com/go/auth/credentials"
	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	"chatman/snapshot"
	"chatman/store"
)

// Store is a GCS-backed snapshot persister.
type Store struct {
	client *storage.Client
	bucket string
	object string
	logger *slog.Logger
}

// Ensure Store implements Persister.
var _ snapshot.Persister = (*Store)(nil)

// New creates a GCS snapshot store.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := &options{
		prefix: "chatman",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	clientOpts, err := buildClientOptions(o)
	if err != nil {
		return nil, fmt.Errorf("build client options: %w", err)
	}

	client, err := storage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}

	return &Store{
		client: client,
		bucket: o.bucket,
		object: path.Join(o.prefix, "snapshot.json"),
		logger: o.logger,
	}, nil
}

// buildClientOptions builds GCS client options based on authentication
// settings.
func buildClientOptions(o *options) ([]option.ClientOption, error) {
	var opts []option.ClientOption

	switch {
	case o.credentialsJSON != nil:
		// Service account key provided inline
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
			CredentialsJSON: o.credentialsJSON,
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials from json: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))

	case o.credentialsFile != "":
		creds, err := credentials.DetectDefault(&credentials.DetectOptions{
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
			CredentialsFile: o.credentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("detect credentials from file: %w", err)
		}
		opts = append(opts, option.WithAuthCredentials(creds))

	default:
		// Application Default Credentials: GOOGLE_APPLICATION_CREDENTIALS,
		// gcloud login, Workload Identity on GKE, or the instance
		// service account. No explicit options needed.
	}

	// Custom endpoint for emulators and testing
	if o.endpoint != "" {
		opts = append(opts, option.WithEndpoint(o.endpoint))
	}

	return opts, nil
}

// Load downloads and decodes the snapshot object, or returns
// snapshot.ErrNoSnapshot if it does not exist.
func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	obj := s.client.Bucket(s.bucket).Object(s.object)
	r, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, snapshot.ErrNoSnapshot
		}
		return nil, fmt.Errorf("open snapshot object: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read snapshot object: %w", err)
	}
	return snapshot.Unmarshal(data)
}

// Save uploads the snapshot, replacing the previous object.
func (s *Store) Save(ctx context.Context, snap *store.Snapshot) error {
	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}

	obj := s.client.Bucket(s.bucket).Object(s.object)
	w := obj.NewWriter(ctx)
	w.ContentType = "application/json"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("write snapshot to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close gcs writer: %w", err)
	}

	s.logger.Debug("snapshot written to gcs", "bucket", s.bucket, "object", s.object, "bytes", len(data))
	return nil
}

// Close closes the GCS client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Close()
}
