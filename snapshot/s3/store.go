// Package s3 persists snapshots as a single S3 object. It works with
// any S3-compatible service (MinIO, LocalStack) via a custom endpoint.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/transfermanager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"chatman/snapshot"
	"chatman/store"
)

// Store is an S3-backed snapshot persister.
type Store struct {
	client *s3.Client
	tm     *transfermanager.Client
	bucket string
	key    string
	logger *slog.Logger
}

// Ensure Store implements Persister.
var _ snapshot.Persister = (*Store)(nil)

// New creates an S3 snapshot store.
// The context is used for AWS credential loading and configuration.
func New(ctx context.Context, opts ...Option) (*Store, error) {
	o := &options{
		region: "us-east-1",
		prefix: "chatman",
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	awsCfg, err := buildAWSConfig(ctx, o)
	if err != nil {
		return nil, fmt.Errorf("build aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(opts *s3.Options) {
		if o.endpoint != "" {
			opts.BaseEndpoint = aws.String(o.endpoint)
			opts.UsePathStyle = o.usePathStyle
		}
	})

	return &Store{
		client: client,
		tm:     transfermanager.New(client),
		bucket: o.bucket,
		key:    path.Join(o.prefix, "snapshot.json"),
		logger: o.logger,
	}, nil
}

// buildAWSConfig builds AWS config based on authentication options.
func buildAWSConfig(ctx context.Context, o *options) (aws.Config, error) {
	var optFns []func(*config.LoadOptions) error

	optFns = append(optFns, config.WithRegion(o.region))

	switch {
	case o.accessKey != "" && o.secretKey != "":
		// Static credentials (Access Key + Secret Key)
		creds := credentials.NewStaticCredentialsProvider(o.accessKey, o.secretKey, o.sessionToken)
		optFns = append(optFns, config.WithCredentialsProvider(creds))

	case o.roleARN != "":
		// IAM Role - load default config first, then assume role via STS
		baseCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(o.region))
		if err != nil {
			return aws.Config{}, fmt.Errorf("load base config for role: %w", err)
		}
		stsCreds := newAssumeRoleProvider(baseCfg, o.roleARN, o.roleSessionName, o.externalID)
		optFns = append(optFns, config.WithCredentialsProvider(stsCreds))

	default:
		// Default credential chain: env vars, shared config, EC2/ECS
		// instance roles, IRSA on EKS. No explicit credentials needed.
	}

	return config.LoadDefaultConfig(ctx, optFns...)
}

// Load downloads and decodes the snapshot object, or returns
// snapshot.ErrNoSnapshot if it does not exist.
func (s *Store) Load(ctx context.Context) (*store.Snapshot, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, snapshot.ErrNoSnapshot
		}
		return nil, fmt.Errorf("get snapshot object: %w", err)
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
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

	input := &transfermanager.UploadObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	}
	if _, err := s.tm.UploadObject(ctx, input); err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}

	s.logger.Debug("snapshot written to s3", "bucket", s.bucket, "key", s.key, "bytes", len(data))
	return nil
}

// Close is a no-op; the S3 client holds no connections to release.
func (s *Store) Close(ctx context.Context) error {
	return nil
}
