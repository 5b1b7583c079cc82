// Command chatmand runs the chat engine behind the HTTP RPC server.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/pflag"
	mongodrv "go.mongodb.org/mongo-driver/v2/mongo"
	mongoopts "go.mongodb.org/mongo-driver/v2/mongo/options"

	"chatman"
	"chatman/config"
	"chatman/server"
	"chatman/snapshot"
	snapbolt "chatman/snapshot/boltdb"
	snapgcs "chatman/snapshot/gcs"
	snapmongo "chatman/snapshot/mongo"
	snappg "chatman/snapshot/postgres"
	snaps3 "chatman/snapshot/s3"
	"chatman/store/memory"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "chatmand:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath = pflag.String("config", "chatmand.toml", "path to the TOML configuration file")
		addr       = pflag.String("addr", "", "listen address override")
		logLevel   = pflag.String("log-level", "", "log level override (debug, info, warn, error)")
	)
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := newLogger(cfg.Log.Level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	memStore := memory.New(memory.WithMaxMailboxSize(cfg.Engine.MaxMailboxSize))

	persister, cleanup, err := buildPersister(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build snapshot persister: %w", err)
	}
	if cleanup != nil {
		defer cleanup()
	}

	engineOpts := []chatman.Option{
		chatman.WithStore(memStore),
		chatman.WithLogger(logger),
		chatman.WithMaxMessageLength(cfg.Engine.MaxMessageLength),
		chatman.WithMaxConcurrentSends(cfg.Engine.MaxConcurrentSends),
		chatman.WithShutdownTimeout(cfg.Engine.ShutdownTimeout.Duration),
		chatman.WithSnapshotInterval(cfg.Snapshot.Interval.Duration),
		chatman.WithTracing(cfg.Telemetry.Tracing),
		chatman.WithMetrics(cfg.Telemetry.Metrics),
	}
	if persister != nil {
		engineOpts = append(engineOpts, chatman.WithSnapshotPersister(persister))
	}
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		engineOpts = append(engineOpts, chatman.WithRedisClient(rdb))
	}

	svc, err := chatman.NewService(engineOpts...)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	if err := svc.Connect(ctx); err != nil {
		return fmt.Errorf("connect engine: %w", err)
	}

	srv := server.New(svc,
		server.WithLogger(logger),
		server.WithRequestLog(cfg.Server.RequestLog),
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Listen(cfg.Server.Addr)
	}()

	select {
	case err := <-errCh:
		svc.Close(context.Background())
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := srv.Shutdown(); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}

	// Allow the engine its full drain timeout plus slack for the
	// final snapshot save.
	closeCtx, cancel := context.WithTimeout(context.Background(),
		cfg.Engine.ShutdownTimeout.Duration+10*time.Second)
	defer cancel()
	if err := svc.Close(closeCtx); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// buildPersister wires the configured snapshot backend. The returned
// cleanup closes handles the persister does not own (database clients).
func buildPersister(ctx context.Context, cfg *config.Config, logger *slog.Logger) (snapshot.Persister, func(), error) {
	sc := cfg.Snapshot
	switch sc.Backend {
	case "", "none":
		return nil, nil, nil

	case "bolt":
		p, err := snapbolt.New(sc.Path, snapbolt.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil

	case "postgres":
		db, err := sqlx.Open("postgres", sc.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres: %w", err)
		}
		opts := []snappg.Option{snappg.WithLogger(logger)}
		if sc.Table != "" {
			opts = append(opts, snappg.WithTable(sc.Table))
		}
		p, err := snappg.New(ctx, db, opts...)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return p, func() { db.Close() }, nil

	case "mongo":
		client, err := mongodrv.Connect(mongoopts.Client().ApplyURI(sc.URI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		opts := []snapmongo.Option{snapmongo.WithLogger(logger)}
		if sc.Database != "" {
			opts = append(opts, snapmongo.WithDatabase(sc.Database))
		}
		if sc.Collection != "" {
			opts = append(opts, snapmongo.WithCollection(sc.Collection))
		}
		p, err := snapmongo.New(ctx, client, opts...)
		if err != nil {
			client.Disconnect(context.Background())
			return nil, nil, err
		}
		return p, func() { client.Disconnect(context.Background()) }, nil

	case "s3":
		opts := []snaps3.Option{
			snaps3.WithBucket(sc.Bucket),
			snaps3.WithLogger(logger),
		}
		if sc.Prefix != "" {
			opts = append(opts, snaps3.WithPrefix(sc.Prefix))
		}
		if sc.Region != "" {
			opts = append(opts, snaps3.WithRegion(sc.Region))
		}
		if sc.Endpoint != "" {
			opts = append(opts, snaps3.WithEndpoint(sc.Endpoint), snaps3.WithPathStyle(sc.PathStyle))
		}
		if sc.AccessKey != "" && sc.SecretKey != "" {
			opts = append(opts, snaps3.WithStaticCredentials(sc.AccessKey, sc.SecretKey))
		}
		if sc.RoleARN != "" {
			opts = append(opts, snaps3.WithAssumeRole(sc.RoleARN, ""))
		}
		p, err := snaps3.New(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil

	case "gcs":
		opts := []snapgcs.Option{
			snapgcs.WithBucket(sc.Bucket),
			snapgcs.WithLogger(logger),
		}
		if sc.Prefix != "" {
			opts = append(opts, snapgcs.WithPrefix(sc.Prefix))
		}
		if sc.CredentialsFile != "" {
			opts = append(opts, snapgcs.WithCredentialsFile(sc.CredentialsFile))
		}
		if sc.Endpoint != "" {
			opts = append(opts, snapgcs.WithEndpoint(sc.Endpoint))
		}
		p, err := snapgcs.New(ctx, opts...)
		if err != nil {
			return nil, nil, err
		}
		return p, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown snapshot backend %q", sc.Backend)
	}
}
