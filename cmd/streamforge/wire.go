package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/your-org/streamforge/internal/events"
	"github.com/your-org/streamforge/internal/jobs"
	"github.com/your-org/streamforge/internal/store/memory"
	"github.com/your-org/streamforge/internal/store/postgres"
	"github.com/your-org/streamforge/internal/store/sqlite"
	"github.com/your-org/streamforge/internal/transcode"
	"github.com/your-org/streamforge/internal/video"
	"github.com/your-org/streamforge/pkg/config"
	"github.com/your-org/streamforge/pkg/kafka"
	"github.com/your-org/streamforge/pkg/storage/objectstore"
)

func openStore(ctx context.Context, cfg *config.Config) (video.Store, error) {
	switch cfg.Database.Driver {
	case "sqlite":
		store, err := sqlite.Open(ctx, cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "postgres":
		store, err := postgres.Open(ctx, postgres.Config{
			DSN:             cfg.Database.DSN,
			MaxConns:        cfg.Database.MaxConns,
			MaxConnLifetime: cfg.Database.MaxConnLifetime,
			ApplicationName: cfg.App.Name,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Database.Driver)
	}
}

// newPublisher returns a Kafka-backed publisher when brokers are configured.
func newPublisher(cfg *config.Config, logr *zap.Logger) (events.Publisher, func()) {
	if len(cfg.Kafka.Brokers) == 0 {
		return events.Nop{}, func() {}
	}
	producer := kafka.NewProducer(kafka.ProducerConfig{
		Brokers:      cfg.Kafka.Brokers,
		Topic:        cfg.Kafka.EventsTopic,
		BatchSize:    cfg.Kafka.BatchSize,
		BatchTimeout: cfg.Kafka.BatchTimeout,
		Compression:  kafka.CompressionFromString(cfg.Kafka.CompressionCodec),
		RequiredAcks: kafka.AcksFromString(cfg.Kafka.RequiredAcks),
		MaxAttempts:  cfg.Kafka.Retries,
		Async:        cfg.Kafka.Async,
	})
	return events.NewKafkaPublisher(producer), func() {
		if err := producer.Close(); err != nil {
			logr.Error("kafka producer close failed", zap.Error(err))
		}
	}
}

// newMirror returns nil when no object store is configured.
func newMirror(cfg *config.Config) (transcode.Mirror, error) {
	storeCfg := objectstore.Config{
		Provider:  cfg.Storage.Provider,
		Endpoint:  cfg.Storage.Endpoint,
		Region:    cfg.Storage.Region,
		Bucket:    cfg.Storage.Bucket,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
	}
	if !storeCfg.Enabled() {
		return nil, nil
	}
	client, err := objectstore.New(storeCfg)
	if err != nil {
		return nil, fmt.Errorf("init object store: %w", err)
	}
	return objectstore.NewMirror(client), nil
}

// newLocker uses Redis when REDIS_ADDR is set and an in-process lock
// otherwise.
func newLocker(ctx context.Context, cfg *config.Config) (jobs.Locker, func(), error) {
	if cfg.Redis.Addr == "" {
		return jobs.NewLocalLocker(), func() {}, nil
	}
	locker, err := jobs.NewRedisLocker(jobs.RedisLockerConfig{
		Addr:     cfg.Redis.Addr,
		Username: cfg.Redis.Username,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TTL:      cfg.Redis.LockTTL,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := locker.Ping(ctx); err != nil {
		locker.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return locker, func() { locker.Close() }, nil
}
