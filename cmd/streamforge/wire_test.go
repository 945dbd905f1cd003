package main

import (
	"context"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/your-org/streamforge/internal/events"
	"github.com/your-org/streamforge/internal/jobs"
	"github.com/your-org/streamforge/internal/store/memory"
	"github.com/your-org/streamforge/internal/store/sqlite"
	"github.com/your-org/streamforge/pkg/config"
	"github.com/your-org/streamforge/pkg/storage/objectstore"
)

func TestOpenStore(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Driver = "memory"
	store, err := openStore(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Errorf("store = %T, want *memory.Store", store)
	}

	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "db", "streamforge.db")
	store, err = openStore(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if _, ok := store.(*sqlite.Store); !ok {
		t.Errorf("store = %T, want *sqlite.Store", store)
	}

	cfg.Database.Driver = "oracle"
	if _, err := openStore(context.Background(), cfg); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestNewPublisher(t *testing.T) {
	cfg := &config.Config{}
	pub, closeFn := newPublisher(cfg, zap.NewNop())
	defer closeFn()
	if _, ok := pub.(events.Nop); !ok {
		t.Errorf("publisher = %T, want events.Nop without brokers", pub)
	}

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.EventsTopic = "videos"
	pub, closeKafka := newPublisher(cfg, zap.NewNop())
	defer closeKafka()
	if _, ok := pub.(*events.KafkaPublisher); !ok {
		t.Errorf("publisher = %T, want *events.KafkaPublisher", pub)
	}
}

func TestNewMirror(t *testing.T) {
	cfg := &config.Config{}
	cfg.Storage.Provider = "none"
	mirror, err := newMirror(cfg)
	if err != nil || mirror != nil {
		t.Errorf("newMirror() = %v, %v; want nil mirror", mirror, err)
	}

	cfg.Storage = config.StorageConfig{
		Provider:  "minio",
		Endpoint:  "http://localhost:9000",
		Bucket:    "assets",
		AccessKey: "key",
		SecretKey: "secret",
	}
	mirror, err = newMirror(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := mirror.(*objectstore.Mirror); !ok {
		t.Errorf("mirror = %T", mirror)
	}
}

func TestNewLockerDefaultsToLocal(t *testing.T) {
	locker, closeFn, err := newLocker(context.Background(), &config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	defer closeFn()
	if _, ok := locker.(*jobs.LocalLocker); !ok {
		t.Errorf("locker = %T", locker)
	}
}
