package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/your-org/streamforge/internal/store/storetest"
	"github.com/your-org/streamforge/internal/video"
)

func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("STREAMFORGE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STREAMFORGE_TEST_POSTGRES_DSN not set")
	}

	storetest.Run(t, func(t *testing.T) video.Store {
		store, err := Open(context.Background(), Config{DSN: dsn, ApplicationName: "streamforge-test"})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		t.Cleanup(func() { store.Close() })
		return store
	})
}

func TestOpenRequiresDSN(t *testing.T) {
	if _, err := Open(context.Background(), Config{}); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
