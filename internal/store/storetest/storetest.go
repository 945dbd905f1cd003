// Package storetest holds behaviour checks shared by every video.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/streamforge/internal/video"
)

// Run exercises the video.Store contract against stores built by newStore.
func Run(t *testing.T, newStore func(t *testing.T) video.Store) {
	t.Helper()

	t.Run("CreateAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		asset := processingAsset()

		if err := store.Create(ctx, asset, []string{"music", " live ", "music", ""}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		got, err := store.Get(ctx, asset.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Title != asset.Title || got.UploaderID != asset.UploaderID || got.Description != asset.Description {
			t.Errorf("Get() = %+v, want fields of %+v", got, asset)
		}
		if got.Status != video.StatusProcessing {
			t.Errorf("Status = %q, want processing", got.Status)
		}
		if got.SourceURL != "" {
			t.Errorf("SourceURL = %q, want empty", got.SourceURL)
		}
		want := []string{"live", "music"}
		tags := append([]string(nil), got.Tags...)
		if len(tags) == 2 && tags[0] > tags[1] {
			tags[0], tags[1] = tags[1], tags[0]
		}
		if !reflect.DeepEqual(tags, want) {
			t.Errorf("Tags = %v, want %v", got.Tags, want)
		}
	})

	t.Run("CreateDuplicate", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		asset := processingAsset()
		if err := store.Create(ctx, asset, []string{"first"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		again := asset
		again.Title = "Overwritten"
		again.Status = video.StatusCompleted
		again.SourceURL = "https://cdn.example.com/other.m3u8"
		if err := store.Create(ctx, again, []string{"second"}); !errors.Is(err, video.ErrDuplicate) {
			t.Fatalf("duplicate Create() error = %v, want ErrDuplicate", err)
		}

		got, err := store.Get(ctx, asset.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Title != asset.Title || got.Status != video.StatusProcessing || got.SourceURL != "" {
			t.Errorf("Get() = %+v, want the first record untouched", got)
		}
		if !reflect.DeepEqual(got.Tags, []string{"first"}) {
			t.Errorf("Tags = %v, want [first]", got.Tags)
		}
	})

	t.Run("GetUnknown", func(t *testing.T) {
		store := newStore(t)
		if _, err := store.Get(context.Background(), uuid.NewString()); !errors.Is(err, video.ErrNotFound) {
			t.Errorf("Get() error = %v, want ErrNotFound", err)
		}
		if _, err := store.Get(context.Background(), "../etc"); !errors.Is(err, video.ErrNotFound) {
			t.Errorf("Get(malformed) error = %v, want ErrNotFound", err)
		}
	})

	t.Run("CompleteOnce", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		asset := processingAsset()
		if err := store.Create(ctx, asset, nil); err != nil {
			t.Fatalf("Create() error = %v", err)
		}

		if err := store.Complete(ctx, asset.ID, "/assets/"+asset.ID+"/master.m3u8"); err != nil {
			t.Fatalf("Complete() error = %v", err)
		}
		if err := store.Fail(ctx, asset.ID); !errors.Is(err, video.ErrAlreadyTerminal) {
			t.Errorf("Fail() after Complete error = %v, want ErrAlreadyTerminal", err)
		}
		if err := store.Complete(ctx, asset.ID, "/other"); !errors.Is(err, video.ErrAlreadyTerminal) {
			t.Errorf("second Complete() error = %v, want ErrAlreadyTerminal", err)
		}

		got, err := store.Get(ctx, asset.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != video.StatusCompleted {
			t.Errorf("Status = %q, want completed", got.Status)
		}
		if got.SourceURL != "/assets/"+asset.ID+"/master.m3u8" {
			t.Errorf("SourceURL = %q", got.SourceURL)
		}
	})

	t.Run("FailKeepsSourceEmpty", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		asset := processingAsset()
		if err := store.Create(ctx, asset, nil); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		if err := store.Fail(ctx, asset.ID); err != nil {
			t.Fatalf("Fail() error = %v", err)
		}
		if err := store.Complete(ctx, asset.ID, "/x"); !errors.Is(err, video.ErrAlreadyTerminal) {
			t.Errorf("Complete() after Fail error = %v, want ErrAlreadyTerminal", err)
		}
		got, err := store.Get(ctx, asset.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if got.Status != video.StatusFailed || got.SourceURL != "" {
			t.Errorf("got status=%q source=%q, want failed and empty", got.Status, got.SourceURL)
		}
	})

	t.Run("FinishUnknown", func(t *testing.T) {
		store := newStore(t)
		if err := store.Complete(context.Background(), uuid.NewString(), "/x"); !errors.Is(err, video.ErrNotFound) {
			t.Errorf("Complete() error = %v, want ErrNotFound", err)
		}
		if err := store.Fail(context.Background(), uuid.NewString()); !errors.Is(err, video.ErrNotFound) {
			t.Errorf("Fail() error = %v, want ErrNotFound", err)
		}
	})

	t.Run("CreateExternalCompleted", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()
		asset := processingAsset()
		asset.Status = video.StatusCompleted
		asset.SourceURL = "https://cdn.example.com/bbb/master.m3u8"
		if err := store.Create(ctx, asset, []string{"demo"}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
		got, err := store.Get(ctx, asset.ID)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !got.External() {
			t.Errorf("External() = false for %q", got.SourceURL)
		}
	})
}

func processingAsset() video.Asset {
	return video.Asset{
		ID:          uuid.NewString(),
		UploaderID:  "user-1",
		Title:       "Big Buck Bunny",
		Description: "open movie",
		Status:      video.StatusProcessing,
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}
}
