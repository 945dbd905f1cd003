// Package memory keeps video assets in process memory. It backs tests and
// single-process development runs.
package memory

import (
	"context"
	"sync"

	"github.com/your-org/streamforge/internal/video"
)

// Store is an in-memory video.Store.
type Store struct {
	mu     sync.RWMutex
	assets map[string]video.Asset
}

// New returns an empty Store.
func New() *Store {
	return &Store{assets: make(map[string]video.Asset)}
}

func (s *Store) Create(ctx context.Context, asset video.Asset, tags []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assets[asset.ID]; ok {
		return video.ErrDuplicate
	}
	asset.Tags = video.NormalizeTags(tags)
	s.assets[asset.ID] = asset
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (video.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	asset, ok := s.assets[id]
	if !ok {
		return video.Asset{}, video.ErrNotFound
	}
	asset.Tags = append([]string(nil), asset.Tags...)
	return asset, nil
}

func (s *Store) Complete(ctx context.Context, id, sourceURL string) error {
	return s.finish(id, video.StatusCompleted, sourceURL)
}

func (s *Store) Fail(ctx context.Context, id string) error {
	return s.finish(id, video.StatusFailed, "")
}

func (s *Store) finish(id string, status video.Status, sourceURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	asset, ok := s.assets[id]
	if !ok {
		return video.ErrNotFound
	}
	if asset.Status != video.StatusProcessing {
		return video.ErrAlreadyTerminal
	}
	asset.Status = status
	asset.SourceURL = sourceURL
	s.assets[id] = asset
	return nil
}

func (s *Store) Close() error {
	return nil
}

// Len reports how many assets are stored.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.assets)
}

// List returns every stored asset in no particular order.
func (s *Store) List() []video.Asset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]video.Asset, 0, len(s.assets))
	for _, a := range s.assets {
		a.Tags = append([]string(nil), a.Tags...)
		out = append(out, a)
	}
	return out
}
