package video

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// Status is the processing state of a VideoAsset.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition may happen from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var (
	// ErrNotFound is returned when an asset id does not exist.
	ErrNotFound = errors.New("video not found")
	// ErrAlreadyTerminal is returned when a terminal write targets an asset
	// that already left the processing state.
	ErrAlreadyTerminal = errors.New("video already in terminal state")
	// ErrDuplicate is returned when Create targets an id already stored.
	ErrDuplicate = errors.New("video already exists")
)

// Asset is one uploaded video and the outcome of its processing.
type Asset struct {
	ID          string
	UploaderID  string
	Title       string
	Description string
	Status      Status
	SourceURL   string
	Views       int64
	Tags        []string
	CreatedAt   time.Time
}

// External reports whether the asset is served from an externally hosted URL.
func (a Asset) External() bool {
	return IsExternalURL(a.SourceURL)
}

// Store is the persistent record of video assets.
type Store interface {
	// Create inserts the asset together with its tag links.
	Create(ctx context.Context, asset Asset, tags []string) error
	Get(ctx context.Context, id string) (Asset, error)
	// Complete moves a processing asset to completed and records its source.
	Complete(ctx context.Context, id, sourceURL string) error
	// Fail moves a processing asset to failed.
	Fail(ctx context.Context, id string) error
	Close() error
}

// IsExternalURL reports whether s is an absolute http(s) URL.
func IsExternalURL(s string) bool {
	if s == "" {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return (scheme == "http" || scheme == "https") && u.Host != ""
}

// NormalizeTags trims, drops empty names and removes duplicates while
// keeping the first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
