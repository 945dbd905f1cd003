// Package stream resolves HLS asset requests to local files or to the
// external location of an imported video.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/your-org/streamforge/internal/assets"
	"github.com/your-org/streamforge/internal/video"
)

var tracer = otel.Tracer("github.com/your-org/streamforge/internal/stream")

// ErrForbidden is returned when a requested file resolves outside its asset
// directory.
var ErrForbidden = errors.New("path escapes asset directory")

const (
	ContentTypePlaylist = "application/vnd.apple.mpegurl"
	ContentTypeSegment  = "video/MP2T"
)

var contentTypes = map[string]string{
	".m3u8": ContentTypePlaylist,
	".ts":   ContentTypeSegment,
}

// Resolution is either a redirect or a local file to serve.
type Resolution struct {
	RedirectURL string
	Path        string
	ContentType string
}

// Redirect reports whether the request should be sent elsewhere.
func (r Resolution) Redirect() bool {
	return r.RedirectURL != ""
}

// Server maps (asset id, file name) pairs to stream responses.
type Server struct {
	store  video.Store
	layout assets.Layout
	logger *zap.Logger
}

// NewServer constructs a Server for assets laid out under layout.
func NewServer(store video.Store, layout assets.Layout, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, layout: layout, logger: logger}
}

// Resolve returns video.ErrNotFound for unknown assets and files, and
// ErrForbidden for names that leave the asset directory. Assets recorded with
// an external source redirect their master manifest without touching disk.
func (s *Server) Resolve(ctx context.Context, id, filename string) (Resolution, error) {
	ctx, span := tracer.Start(ctx, "stream.Resolve")
	defer span.End()
	span.SetAttributes(attribute.String("video.id", id), attribute.String("stream.file", filename))

	if filename == assets.MasterAlias {
		filename = assets.MasterManifest
	}
	if filename == "" || strings.ContainsRune(filename, 0) {
		return Resolution{}, video.ErrNotFound
	}

	asset, err := s.store.Get(ctx, id)
	if err != nil {
		return Resolution{}, err
	}

	// An external master is redirected whether or not a local copy exists,
	// which also covers records that predate any local encoding.
	if asset.External() && filename == assets.MasterManifest {
		return Resolution{RedirectURL: asset.SourceURL}, nil
	}

	path, err := s.localPath(asset.ID, filename)
	if err != nil {
		return Resolution{}, err
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Resolution{}, video.ErrNotFound
	case err != nil:
		return Resolution{}, fmt.Errorf("stat %s: %w", filename, err)
	case !info.Mode().IsRegular():
		return Resolution{}, video.ErrNotFound
	}

	contentType, ok := contentTypes[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Resolution{}, video.ErrNotFound
	}
	return Resolution{Path: path, ContentType: contentType}, nil
}

// localPath joins filename to the asset directory and rejects any result
// that is not strictly inside it, before and after resolving symlinks.
func (s *Server) localPath(id, filename string) (string, error) {
	base, err := filepath.Abs(s.layout.Dir(id))
	if err != nil {
		return "", fmt.Errorf("resolve asset dir: %w", err)
	}
	candidate := filepath.Join(base, filepath.FromSlash(filename))
	if !within(base, candidate) {
		return "", ErrForbidden
	}

	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		// Missing files cannot be links; the caller reports not found.
		return candidate, nil
	}
	realBase, err := filepath.EvalSymlinks(base)
	if err != nil {
		realBase = base
	}
	if !within(realBase, resolved) {
		return "", ErrForbidden
	}
	return resolved, nil
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil || rel == "." || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
