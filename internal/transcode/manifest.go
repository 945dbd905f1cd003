package transcode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/your-org/streamforge/internal/assets"
)

// BuildMasterManifest renders the master playlist: the header and version
// tags, then one EXT-X-STREAM-INF line and playlist name per rendition in
// ladder order. Lines are joined with "\n" and there is no trailing newline.
func BuildMasterManifest(ladder []Rendition) []byte {
	lines := make([]string, 0, 2+2*len(ladder))
	lines = append(lines, "#EXTM3U", "#EXT-X-VERSION:3")
	for _, r := range ladder {
		lines = append(lines,
			fmt.Sprintf("#EXT-X-STREAM-INF:BANDWIDTH=%d,RESOLUTION=%s", r.Bandwidth, r.Resolution()),
			r.PlaylistName(),
		)
	}
	return []byte(strings.Join(lines, "\n"))
}

// WriteMasterManifest writes the master playlist into dir via a temporary
// file and rename, so a reader never sees a partially written manifest.
func WriteMasterManifest(dir string, ladder []Rendition) (string, error) {
	target := filepath.Join(dir, assets.MasterManifest)
	tmp, err := os.CreateTemp(dir, ".master-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp manifest: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(BuildMasterManifest(ladder)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("chmod manifest: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("rename manifest: %w", err)
	}
	return target, nil
}
