// Package assets maps video ids to their on-disk directory and public URLs.
package assets

import (
	"path"
	"path/filepath"
)

// MasterManifest is the file name of the master playlist in every asset
// directory.
const MasterManifest = "master.m3u8"

// MasterAlias is the extensionless name under which the stream endpoint
// publishes MasterManifest.
const MasterAlias = "master"

// Layout places asset directories under Root and addresses them through the
// stream endpoint mounted at BasePath.
type Layout struct {
	Root     string
	BasePath string
}

// Dir returns the asset directory for id.
func (l Layout) Dir(id string) string {
	return filepath.Join(l.Root, id)
}

// MasterURL is the public stream path of the master manifest for id. It uses
// MasterAlias; the file on disk stays MasterManifest.
func (l Layout) MasterURL(id string) string {
	return path.Join("/", l.BasePath, id, MasterAlias)
}
