package objectstore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
)

type memClient struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newMemClient() *memClient {
	return &memClient{objects: map[string][]byte{}, types: map[string]string{}}
}

func (c *memClient) Put(ctx context.Context, key string, reader io.Reader, size int64, opts PutOptions) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects[key] = data
	c.types[key] = opts.ContentType
	return nil
}

func (c *memClient) Close() error { return nil }

func TestMirrorDirUploadsFiles(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"master.m3u8": "#EXTM3U",
		"720p.m3u8":   "#EXTM3U\n#EXTINF",
		"720p_000.ts": "segment",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o755); err != nil {
		t.Fatal(err)
	}

	client := newMemClient()
	if err := NewMirror(client).MirrorDir(context.Background(), "vid-1", dir); err != nil {
		t.Fatalf("MirrorDir() error = %v", err)
	}

	var keys []string
	for k := range client.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	want := []string{"vid-1/720p.m3u8", "vid-1/720p_000.ts", "vid-1/master.m3u8"}
	if len(keys) != len(want) {
		t.Fatalf("keys = %v, want %v", keys, want)
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("keys[%d] = %q, want %q", i, keys[i], want[i])
		}
	}
	if client.types["vid-1/720p_000.ts"] != "video/MP2T" {
		t.Errorf("segment content type = %q", client.types["vid-1/720p_000.ts"])
	}
	if string(client.objects["vid-1/master.m3u8"]) != "#EXTM3U" {
		t.Errorf("master body = %q", client.objects["vid-1/master.m3u8"])
	}
}

func TestMirrorDirMissing(t *testing.T) {
	err := NewMirror(newMemClient()).MirrorDir(context.Background(), "x", filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("expected error for missing directory")
	}
}

func TestConfigEnabled(t *testing.T) {
	tests := map[string]bool{"": false, "none": false, "NONE": false, "minio": true, "s3": true}
	for provider, want := range tests {
		if got := (Config{Provider: provider}).Enabled(); got != want {
			t.Errorf("Enabled(%q) = %v, want %v", provider, got, want)
		}
	}
}

func TestNewUnsupportedProvider(t *testing.T) {
	if _, err := New(Config{Provider: "gcs"}); err == nil {
		t.Fatal("expected error for unsupported provider")
	}
}
