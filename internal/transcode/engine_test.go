package transcode

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestFFmpegArgs(t *testing.T) {
	req := EncodeRequest{
		Input:          "/tmp/in.mp4",
		OutputDir:      "/srv/videos/abc",
		Rendition:      DefaultLadder()[1],
		SegmentSeconds: SegmentSeconds,
	}

	want := []string{
		"-y",
		"-i", "/tmp/in.mp4",
		"-c:v", "libx264",
		"-c:a", "aac",
		"-s", "1280x720",
		"-b:v", "2500k",
		"-b:a", "128k",
		"-profile:v", "main",
		"-level", "4.0",
		"-start_number", "0",
		"-hls_time", "10",
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join("/srv/videos/abc", "720p_%03d.ts"),
		"-f", "hls",
		filepath.Join("/srv/videos/abc", "720p.m3u8"),
	}
	if got := FFmpegArgs(req); !reflect.DeepEqual(got, want) {
		t.Errorf("FFmpegArgs() =\n%v\nwant\n%v", got, want)
	}
}

func TestFFmpegArgsDefaultsSegmentDuration(t *testing.T) {
	args := FFmpegArgs(EncodeRequest{Rendition: DefaultLadder()[0]})
	for i, a := range args {
		if a == "-hls_time" && args[i+1] != "10" {
			t.Errorf("-hls_time = %q, want 10", args[i+1])
		}
	}
}

// fakeFFmpeg writes a shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

const fakeEncoder = `
seg=""
prev=""
out=""
for a in "$@"; do
	if [ "$prev" = "-hls_segment_filename" ]; then seg="$a"; fi
	prev="$a"
	out="$a"
done
printf '#EXTM3U\n#EXT-X-ENDLIST\n' > "$out"
: > "$(printf "$seg" 0)"
`

func TestFFmpegEncodeSuccess(t *testing.T) {
	bin := fakeFFmpeg(t, fakeEncoder)
	dir := t.TempDir()
	engine := NewFFmpeg(FFmpegConfig{Binary: bin})

	err := engine.Encode(context.Background(), EncodeRequest{
		Input:     "in.mp4",
		OutputDir: dir,
		Rendition: DefaultLadder()[4],
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	for _, name := range []string{"144p.m3u8", "144p_000.ts"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}
}

func TestFFmpegEncodeFailureIncludesStderr(t *testing.T) {
	bin := fakeFFmpeg(t, "echo 'noise' >&2\necho 'Invalid data found when processing input' >&2\nexit 1\n")
	engine := NewFFmpeg(FFmpegConfig{Binary: bin})

	err := engine.Encode(context.Background(), EncodeRequest{
		Input:     "in.mp4",
		OutputDir: t.TempDir(),
		Rendition: DefaultLadder()[0],
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Errorf("error %q does not carry the stderr tail", err)
	}
	if !strings.Contains(err.Error(), "1080p") {
		t.Errorf("error %q does not name the rendition", err)
	}
}

func TestFFmpegEncodeTimeout(t *testing.T) {
	bin := fakeFFmpeg(t, "exec sleep 5\n")
	engine := NewFFmpeg(FFmpegConfig{Binary: bin, Timeout: 100 * time.Millisecond})

	start := time.Now()
	err := engine.Encode(context.Background(), EncodeRequest{
		Input:     "in.mp4",
		OutputDir: t.TempDir(),
		Rendition: DefaultLadder()[0],
	})
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timed out") {
		t.Errorf("error = %v, want timeout", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Errorf("Encode() took %s, timeout not enforced", time.Since(start))
	}
}

func TestFFmpegMissingBinary(t *testing.T) {
	engine := NewFFmpeg(FFmpegConfig{Binary: filepath.Join(t.TempDir(), "no-such-ffmpeg")})
	if err := engine.Encode(context.Background(), EncodeRequest{Rendition: DefaultLadder()[0]}); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

func TestTailBufferKeepsLastBytes(t *testing.T) {
	b := &tailBuffer{limit: 5}
	b.Write([]byte("abc"))
	b.Write([]byte("defgh"))
	if got := b.String(); got != "defgh" {
		t.Errorf("String() = %q, want defgh", got)
	}
}
