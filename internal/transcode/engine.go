package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EncodeRequest describes one rendition invocation of the encoding engine.
type EncodeRequest struct {
	Input          string
	OutputDir      string
	Rendition      Rendition
	SegmentSeconds int
}

// Engine encodes one rendition and blocks until the encoder reports success
// or failure.
type Engine interface {
	Encode(ctx context.Context, req EncodeRequest) error
}

// FFmpegConfig configures the ffmpeg engine.
type FFmpegConfig struct {
	// Binary is the ffmpeg executable, "ffmpeg" when empty.
	Binary string
	// Timeout bounds a single rendition invocation; zero means no limit.
	Timeout time.Duration
	Logger  *zap.Logger
}

// FFmpeg runs the ffmpeg CLI once per rendition.
type FFmpeg struct {
	binary  string
	timeout time.Duration
	logger  *zap.Logger
}

const stderrTailBytes = 4 * 1024

func NewFFmpeg(cfg FFmpegConfig) *FFmpeg {
	binary := cfg.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FFmpeg{binary: binary, timeout: cfg.Timeout, logger: logger}
}

// Encode runs ffmpeg for req.Rendition and waits for it to exit.
func (f *FFmpeg) Encode(ctx context.Context, req EncodeRequest) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	args := FFmpegArgs(req)
	cmd := exec.CommandContext(ctx, f.binary, args...)
	cmd.WaitDelay = 10 * time.Second
	stderr := &tailBuffer{limit: stderrTailBytes}
	cmd.Stdout = io.Discard
	cmd.Stderr = stderr

	f.logger.Debug("ffmpeg starting",
		zap.String("rendition", req.Rendition.Name),
		zap.Strings("args", args),
	)
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("ffmpeg %s: timed out after %s: %w", req.Rendition.Name, f.timeout, err)
	}
	tail := strings.TrimSpace(stderr.String())
	f.logger.Warn("ffmpeg exited with error",
		zap.String("rendition", req.Rendition.Name),
		zap.String("stderr", tail),
		zap.Error(err),
	)
	if tail == "" {
		return fmt.Errorf("ffmpeg %s: %w", req.Rendition.Name, err)
	}
	return fmt.Errorf("ffmpeg %s: %w: %s", req.Rendition.Name, err, lastLine(tail))
}

// FFmpegArgs builds the argument list for one rendition: H.264 main profile
// with AAC audio, cut into SegmentSeconds MPEG-TS segments numbered from 0 and
// a VOD playlist listing all of them.
func FFmpegArgs(req EncodeRequest) []string {
	segment := req.SegmentSeconds
	if segment <= 0 {
		segment = SegmentSeconds
	}
	r := req.Rendition
	return []string{
		"-y",
		"-i", req.Input,
		"-c:v", "libx264",
		"-c:a", "aac",
		"-s", r.Resolution(),
		"-b:v", r.VideoBitrate,
		"-b:a", r.AudioBitrate,
		"-profile:v", "main",
		"-level", "4.0",
		"-start_number", "0",
		"-hls_time", strconv.Itoa(segment),
		"-hls_list_size", "0",
		"-hls_segment_filename", filepath.Join(req.OutputDir, r.SegmentPattern()),
		"-f", "hls",
		filepath.Join(req.OutputDir, r.PlaylistName()),
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func lastLine(s string) string {
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}
