package ingestion

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/your-org/streamforge/internal/assets"
	"github.com/your-org/streamforge/internal/events"
	"github.com/your-org/streamforge/internal/transcode"
	"github.com/your-org/streamforge/internal/video"
	"github.com/your-org/streamforge/pkg/metrics"
)

var tracer = otel.Tracer("github.com/your-org/streamforge/internal/ingestion")

// DefaultMaxUploadBytes is the largest accepted upload (500 MiB).
const DefaultMaxUploadBytes int64 = 500 << 20

const acceptedMessage = "Video uploaded successfully. Transcoding in progress..."

// notifyTimeout bounds a detached lifecycle publish.
const notifyTimeout = 30 * time.Second

// allowedTypes maps each accepted container extension to the media types a
// client may declare for it.
var allowedTypes = map[string][]string{
	".mp4":  {"video/mp4"},
	".mov":  {"video/quicktime"},
	".avi":  {"video/x-msvideo", "video/avi", "video/msvideo"},
	".mkv":  {"video/x-matroska"},
	".webm": {"video/webm"},
}

// ValidationError reports an upload rejected before any state was created.
type ValidationError struct {
	Field   string
	Message string
	// TooLarge marks size limit violations.
	TooLarge bool
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Dispatcher schedules a transcode job without waiting for it.
type Dispatcher interface {
	Dispatch(ctx context.Context, job transcode.Job) error
}

// Service accepts uploads, records them and hands them to the transcoder.
type Service struct {
	store      video.Store
	dispatcher Dispatcher
	layout     assets.Layout
	events     events.Publisher
	logger     *zap.Logger
	tempDir    string
	maxSize    int64
}

type Params struct {
	Store      video.Store
	Dispatcher Dispatcher
	Layout     assets.Layout
	Events     events.Publisher
	Logger     *zap.Logger
	// TempDir receives the uploaded bytes until the transcode succeeds.
	TempDir string
	// MaxSizeBytes defaults to DefaultMaxUploadBytes.
	MaxSizeBytes int64
}

// UploadRequest describes one submitted video file.
type UploadRequest struct {
	UploaderID  string
	Title       string
	Description string
	Tags        []string
	Filename    string
	ContentType string
	// Size is the declared size; zero when unknown.
	Size int64
}

type UploadResult struct {
	ID       string
	Status   video.Status
	VideoURL string
	Message  string
}

// ExternalImport registers a video hosted elsewhere.
type ExternalImport struct {
	UploaderID  string
	Title       string
	Description string
	URL         string
	Tags        []string
}

// NewService constructs an ingestion Service.
func NewService(p Params) *Service {
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pub := p.Events
	if pub == nil {
		pub = events.Nop{}
	}
	maxSize := p.MaxSizeBytes
	if maxSize <= 0 {
		maxSize = DefaultMaxUploadBytes
	}
	tempDir := p.TempDir
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &Service{
		store:      p.Store,
		dispatcher: p.Dispatcher,
		layout:     p.Layout,
		events:     pub,
		logger:     logger,
		tempDir:    tempDir,
		maxSize:    maxSize,
	}
}

// MaxSizeBytes is the upload limit the service enforces.
func (s *Service) MaxSizeBytes() int64 {
	return s.maxSize
}

// Validate checks an upload against the allow-list and size limit.
func Validate(req UploadRequest, maxSize int64) error {
	if strings.TrimSpace(req.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	ext := strings.ToLower(filepath.Ext(req.Filename))
	accepted, ok := allowedTypes[ext]
	if !ok {
		return &ValidationError{Field: "video", Message: fmt.Sprintf("file extension %q is not allowed", ext)}
	}
	mediaType, _, err := mime.ParseMediaType(req.ContentType)
	if err != nil {
		return &ValidationError{Field: "video", Message: "declared media type is missing or malformed"}
	}
	matched := false
	for _, t := range accepted {
		if mediaType == t {
			matched = true
			break
		}
	}
	if !matched {
		return &ValidationError{Field: "video", Message: fmt.Sprintf("media type %q does not match extension %q", mediaType, ext)}
	}
	if req.Size < 0 {
		return &ValidationError{Field: "video", Message: "invalid file size"}
	}
	if req.Size > maxSize {
		return &ValidationError{Field: "video", Message: fmt.Sprintf("file exceeds %d bytes", maxSize), TooLarge: true}
	}
	return nil
}

// ProcessUpload validates the request, stores a temporary copy of the file,
// creates the video record and schedules its transcode. It returns as soon as
// the job is scheduled.
func (s *Service) ProcessUpload(ctx context.Context, reader io.Reader, req UploadRequest) (*UploadResult, error) {
	ctx, span := tracer.Start(ctx, "ingestion.ProcessUpload")
	defer span.End()

	result, err := s.processUpload(ctx, reader, req)
	var verr *ValidationError
	switch {
	case errors.As(err, &verr):
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		span.SetStatus(codes.Error, "validation")
	case err != nil:
		metrics.UploadsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
	default:
		metrics.UploadsTotal.WithLabelValues("accepted").Inc()
		span.SetAttributes(attribute.String("video.id", result.ID))
	}
	return result, err
}

func (s *Service) processUpload(ctx context.Context, reader io.Reader, req UploadRequest) (*UploadResult, error) {
	if err := Validate(req, s.maxSize); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := s.logger.With(zap.String("asset_id", id))
	tempPath := filepath.Join(s.tempDir, "video-"+id+strings.ToLower(filepath.Ext(req.Filename)))

	written, err := s.writeTemp(tempPath, reader)
	if err != nil {
		return nil, err
	}

	asset := video.Asset{
		ID:          id,
		UploaderID:  req.UploaderID,
		Title:       strings.TrimSpace(req.Title),
		Description: req.Description,
		Status:      video.StatusProcessing,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.Create(ctx, asset, video.NormalizeTags(req.Tags)); err != nil {
		removeFile(logger, tempPath)
		return nil, fmt.Errorf("create video: %w", err)
	}
	metrics.UploadBytes.Add(float64(written))

	job := transcode.Job{AssetID: id, InputPath: tempPath, OutputDir: s.layout.Dir(id)}
	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		// The row already exists, so it has to reach a terminal status.
		if ferr := s.store.Fail(context.WithoutCancel(ctx), id); ferr != nil {
			logger.Error("mark unscheduled upload failed", zap.Error(ferr))
		}
		removeFile(logger, tempPath)
		return nil, fmt.Errorf("schedule transcode: %w", err)
	}

	s.notifyDetached(ctx, logger, events.Event{
		Type:       events.TypeUploaded,
		VideoID:    id,
		UploaderID: asset.UploaderID,
		Title:      asset.Title,
		Status:     string(video.StatusProcessing),
		Metadata: map[string]string{
			"original_filename": filepath.Base(req.Filename),
			"content_type":      req.ContentType,
		},
		OccurredAt: asset.CreatedAt,
	})

	logger.Info("upload accepted",
		zap.String("title", asset.Title),
		zap.Int64("size_bytes", written),
		zap.String("input", tempPath),
	)
	return &UploadResult{
		ID:      id,
		Status:  video.StatusProcessing,
		Message: acceptedMessage,
	}, nil
}

// writeTemp copies at most maxSize bytes of r to path. Longer streams are
// rejected even when the declared size was within the limit.
func (s *Service) writeTemp(path string, r io.Reader) (int64, error) {
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return 0, fmt.Errorf("create temp dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	n, err := io.Copy(f, io.LimitReader(r, s.maxSize+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		os.Remove(path)
		return 0, fmt.Errorf("write temp file: %w", err)
	case n > s.maxSize:
		os.Remove(path)
		return 0, &ValidationError{Field: "video", Message: fmt.Sprintf("file exceeds %d bytes", s.maxSize), TooLarge: true}
	case n == 0:
		os.Remove(path)
		return 0, &ValidationError{Field: "video", Message: "file is empty"}
	}
	return n, nil
}

// ImportExternal records a completed video whose stream is hosted at an
// external URL. No transcode is scheduled.
func (s *Service) ImportExternal(ctx context.Context, in ExternalImport) (*UploadResult, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, &ValidationError{Field: "title", Message: "title is required"}
	}
	if !video.IsExternalURL(in.URL) {
		return nil, &ValidationError{Field: "url", Message: "url must be an absolute http(s) URL"}
	}

	asset := video.Asset{
		ID:          uuid.NewString(),
		UploaderID:  in.UploaderID,
		Title:       strings.TrimSpace(in.Title),
		Description: in.Description,
		Status:      video.StatusCompleted,
		SourceURL:   in.URL,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.store.Create(ctx, asset, video.NormalizeTags(in.Tags)); err != nil {
		return nil, fmt.Errorf("create video: %w", err)
	}
	s.logger.Info("external video imported", zap.String("asset_id", asset.ID), zap.String("url", in.URL))

	return &UploadResult{
		ID:       asset.ID,
		Status:   video.StatusCompleted,
		VideoURL: asset.SourceURL,
	}, nil
}

// notifyDetached publishes ev off the request path. The publish keeps the
// request's trace values but not its cancellation.
func (s *Service) notifyDetached(ctx context.Context, logger *zap.Logger, ev events.Event) {
	ctx = context.WithoutCancel(ctx)
	go func() {
		ctx, cancel := context.WithTimeout(ctx, notifyTimeout)
		defer cancel()
		events.Notify(ctx, s.events, logger, ev)
	}()
}

func removeFile(logger *zap.Logger, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove temp file", zap.String("path", path), zap.Error(err))
	}
}
