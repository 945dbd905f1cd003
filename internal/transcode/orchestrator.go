package transcode

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/your-org/streamforge/internal/assets"
	"github.com/your-org/streamforge/internal/events"
	"github.com/your-org/streamforge/internal/video"
	"github.com/your-org/streamforge/pkg/metrics"
)

var tracer = otel.Tracer("github.com/your-org/streamforge/internal/transcode")

// Job binds one orchestrator run to a video asset.
type Job struct {
	AssetID   string
	InputPath string
	OutputDir string
}

// Mirror copies a finished asset directory to secondary storage.
type Mirror interface {
	MirrorDir(ctx context.Context, prefix, dir string) error
}

// Params wires an Orchestrator.
type Params struct {
	Store  video.Store
	Engine Engine
	Layout assets.Layout
	Events events.Publisher
	// Mirror is optional.
	Mirror Mirror
	Logger *zap.Logger
	// Ladder defaults to DefaultLadder().
	Ladder []Rendition
	// PurgePartialOnFailure removes the asset directory when a run fails.
	PurgePartialOnFailure bool
	// RemoveInputOnFailure deletes the uploaded source when a run fails.
	RemoveInputOnFailure bool
}

// Orchestrator drives the rendition ladder through the encoding engine and
// records the outcome on the video asset.
type Orchestrator struct {
	store        video.Store
	engine       Engine
	layout       assets.Layout
	events       events.Publisher
	mirror       Mirror
	logger       *zap.Logger
	ladder       []Rendition
	purgePartial bool
	removeInput  bool
}

// NewOrchestrator constructs an Orchestrator. Ladder defaults to
// DefaultLadder and a nil Events publisher discards notifications.
func NewOrchestrator(p Params) *Orchestrator {
	ladder := p.Ladder
	if len(ladder) == 0 {
		ladder = DefaultLadder()
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pub := p.Events
	if pub == nil {
		pub = events.Nop{}
	}
	return &Orchestrator{
		store:        p.Store,
		engine:       p.Engine,
		layout:       p.Layout,
		events:       pub,
		mirror:       p.Mirror,
		logger:       logger,
		ladder:       append([]Rendition(nil), ladder...),
		purgePartial: p.PurgePartialOnFailure,
		removeInput:  p.RemoveInputOnFailure,
	}
}

// Ladder returns a copy of the renditions the orchestrator encodes.
func (o *Orchestrator) Ladder() []Rendition {
	return append([]Rendition(nil), o.ladder...)
}

type phase int

const (
	phaseEncoding phase = iota
	phaseSucceeded
	phaseFailed
)

func (p phase) String() string {
	switch p {
	case phaseEncoding:
		return "encoding"
	case phaseSucceeded:
		return "succeeded"
	case phaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// state is the run position: while encoding, index is the ladder entry to
// encode next; index == len(ladder) means every rendition is done and the
// master manifest is due.
type state struct {
	phase phase
	index int
	err   error
}

// Run encodes every rendition in ladder order, stopping at the first
// failure, and then performs exactly one terminal write on the asset. The
// returned status is the one recorded; err carries the failure cause.
func (o *Orchestrator) Run(ctx context.Context, job Job) (status video.Status, err error) {
	ctx, span := tracer.Start(ctx, "transcode.Run")
	span.SetAttributes(attribute.String("video.id", job.AssetID))
	defer span.End()

	metrics.TranscodeJobsInFlight.Inc()
	defer metrics.TranscodeJobsInFlight.Dec()

	logger := o.logger.With(zap.String("asset_id", job.AssetID))
	started := time.Now()
	recorded := false

	defer func() {
		if r := recover(); r != nil {
			logger.Error("transcode panicked", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("transcode panic: %v", r)
			if !recorded {
				recorded = true
				status = o.fail(ctx, job, logger, err)
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	logger.Info("transcode starting",
		zap.String("input", job.InputPath),
		zap.String("output_dir", job.OutputDir),
		zap.Int("renditions", len(o.ladder)),
	)

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		err = fmt.Errorf("create asset dir: %w", err)
		recorded = true
		return o.fail(ctx, job, logger, err), err
	}

	st := state{phase: phaseEncoding}
	for st.phase == phaseEncoding {
		st = o.step(ctx, job, st, logger)
	}
	logger.Debug("ladder finished", zap.Stringer("phase", st.phase), zap.Int("index", st.index))

	recorded = true
	if st.phase == phaseFailed {
		return o.fail(ctx, job, logger, st.err), st.err
	}
	if err := o.succeed(ctx, job, logger); err != nil {
		return video.StatusFailed, err
	}
	logger.Info("transcode completed", zap.Duration("elapsed", time.Since(started)))
	return video.StatusCompleted, nil
}

// step performs one transition of the run state machine.
func (o *Orchestrator) step(ctx context.Context, job Job, st state, logger *zap.Logger) state {
	if st.index == len(o.ladder) {
		if _, err := WriteMasterManifest(job.OutputDir, o.ladder); err != nil {
			return state{phase: phaseFailed, index: st.index, err: fmt.Errorf("master manifest: %w", err)}
		}
		return state{phase: phaseSucceeded, index: st.index}
	}

	r := o.ladder[st.index]
	if err := o.encode(ctx, job, r, logger); err != nil {
		return state{phase: phaseFailed, index: st.index, err: fmt.Errorf("rendition %s: %w", r.Name, err)}
	}
	return state{phase: phaseEncoding, index: st.index + 1}
}

func (o *Orchestrator) encode(ctx context.Context, job Job, r Rendition, logger *zap.Logger) error {
	ctx, span := tracer.Start(ctx, "transcode.Rendition")
	span.SetAttributes(
		attribute.String("video.id", job.AssetID),
		attribute.String("rendition.name", r.Name),
		attribute.String("rendition.resolution", r.Resolution()),
	)
	defer span.End()

	logger.Info("encoding rendition", zap.String("rendition", r.Name))
	start := time.Now()
	err := o.engine.Encode(ctx, EncodeRequest{
		Input:          job.InputPath,
		OutputDir:      job.OutputDir,
		Rendition:      r,
		SegmentSeconds: SegmentSeconds,
	})
	elapsed := time.Since(start)

	if err != nil {
		metrics.RenditionDuration.WithLabelValues(r.Name, "failed").Observe(elapsed.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	metrics.RenditionDuration.WithLabelValues(r.Name, "completed").Observe(elapsed.Seconds())
	logger.Info("rendition completed", zap.String("rendition", r.Name), zap.Duration("elapsed", elapsed))
	return nil
}

func (o *Orchestrator) succeed(ctx context.Context, job Job, logger *zap.Logger) error {
	sourceURL := o.layout.MasterURL(job.AssetID)
	if err := o.store.Complete(ctx, job.AssetID, sourceURL); err != nil {
		err = fmt.Errorf("record completion: %w", err)
		if errors.Is(err, video.ErrAlreadyTerminal) {
			logger.Warn("asset already terminal, completion dropped", zap.Error(err))
			metrics.TranscodeJobsTotal.WithLabelValues("skipped").Inc()
			return err
		}
		// A master manifest only exists for completed assets.
		if rmErr := os.Remove(filepath.Join(job.OutputDir, assets.MasterManifest)); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			logger.Error("remove master manifest", zap.Error(rmErr))
		}
		o.fail(ctx, job, logger, err)
		return err
	}

	if err := os.Remove(job.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("remove temp input", zap.String("input", job.InputPath), zap.Error(err))
	}

	metrics.TranscodeJobsTotal.WithLabelValues("completed").Inc()
	events.Notify(ctx, o.events, logger, events.Event{
		Type:     events.TypeCompleted,
		VideoID:  job.AssetID,
		Status:   string(video.StatusCompleted),
		VideoURL: sourceURL,
	})

	if o.mirror != nil {
		if err := o.mirror.MirrorDir(ctx, job.AssetID, job.OutputDir); err != nil {
			logger.Warn("mirror asset dir", zap.Error(err))
		}
	}
	return nil
}

// fail records the failed status and applies the configured cleanup.
func (o *Orchestrator) fail(ctx context.Context, job Job, logger *zap.Logger, cause error) video.Status {
	logger.Error("transcode failed", zap.Error(cause))

	if err := o.store.Fail(ctx, job.AssetID); err != nil {
		if errors.Is(err, video.ErrAlreadyTerminal) {
			// Another run owns the directory and the outcome.
			logger.Warn("asset already terminal, failure dropped")
			metrics.TranscodeJobsTotal.WithLabelValues("skipped").Inc()
			return video.StatusFailed
		}
		logger.Error("record failure", zap.Error(err))
	}

	if o.purgePartial {
		if err := os.RemoveAll(job.OutputDir); err != nil {
			logger.Warn("purge asset dir", zap.Error(err))
		}
	}
	if o.removeInput {
		if err := os.Remove(job.InputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove temp input", zap.Error(err))
		}
	}

	metrics.TranscodeJobsTotal.WithLabelValues("failed").Inc()
	events.Notify(ctx, o.events, logger, events.Event{
		Type:    events.TypeFailed,
		VideoID: job.AssetID,
		Status:  string(video.StatusFailed),
		Reason:  cause.Error(),
	})
	return video.StatusFailed
}
