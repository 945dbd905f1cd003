package transcode

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/streamforge/internal/assets"
	"github.com/your-org/streamforge/internal/events"
	"github.com/your-org/streamforge/internal/store/memory"
	"github.com/your-org/streamforge/internal/video"
)

// fakeEngine writes a playlist and one segment per rendition, failing on
// the rendition named in failOn.
type fakeEngine struct {
	mu     sync.Mutex
	failOn string
	panics bool
	calls  []string
}

func (f *fakeEngine) Encode(ctx context.Context, req EncodeRequest) error {
	f.mu.Lock()
	f.calls = append(f.calls, req.Rendition.Name)
	f.mu.Unlock()

	if req.SegmentSeconds != SegmentSeconds {
		return errors.New("unexpected segment duration")
	}
	if f.panics {
		panic("encoder exploded")
	}
	if req.Rendition.Name == f.failOn {
		// leave a partial segment behind like a crashed encoder would
		os.WriteFile(filepath.Join(req.OutputDir, req.Rendition.Name+"_000.ts"), []byte("partial"), 0o644)
		return errors.New("exit status 1")
	}
	if err := os.WriteFile(filepath.Join(req.OutputDir, req.Rendition.PlaylistName()), []byte("#EXTM3U\n"), 0o644); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(req.OutputDir, req.Rendition.Name+"_000.ts"), []byte("ts"), 0o644)
}

func (f *fakeEngine) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type recordingMirror struct {
	prefix string
	dir    string
	err    error
}

func (m *recordingMirror) MirrorDir(ctx context.Context, prefix, dir string) error {
	m.prefix, m.dir = prefix, dir
	return m.err
}

type fixture struct {
	store  *memory.Store
	engine *fakeEngine
	pub    *recordingPublisher
	job    Job
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	store := memory.New()
	id := uuid.NewString()
	if err := store.Create(context.Background(), video.Asset{ID: id, Title: "T", Status: video.StatusProcessing}, nil); err != nil {
		t.Fatal(err)
	}
	input := filepath.Join(root, "temp", "video-"+id+".mp4")
	if err := os.MkdirAll(filepath.Dir(input), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(input, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}
	return &fixture{
		store:  store,
		engine: &fakeEngine{},
		pub:    &recordingPublisher{},
		job:    Job{AssetID: id, InputPath: input, OutputDir: filepath.Join(root, "videos", id)},
	}
}

func (f *fixture) orchestrator(mutate func(*Params)) *Orchestrator {
	p := Params{
		Store:  f.store,
		Engine: f.engine,
		Layout: assets.Layout{Root: filepath.Dir(f.job.OutputDir), BasePath: "/assets"},
		Events: f.pub,
		Logger: zap.NewNop(),
	}
	if mutate != nil {
		mutate(&p)
	}
	return NewOrchestrator(p)
}

func TestRunSuccess(t *testing.T) {
	f := newFixture(t)
	mirror := &recordingMirror{}
	o := f.orchestrator(func(p *Params) { p.Mirror = mirror })

	status, err := o.Run(context.Background(), f.job)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if status != video.StatusCompleted {
		t.Errorf("status = %q, want completed", status)
	}

	wantCalls := []string{"1080p", "720p", "480p", "360p", "144p"}
	if got := f.engine.Calls(); strings.Join(got, ",") != strings.Join(wantCalls, ",") {
		t.Errorf("encode order = %v, want %v", got, wantCalls)
	}

	asset, err := f.store.Get(context.Background(), f.job.AssetID)
	if err != nil {
		t.Fatal(err)
	}
	if asset.Status != video.StatusCompleted {
		t.Errorf("stored status = %q", asset.Status)
	}
	if want := "/assets/" + f.job.AssetID + "/master"; asset.SourceURL != want {
		t.Errorf("SourceURL = %q, want %q", asset.SourceURL, want)
	}

	manifest, err := os.ReadFile(filepath.Join(f.job.OutputDir, assets.MasterManifest))
	if err != nil {
		t.Fatalf("master manifest missing: %v", err)
	}
	for _, line := range strings.Split(string(manifest), "\n") {
		if strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := os.Stat(filepath.Join(f.job.OutputDir, line)); err != nil {
			t.Errorf("manifest references %q which does not exist: %v", line, err)
		}
	}

	if _, err := os.Stat(f.job.InputPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp input should be removed on success, stat err = %v", err)
	}

	if len(f.pub.events) != 1 || f.pub.events[0].Type != events.TypeCompleted {
		t.Errorf("events = %+v, want one completed event", f.pub.events)
	}
	if mirror.prefix != f.job.AssetID || mirror.dir != f.job.OutputDir {
		t.Errorf("mirror called with %q %q", mirror.prefix, mirror.dir)
	}
}

func TestRunFailureAbortsLadder(t *testing.T) {
	f := newFixture(t)
	f.engine.failOn = "480p"
	o := f.orchestrator(nil)

	status, err := o.Run(context.Background(), f.job)
	if err == nil {
		t.Fatal("expected error")
	}
	if status != video.StatusFailed {
		t.Errorf("status = %q, want failed", status)
	}
	if !strings.Contains(err.Error(), "480p") {
		t.Errorf("error %q does not name the failed rendition", err)
	}

	if got := f.engine.Calls(); strings.Join(got, ",") != "1080p,720p,480p" {
		t.Errorf("encode calls = %v, later renditions must not run", got)
	}
	for _, name := range []string{"360p.m3u8", "144p.m3u8", "360p_000.ts", "144p_000.ts", assets.MasterManifest} {
		if _, err := os.Stat(filepath.Join(f.job.OutputDir, name)); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("%s should not exist, stat err = %v", name, err)
		}
	}
	// earlier renditions and partial output are kept by default
	for _, name := range []string{"1080p.m3u8", "720p.m3u8", "480p_000.ts"} {
		if _, err := os.Stat(filepath.Join(f.job.OutputDir, name)); err != nil {
			t.Errorf("%s should be kept: %v", name, err)
		}
	}
	if _, err := os.Stat(f.job.InputPath); err != nil {
		t.Errorf("temp input should be kept on failure: %v", err)
	}

	asset, _ := f.store.Get(context.Background(), f.job.AssetID)
	if asset.Status != video.StatusFailed || asset.SourceURL != "" {
		t.Errorf("stored asset = %+v, want failed with empty source", asset)
	}
	if len(f.pub.events) != 1 || f.pub.events[0].Type != events.TypeFailed || f.pub.events[0].Reason == "" {
		t.Errorf("events = %+v, want one failed event with reason", f.pub.events)
	}
}

func TestRunFailureCleanupOptions(t *testing.T) {
	f := newFixture(t)
	f.engine.failOn = "720p"
	o := f.orchestrator(func(p *Params) {
		p.PurgePartialOnFailure = true
		p.RemoveInputOnFailure = true
	})

	if _, err := o.Run(context.Background(), f.job); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(f.job.OutputDir); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("asset dir should be purged, stat err = %v", err)
	}
	if _, err := os.Stat(f.job.InputPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("temp input should be removed, stat err = %v", err)
	}
}

func TestRunTerminalStatusIsWrittenOnce(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(nil)

	if _, err := o.Run(context.Background(), f.job); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}

	// A stray second run for the same asset must not flip the status.
	f.engine.failOn = "1080p"
	if _, err := o.Run(context.Background(), Job{AssetID: f.job.AssetID, InputPath: f.job.InputPath, OutputDir: f.job.OutputDir}); err == nil {
		t.Fatal("expected error from second run")
	}

	asset, _ := f.store.Get(context.Background(), f.job.AssetID)
	if asset.Status != video.StatusCompleted {
		t.Errorf("status = %q, want completed to stick", asset.Status)
	}
}

type failingCompleteStore struct {
	*memory.Store
}

func (s failingCompleteStore) Complete(ctx context.Context, id, sourceURL string) error {
	return errors.New("database is locked")
}

func TestRunCompletionWriteFailureRemovesManifest(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(func(p *Params) { p.Store = failingCompleteStore{f.store} })

	status, err := o.Run(context.Background(), f.job)
	if err == nil || status != video.StatusFailed {
		t.Fatalf("Run() = %q, %v; want failed with error", status, err)
	}
	if _, err := os.Stat(filepath.Join(f.job.OutputDir, assets.MasterManifest)); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("master manifest should be removed, stat err = %v", err)
	}
	asset, _ := f.store.Get(context.Background(), f.job.AssetID)
	if asset.Status != video.StatusFailed {
		t.Errorf("status = %q, want failed", asset.Status)
	}
}

func TestRunRecoversPanic(t *testing.T) {
	f := newFixture(t)
	f.engine.panics = true
	o := f.orchestrator(nil)

	status, err := o.Run(context.Background(), f.job)
	if err == nil || !strings.Contains(err.Error(), "panic") {
		t.Fatalf("Run() error = %v, want panic error", err)
	}
	if status != video.StatusFailed {
		t.Errorf("status = %q, want failed", status)
	}
	asset, _ := f.store.Get(context.Background(), f.job.AssetID)
	if asset.Status != video.StatusFailed {
		t.Errorf("stored status = %q, want failed", asset.Status)
	}
}

func TestRunMirrorFailureKeepsCompleted(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(func(p *Params) { p.Mirror = &recordingMirror{err: errors.New("bucket missing")} })

	status, err := o.Run(context.Background(), f.job)
	if err != nil || status != video.StatusCompleted {
		t.Fatalf("Run() = %q, %v; want completed", status, err)
	}
}

func TestOrchestratorLadderCopy(t *testing.T) {
	o := NewOrchestrator(Params{})
	ladder := o.Ladder()
	ladder[0].Name = "changed"
	if o.Ladder()[0].Name != "1080p" {
		t.Error("Ladder() exposes internal slice")
	}
}

func TestRunDuplicateFailureKeepsCompletedAsset(t *testing.T) {
	f := newFixture(t)
	if _, err := f.orchestrator(nil).Run(context.Background(), f.job); err != nil {
		t.Fatal(err)
	}

	f.engine.failOn = "1080p"
	o := f.orchestrator(func(p *Params) { p.PurgePartialOnFailure = true })
	if _, err := o.Run(context.Background(), f.job); err == nil {
		t.Fatal("expected error")
	}
	if _, err := os.Stat(filepath.Join(f.job.OutputDir, assets.MasterManifest)); err != nil {
		t.Errorf("completed asset directory was purged: %v", err)
	}
}
