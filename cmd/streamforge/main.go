package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/streamforge/internal/api"
	"github.com/your-org/streamforge/internal/assets"
	"github.com/your-org/streamforge/internal/ingestion"
	"github.com/your-org/streamforge/internal/jobs"
	"github.com/your-org/streamforge/internal/stream"
	"github.com/your-org/streamforge/internal/tracker"
	"github.com/your-org/streamforge/internal/transcode"
	"github.com/your-org/streamforge/pkg/config"
	"github.com/your-org/streamforge/pkg/logger"
	"github.com/your-org/streamforge/pkg/metrics"
	"github.com/your-org/streamforge/pkg/tracing"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logr, err := logger.New(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("streamforge stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	traceShutdown, err := tracing.Init(ctx, tracing.Config{
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
		SampleRatio:    cfg.Tracing.SampleRatio,
		Attributes:     tracing.ParseResourceAttributes(cfg.Tracing.ResourceAttr),
		ServiceName:    cfg.App.Name,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
	})
	if err != nil {
		return err
	}
	defer traceShutdown(context.Background()) //nolint:errcheck

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	publisher, closePublisher := newPublisher(cfg, logr)
	defer closePublisher()

	mirror, err := newMirror(cfg)
	if err != nil {
		return err
	}

	locker, closeLocker, err := newLocker(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLocker()

	layout := assets.Layout{Root: cfg.Media.AssetRoot, BasePath: cfg.Media.StreamBasePath}

	orchestrator := transcode.NewOrchestrator(transcode.Params{
		Store: store,
		Engine: transcode.NewFFmpeg(transcode.FFmpegConfig{
			Binary:  cfg.Transcode.FFmpegPath,
			Timeout: cfg.Transcode.EncoderTimeout,
			Logger:  logr.Named("ffmpeg"),
		}),
		Layout:                layout,
		Events:                publisher,
		Mirror:                mirror,
		Logger:                logr.Named("transcode"),
		PurgePartialOnFailure: cfg.Transcode.PurgePartialOnFailure,
		RemoveInputOnFailure:  cfg.Transcode.RemoveInputOnFailure,
	})

	dispatcher := jobs.NewDispatcher(jobs.Params{
		Runner:        orchestrator,
		Locker:        locker,
		MaxConcurrent: cfg.Worker.MaxConcurrent,
		Logger:        logr.Named("jobs"),
	})

	service := ingestion.NewService(ingestion.Params{
		Store:        store,
		Dispatcher:   dispatcher,
		Layout:       layout,
		Events:       publisher,
		Logger:       logr.Named("ingestion"),
		TempDir:      cfg.Upload.TempDir,
		MaxSizeBytes: cfg.Upload.MaxSizeBytes,
	})

	handler := api.NewRouter(api.Params{
		Handlers: []api.Routes{
			ingestion.NewHTTPHandler(service, ingestion.HeaderIdentity{Header: cfg.HTTP.IdentityHeader}, logr, cfg.Upload.MultipartMemBytes),
			tracker.NewHTTPHandler(tracker.New(store), logr),
			stream.NewHTTPHandler(stream.NewServer(store, layout, logr.Named("stream")), layout.BasePath, logr),
		},
		RequestTimeout: cfg.HTTP.RequestTimeout,
	})

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	var metricsServer *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
		go func() {
			logr.Info("metrics server starting", zap.String("addr", cfg.Metrics.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logr.Error("metrics server failed", zap.Error(err))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("streamforge starting",
			zap.String("addr", cfg.HTTP.Addr),
			zap.String("database", cfg.Database.Driver),
			zap.String("asset_root", cfg.Media.AssetRoot),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("http server shutdown failed", zap.Error(err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			logr.Error("metrics server shutdown failed", zap.Error(err))
		}
	}

	// Running transcodes are left to finish; they are never cancelled.
	workerCtx, cancelWorkers := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancelWorkers()
	if err := dispatcher.Shutdown(workerCtx); err != nil {
		logr.Warn("transcode jobs still running at shutdown", zap.Error(err))
	}
	logr.Info("streamforge stopped")
	return nil
}
