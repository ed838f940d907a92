package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/MimeLyc/timeline-renderer/internal/config"
	"github.com/MimeLyc/timeline-renderer/internal/fetch"
	"github.com/MimeLyc/timeline-renderer/internal/httpapi"
	"github.com/MimeLyc/timeline-renderer/internal/jobs"
	"github.com/MimeLyc/timeline-renderer/internal/media"
	"github.com/MimeLyc/timeline-renderer/internal/metrics"
	"github.com/MimeLyc/timeline-renderer/internal/persistence"
	"github.com/MimeLyc/timeline-renderer/internal/record"
	"github.com/MimeLyc/timeline-renderer/internal/render"
	"github.com/MimeLyc/timeline-renderer/internal/storage"
	"github.com/MimeLyc/timeline-renderer/internal/telemetry"
	"github.com/MimeLyc/timeline-renderer/pkg/log"
)

const shutdownTimeout = 10 * time.Second

type scheduler interface {
	Schedule(ctx context.Context) error
}

type cronRunner interface {
	Start()
	Stop() context.Context
}

type httpServer interface {
	ListenAndServe(addr string) error
	Shutdown(ctx context.Context) error
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		log.Warn("Failed to load .env: %v", err)
	}
	log.InitLogger(log.ParseLevel(os.Getenv("LOG_LEVEL")))

	cfg, err := config.NewFromEnv()
	if err != nil {
		log.Fatal("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal("%v", err)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	shutdownTracing, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRate:  cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	metrics.Register(prometheus.DefaultRegisterer)

	layout := storage.Layout{Root: cfg.Storage.DataDir}
	if err := layout.Ensure(); err != nil {
		return err
	}

	var (
		store  jobs.Store
		pruner rowPruner
	)
	if cfg.Jobs.DBPath != "" {
		sqlite, err := persistence.NewSQLiteStore(cfg.Jobs.DBPath)
		if err != nil {
			return err
		}
		defer sqlite.Close()
		store, pruner = sqlite, sqlite
		log.Info("Job store: %s", cfg.Jobs.DBPath)
	}

	queueOpts := []jobs.Option{jobs.WithRetention(cfg.Jobs.Retention)}
	if cfg.Record.MongoURI != "" {
		client, err := record.Connect(ctx, cfg.Record.MongoURI)
		if err != nil {
			return err
		}
		defer func() { _ = client.Disconnect(context.Background()) }()

		notifier := record.NewNotifier(record.NewMongoRecorder(client, cfg.Record.Database, cfg.Record.Collection), 0)
		defer notifier.Wait()
		queueOpts = append(queueOpts, jobs.WithTransitionHook(notifier.Hook()))
		log.Info("Record updates: %s.%s", cfg.Record.Database, cfg.Record.Collection)
	}

	var publisher storage.Publisher = storage.LocalPublisher{BaseURL: cfg.HTTP.PublicBaseURL}
	if cfg.S3.Bucket != "" {
		s3pub, err := storage.NewS3Publisher(ctx, storage.S3Config{
			Bucket:        cfg.S3.Bucket,
			Region:        cfg.S3.Region,
			Prefix:        cfg.S3.Prefix,
			PublicBaseURL: cfg.S3.PublicBaseURL,
			UsePathStyle:  cfg.S3.PathStyle,
		})
		if err != nil {
			return err
		}
		publisher = s3pub
	}

	settingsStore, err := config.OpenRuntimeSettings(cfg.System.SettingsFile, cfg.RuntimeSettings())
	if err != nil {
		return err
	}

	ff := media.NewFfmpeg(cfg.Engine.FFmpegPath, cfg.Engine.FFprobePath)
	if err := ff.Available(); err != nil {
		log.Warn("%s is not available, renders will fail: %v", ff, err)
	}

	renderer := render.NewRenderer(
		fetch.New(layout.Temp(), fetch.WithTimeout(cfg.Fetch.Timeout)),
		ff,
		publisher,
		layout.Renders(),
		render.WithProber(ff),
		render.WithFonts(cfg.Engine.FontFile, cfg.Engine.FontFileCJK),
		render.WithEncodeTimeout(cfg.Engine.EncodeTimeout),
		render.WithUploadDir(layout.Uploads()),
		render.WithSettings(func() media.Settings {
			current := settingsStore.Current()
			return media.Settings{Preset: current.EncodePreset, CRF: current.EncodeCRF}
		}),
	)

	queue := jobs.NewQueue(cfg.Jobs.Workers, store, queueOpts...)
	queue.Start(renderer.Execute)
	defer queue.Stop()

	cronEngine := cron.New()
	sweep := newSweeper(queue, pruner, layout.Temp(), cfg.Jobs.Retention, cronEngine, settingsStore.Current().SweepCron)

	srv := httpapi.NewServer(queue, layout,
		httpapi.WithRuntimeSettingsStore(settingsStore),
		httpapi.WithRuntimeSettingsApplier(func(next config.RuntimeSettings) error {
			return sweep.Reschedule(next.SweepCron)
		}),
		httpapi.WithRenderSecret(cfg.HTTP.RenderSecret),
		httpapi.WithRateLimit(cfg.HTTP.RateLimitRPS, cfg.HTTP.RateLimitBurst),
		httpapi.WithSweepSchedule(sweep.Expr),
	)

	return runWithComponents(ctx, cfg, sweep, cronEngine, srv)
}

// runWithComponents schedules background work, serves HTTP and shuts both
// down when ctx is cancelled.
func runWithComponents(ctx context.Context, cfg *config.Config, sched scheduler, cronEngine cronRunner, httpSrv httpServer) error {
	if err := sched.Schedule(ctx); err != nil {
		return err
	}
	cronEngine.Start()
	defer cronEngine.Stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening on %s", cfg.HTTP.Addr)
		errCh <- httpSrv.ListenAndServe(cfg.HTTP.Addr)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
