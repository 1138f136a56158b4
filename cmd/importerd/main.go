// Package main wires together the import coordination service.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/patrondata/importar/internal/api"
	"github.com/patrondata/importar/internal/archive"
	archivegcs "github.com/patrondata/importar/internal/archive/gcs"
	archivelocal "github.com/patrondata/importar/internal/archive/local"
	archivememory "github.com/patrondata/importar/internal/archive/memory"
	"github.com/patrondata/importar/internal/clock/system"
	"github.com/patrondata/importar/internal/config"
	"github.com/patrondata/importar/internal/dispatcher"
	"github.com/patrondata/importar/internal/handlers"
	iduuid "github.com/patrondata/importar/internal/id/uuid"
	"github.com/patrondata/importar/internal/importop"
	"github.com/patrondata/importar/internal/logging"
	"github.com/patrondata/importar/internal/policy/ratelimit"
	"github.com/patrondata/importar/internal/progress"
	"github.com/patrondata/importar/internal/progress/sinks"
	memorypublisher "github.com/patrondata/importar/internal/publisher/memory"
	pubsubpublisher "github.com/patrondata/importar/internal/publisher/pubsub"
	queueMemory "github.com/patrondata/importar/internal/queue/memory"
	"github.com/patrondata/importar/internal/storage/postgres"
	"github.com/patrondata/importar/internal/store"
	"github.com/patrondata/importar/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd creates the importerd command. The daemon runs until it receives
// SIGINT or SIGTERM.
func newRootCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:          "importerd",
		Short:        "Import coordination service.",
		Long:         "importerd runs import operations submitted over HTTP, driving records\nfrom pluggable sources through registered consumer handlers.",
		SilenceUsage: true,
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(cfgPath)
		},
	}
	cmd.Flags().StringVar(&cfgPath, "config", "", "path to config file")
	return cmd
}

func run(cfgPath string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	// Trace context propagates into Pub/Sub message attributes.
	otel.SetTextMapPropagator(
		propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsRegistry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(metricsRegistry)
	if err != nil {
		logger.Fatal("metrics sink init failed", zap.Error(err))
	}

	progressSinks := []progress.Sink{
		sinks.NewLogSink(logger.Named("progress")),
		promSink,
	}

	var repo store.OperationRepository
	if cfg.DB.DSN != "" {
		opStore, storeErr := postgres.NewOperationStore(ctx, postgres.Config{
			DSN:      cfg.DB.DSN,
			MaxConns: cfg.DB.MaxConns,
			MinConns: cfg.DB.MinConns,
		})
		if storeErr != nil {
			logger.Fatal("operation store init failed", zap.Error(storeErr))
		}
		defer opStore.Close()
		repo = opStore
		progressSinks = append(progressSinks, sinks.NewStoreSink(repo, logger.Named("store_sink")))
	}

	hub := progress.NewHub(progress.Config{
		BaseContext: context.Background(),
		Logger:      logger.Named("progress_hub"),
	}, progressSinks...)

	blobStore, err := buildBlobStore(ctx, cfg)
	if err != nil {
		logger.Fatal("blob store init failed", zap.Error(err))
	}

	publisher, cleanup, err := buildPublisher(ctx, cfg)
	if err != nil {
		logger.Fatal("publisher init failed", zap.Error(err))
	}
	defer cleanup()

	registry := importop.NewRegistry()
	if err := subscribeHandlers(registry, cfg, blobStore, publisher, logger); err != nil {
		logger.Fatal("handler wiring failed", zap.Error(err))
	}

	coord := importop.NewCoordinator(registry, importop.CoordinatorConfig{
		Emitter: hub,
		Clock:   system.New(),
		IDs:     iduuid.NewUUIDGenerator(),
		Logger:  logger.Named("coordinator"),
	})

	jobQueue := queueMemory.NewQueue(cfg.Importer.QueueDepth)
	workerCfg := worker.Config{
		FeedUserAgent: cfg.Importer.UserAgent,
		FeedTimeout:   cfg.FeedTimeout(),
		FeedMaxPages:  cfg.Importer.FeedMaxPages,
	}
	if cfg.Importer.FeedRPS > 0 {
		workerCfg.FeedLimiter = ratelimit.New(ratelimit.Config{
			RequestsPerSecond: cfg.Importer.FeedRPS,
			Burst:             cfg.Importer.FeedBurst,
		})
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Importer.Concurrency; i++ {
		workers = append(workers, worker.New(
			jobQueue,
			coord,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	dispatch := dispatcher.New(jobQueue, workers)

	apiServer := api.NewServer(dispatch, repo, metricsRegistry, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("dispatcher started")
		dispatch.Run(ctx)
	}()

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	jobQueue.Close()
	if err := hub.Close(shutdownCtx); err != nil {
		logger.Error("progress hub shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func buildBlobStore(ctx context.Context, cfg config.Config) (archive.BlobStore, error) {
	switch cfg.Archive.Provider {
	case "", "none":
		return nil, nil
	case "memory":
		return archivememory.NewBlobStore(), nil
	case "local":
		return archivelocal.New(archivelocal.Config{BaseDir: cfg.Archive.LocalDir})
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		return archivegcs.New(client, archivegcs.Config{Bucket: cfg.Archive.GCSBucket})
	default:
		return nil, fmt.Errorf("unsupported archive provider %q", cfg.Archive.Provider)
	}
}

func buildPublisher(ctx context.Context, cfg config.Config) (handlers.Publisher, func(), error) {
	if cfg.PubSub.ProjectID == "" || cfg.PubSub.TopicName == "" {
		return memorypublisher.New(), func() {}, nil
	}
	client, err := gcppubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pub := client.Publisher(cfg.PubSub.TopicName)
	cleanup := func() {
		pub.Stop()
		if closeErr := client.Close(); closeErr != nil {
			zap.L().Warn("pubsub client close failed", zap.Error(closeErr))
		}
	}
	return pubsubpublisher.New(pub, cfg.PubSub.TopicName), cleanup, nil
}

// subscribeHandlers attaches the configured downstream handlers to every
// operation announced through the registry.
func subscribeHandlers(
	registry *importop.Registry,
	cfg config.Config,
	blobStore archive.BlobStore,
	publisher handlers.Publisher,
	logger *zap.Logger,
) error {
	var attach []importop.Handler

	if blobStore != nil {
		archiveHandler, err := handlers.NewArchiveHandler(blobStore, handlers.ArchiveConfig{
			Prefix:      cfg.Archive.Prefix,
			ContentType: cfg.Archive.ContentType,
			Logger:      logger.Named("archive"),
		})
		if err != nil {
			return fmt.Errorf("archive handler: %w", err)
		}
		attach = append(attach, archiveHandler)
	}

	if publisher != nil {
		topic := cfg.PubSub.TopicName
		if topic == "" {
			topic = "imports"
		}
		publishHandler, err := handlers.NewPublishHandler(
			publisher,
			topic,
			logger.Named("publish"),
		)
		if err != nil {
			return fmt.Errorf("publish handler: %w", err)
		}
		attach = append(attach, publishHandler)
	}

	if len(attach) == 0 {
		return nil
	}
	registry.Subscribe(func(_ context.Context, op *importop.Operation) error {
		for _, h := range attach {
			op.AttachHandler(h)
		}
		return nil
	})
	return nil
}
