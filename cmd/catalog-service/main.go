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

	"github.com/gorilla/mux"
	"github.com/skuflow/platform/pkg/blobstore"
	"github.com/skuflow/platform/pkg/catalog"
	"github.com/skuflow/platform/pkg/common/config"
	"github.com/skuflow/platform/pkg/common/database"
	"github.com/skuflow/platform/pkg/common/kafka"
	"github.com/skuflow/platform/pkg/common/logger"
	"github.com/skuflow/platform/pkg/common/middleware"
	"github.com/skuflow/platform/pkg/ingestion"
	"github.com/skuflow/platform/pkg/ledger"
	"github.com/skuflow/platform/pkg/observability/metrics"
	"github.com/skuflow/platform/pkg/reconcile"
	"github.com/skuflow/platform/pkg/store/memory"
	"github.com/skuflow/platform/pkg/submission"
	"github.com/skuflow/platform/pkg/watcher"
)

const lockTTL = time.Minute

type ledgerStore interface {
	ingestion.Ledger
	submission.Ledger
	reconcile.Ledger
}

type catalogStore interface {
	ingestion.Catalog
	reconcile.Catalog
}

type stores struct {
	ledger  ledgerStore
	catalog catalogStore
	ready   func(ctx context.Context) error
}

func openStores(cfg *config.Config) (*stores, error) {
	if cfg.StoreBackend == "memory" {
		logger.Log.Warn("Using in-memory stores; catalog state is lost on restart")
		return &stores{
			ledger:  memory.NewLedger(),
			catalog: memory.NewCatalog(),
			ready:   func(context.Context) error { return nil },
		}, nil
	}

	db, err := database.GetPostgres()
	if err != nil {
		return nil, err
	}
	files := ledger.NewRepository(db)
	if err := files.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrating ledger tables: %w", err)
	}
	products := catalog.NewRepository(db)
	if err := products.AutoMigrate(); err != nil {
		return nil, fmt.Errorf("migrating catalog tables: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	return &stores{ledger: files, catalog: products, ready: sqlDB.PingContext}, nil
}

func openBlobs(ctx context.Context, cfg *config.Config) (blobstore.Store, error) {
	if cfg.BlobBackend == "minio" {
		return blobstore.NewMinioStore(ctx, blobstore.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	}
	return blobstore.NewLocalStore(cfg.UploadDir)
}

func openLocker(cfg *config.Config) ingestion.Locker {
	if cfg.LockBackend == "redis" {
		client, err := database.GetRedis()
		if err == nil {
			return ingestion.NewRedisLocker(client, "catalog:ingest:", lockTTL)
		}
		logger.Log.WithError(err).Warn("Redis unavailable, falling back to process-local run locks")
	}
	return ingestion.NewLocalLocker()
}

func main() {
	logger.Init()
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStores(cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open stores")
	}
	defer database.ClosePostgres()

	blobs, err := openBlobs(ctx, cfg)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to open blob store")
	}

	columns, err := ingestion.LoadColumns(cfg.ColumnMappingFile)
	if err != nil {
		logger.Log.WithError(err).Fatal("failed to load column mapping")
	}

	var events ingestion.Publisher
	if cfg.EventsTopic != "" {
		producer := kafka.NewProducer(cfg.EventsTopic)
		defer producer.Close()
		events = producer
	}

	locker := openLocker(cfg)
	defer database.CloseRedis()

	pipeline := ingestion.NewPipeline(st.ledger, st.catalog, blobs, events, ingestion.Options{
		Delimiter:     cfg.DelimiterRune(),
		Columns:       columns,
		ProgressEvery: cfg.ProgressEvery,
		Source:        cfg.EventsSourceName,
	})
	runner := ingestion.NewRunner(pipeline, locker, cfg.IngestionWorkers, cfg.RunTimeout)

	validator := submission.NewValidator(cfg.AllowedExtensions, cfg.MaxUploadBytes)
	svc := submission.NewService(validator, st.ledger, blobs, runner, submission.Options{
		Lint:      cfg.LintUploads,
		Delimiter: cfg.DelimiterRune(),
	})
	audit := reconcile.NewService(st.catalog, st.ledger)

	router := mux.NewRouter()
	router.Use(middleware.Recovery, middleware.Logging, middleware.CORS)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if err := st.ready(r.Context()); err != nil {
			logger.Log.WithError(err).Warn("readiness check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}).Methods(http.MethodGet)

	router.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		metrics.WritePrometheus(w)
	}).Methods(http.MethodGet)

	api := router.PathPrefix("/api/v1").Subrouter()
	submission.NewHTTPHandler(svc, cfg.MaxUploadBytes).Register(api)
	reconcile.NewHTTPHandler(audit).Register(api)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Log.WithFields(map[string]interface{}{
			"host":  cfg.ServerHost,
			"port":  cfg.ServerPort,
			"store": cfg.StoreBackend,
			"blobs": cfg.BlobBackend,
		}).Info("Catalog Service started")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.WithError(err).Fatal("failed to start server")
		}
	}()

	if cfg.ResumeOnStart {
		if n, err := svc.ResumeUnfinished(ctx); err != nil {
			logger.Log.WithError(err).Error("failed to resume unfinished files")
		} else if n > 0 {
			logger.Log.WithField("count", n).Info("Resumed unfinished files")
		}
	}

	if cfg.RetryTopic != "" {
		consumer := kafka.NewConsumer(cfg.RetryTopic, "")
		defer consumer.Close()
		go func() {
			if err := consumer.Consume(ctx, svc.HandleRetryEvent); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.WithError(err).Error("retry consumer stopped")
			}
		}()
	}

	if cfg.WatchDir != "" {
		go func() {
			if err := watcher.New(cfg.WatchDir, svc).Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Log.WithError(err).Error("drop directory watcher stopped")
			}
		}()
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down Catalog Service...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("server forced to shutdown")
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Warn("in-flight ingestion runs were cancelled and marked failed")
	}

	logger.Log.Info("Catalog Service stopped")
}
