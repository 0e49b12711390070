package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"marginalia/api/internal/app"
	"marginalia/api/internal/config"
	"marginalia/api/internal/events"
	"marginalia/api/internal/history"
	"marginalia/api/internal/logging"
	"marginalia/api/internal/registry"
	"marginalia/api/internal/search"
	"marginalia/api/internal/snapshot"
	"marginalia/api/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL, store.PoolOptions{
		MaxOpenConns: cfg.DBMaxOpenConns,
		MaxIdleConns: cfg.DBMaxIdleConns,
	})
	if err != nil {
		logger.WithError(err).Fatal("database connection failed")
	}
	defer db.Close()

	applied, err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir)
	if err != nil {
		logger.WithError(err).Fatal("migrations failed")
	}
	for _, version := range applied {
		logger.WithField("version", version).Info("applied migration")
	}

	if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
		logger.WithError(err).Fatal("failed to create history dir")
	}

	snapshots := []snapshot.Store{}
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := snapshot.NewRedisStore(cfg.RedisURL, cfg.SnapshotTTL)
		if err != nil {
			logger.WithError(err).Fatal("redis connection failed")
		}
		defer redisStore.Close()
		snapshots = append(snapshots, redisStore)
		logger.Info("using redis for session snapshots")
	}
	if strings.TrimSpace(cfg.MinioEndpoint) != "" {
		archive, err := snapshot.NewArchiveStore(ctx, snapshot.ArchiveConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
		if err != nil {
			logger.WithError(err).Fatal("snapshot archive unavailable")
		}
		snapshots = append(snapshots, archive)
		logger.WithField("bucket", cfg.MinioBucket).Info("archiving session snapshots")
	}
	if len(snapshots) == 0 {
		logger.Warn("no snapshot backend configured, sessions live in memory only")
		snapshots = append(snapshots, snapshot.NewMemoryStore())
	}
	docs := registry.New(snapshot.NewChain(snapshots...), cfg.SiteID, logger)

	dataStore := store.NewPostgresStore(db)
	historyService := history.New(cfg.HistoryDir)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts, logger)
	if meiliClient != nil {
		go func() {
			reindexCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			searchService.ReindexAllFromPG(reindexCtx)
		}()
	}

	var publisher events.Publisher = events.Nop{}
	var dispatcher *events.KafkaDispatcher
	if len(cfg.KafkaBrokers) > 0 {
		producer, err := events.NewSyncProducer(cfg.KafkaBrokers)
		if err != nil {
			logger.WithError(err).Fatal("kafka producer failed")
		}
		dispatcher = events.NewKafkaDispatcher(producer, cfg.KafkaTopic, logger, events.DefaultKafkaDispatcherOptions())
		publisher = dispatcher
		logger.WithFields(logrus.Fields{
			"brokers": cfg.KafkaBrokers,
			"topic":   cfg.KafkaTopic,
		}).Info("publishing comment events")
	}

	service := app.New(cfg, dataStore, docs, historyService, searchService, publisher, logger)
	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.WithField("addr", cfg.Addr).Info("marginalia api listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("shutdown error")
	}
	if err := docs.StoreAll(shutdownCtx); err != nil {
		logger.WithError(err).Warn("failed to store open sessions")
	}
	if dispatcher != nil {
		if err := dispatcher.Close(); err != nil {
			logger.WithError(err).Warn("failed to close event dispatcher")
		}
	}
}
