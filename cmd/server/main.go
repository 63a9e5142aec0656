// @title           Dealer Studio Backend API
// @version         1.0.0
// @description     Backend API for dealership vehicle photos. Orders collect photos, and a batch classifies each one and re-composites it into the order's studio with Gemini. Results can be archived to Supabase Storage with live progress via Supabase Realtime.

// @host      localhost:8080
// @BasePath  /api/v1

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"dealer-studio-backend/internal/cache"
	"dealer-studio-backend/internal/classifier"
	"dealer-studio-backend/internal/config"
	"dealer-studio-backend/internal/database"
	"dealer-studio-backend/internal/gemini"
	"dealer-studio-backend/internal/generator"
	"dealer-studio-backend/internal/handlers"
	"dealer-studio-backend/internal/pipeline"
	"dealer-studio-backend/internal/services"
	"dealer-studio-backend/internal/store"
	"dealer-studio-backend/internal/studio"
	"dealer-studio-backend/internal/supabase"
)

const plateLoadConcurrency = 4

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Gemini
	geminiClient := gemini.New(gemini.Options{
		APIKey:     cfg.GeminiAPIKey,
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		HTTPClient: &http.Client{Timeout: cfg.HTTPTimeout},
		Logger:     logger,
	})
	cls := classifier.New(geminiClient, classifier.Options{Model: cfg.ClassifierModel, Logger: logger})
	gen := generator.New(geminiClient, generator.Options{Model: cfg.GeneratorModel, Logger: logger})

	// Supabase is optional; without it results stay in memory only.
	var (
		realtimeClient *supabase.RealtimeClient
		archiveStorage *supabase.StorageClient
	)
	if cfg.SupabaseEnabled() {
		supabaseClient, err := supabase.NewClient(cfg)
		if err != nil {
			log.Fatalf("Failed to initialize Supabase client: %v", err)
		}
		realtimeClient = supabase.NewRealtimeClient(supabaseClient.Supabase)

		archiveStorage, err = supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
		if err != nil {
			log.Fatalf("Failed to initialize storage client: %v", err)
		}
	} else {
		logger.Warn("SUPABASE_URL not set, processed images will not be archived")
	}

	// Studio plates
	catalog := studio.DefaultCatalog()
	var loader studio.Loader = studio.DirLoader{Root: cfg.StudioDir}
	if cfg.PlateBucket != "" {
		plateStorage, err := supabase.NewStorageClient(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.PlateBucket)
		if err != nil {
			log.Fatalf("Failed to initialize plate storage: %v", err)
		}
		loader = plateStorage
		logger.Info("loading studio plates from storage", "bucket", cfg.PlateBucket)
	} else {
		logger.Info("loading studio plates from disk", "dir", cfg.StudioDir)
	}

	libOpts := studio.Options{Logger: logger}
	if cfg.RedisURL != "" {
		plateCache, err := cache.NewPlateCache(cfg.RedisURL, cfg.PlateTTL)
		if err != nil {
			logger.Warn("plate cache disabled", "error", err)
		} else if err := plateCache.Ping(ctx); err != nil {
			logger.Warn("plate cache unreachable, continuing without it", "error", err)
			_ = plateCache.Close()
		} else {
			defer plateCache.Close()
			libOpts.Cache = plateCache
		}
	}
	library := studio.NewLibrary(catalog, loader, libOpts)
	if cfg.PreloadPlates {
		if err := library.Preload(ctx, plateLoadConcurrency); err != nil {
			logger.Warn("some studio plates failed to preload", "error", err)
		}
	}

	// Pipeline
	st := store.New(store.Options{StudioExists: catalog.Exists})
	orchestrator := pipeline.New(st, cls, gen, library, pipeline.Options{
		ClassifyTimeout: cfg.ClassifyTimeout,
		GenerateTimeout: cfg.GenerateTimeout,
		Logger:          logger,
	})

	// Archive database
	var dbClient *supabase.DatabaseClient
	if cfg.DatabaseURL != "" {
		migrator, err := database.NewMigrator(cfg.DatabaseURL, logger)
		if err != nil {
			logger.Warn("failed to initialize migrator", "error", err)
		} else {
			if err := migrator.Run(); err != nil {
				logger.Warn("migration failed", "error", err)
			}
			_ = migrator.Close()
		}

		dbClient, err = supabase.NewDatabaseClient(cfg.DatabaseURL)
		if err != nil {
			logger.Warn("failed to initialize database client, archive records disabled", "error", err)
			dbClient = nil
		} else {
			defer dbClient.Close()
		}
	} else {
		logger.Warn("DATABASE_URL not set, archive records disabled")
	}

	deps := handlers.Deps{
		RunCtx:          ctx,
		Store:           st,
		Orchestrator:    orchestrator,
		Catalog:         catalog,
		Classifier:      cls,
		ClassifyTimeout: cfg.ClassifyTimeout,
		MaxUploadBytes:  int64(cfg.MaxUploadMB) << 20,
		Logger:          logger,
	}

	listenerOpts := services.ListenerOptions{Logger: logger}
	archiving := false
	if realtimeClient != nil {
		listenerOpts.Realtime = realtimeClient
		archiving = true
	}
	if archiveStorage != nil {
		listenerOpts.Storage = archiveStorage
		deps.Files = archiveStorage
		archiving = true
	}
	if dbClient != nil {
		listenerOpts.Database = dbClient
		deps.Orders = dbClient
		deps.Archive = dbClient
		archiving = true
	}
	if archiving {
		deps.Consumer = services.NewBatchListener(st, listenerOpts)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handlers.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
