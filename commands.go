package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/example/leafscan/internal/advisor"
	"github.com/example/leafscan/internal/auth"
	"github.com/example/leafscan/internal/config"
	"github.com/example/leafscan/internal/grpcclient"
	"github.com/example/leafscan/internal/handlers"
	"github.com/example/leafscan/internal/imageprocessor"
	"github.com/example/leafscan/internal/repository"
	"github.com/example/leafscan/internal/storage"
	"github.com/example/leafscan/internal/usecase"
)

func serveCmd() *cobra.Command {
	var staticDir string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the scanner web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			return serve(cmd.Context(), cfg, staticDir, logger)
		},
	}
	cmd.Flags().StringVar(&staticDir, "static", "static", "directory served under /static")
	return cmd
}

func serve(parent context.Context, cfg *config.Config, staticDir string, logger *zap.Logger) error {
	ctx, cancel := context.WithTimeout(parent, 15*time.Second)
	defer cancel()

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	repo := repository.NewScanRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	classifier, conn, err := grpcclient.DialClassifier(ctx, cfg.ClassifierAddr, logger)
	if err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	defer conn.Close()

	store, err := openStore(ctx, cfg, staticDir)
	if err != nil {
		return fmt.Errorf("upload store: %w", err)
	}
	if missing := missingScannerAssets(staticDir); len(missing) > 0 {
		logger.Warn("scanner page assets missing; the upload form will not respond until `go generate` is run",
			zap.String("static", staticDir), zap.Strings("missing", missing))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	details := advisor.New(advisor.Config{
		APIKey: cfg.OpenRouterAPIKey,
		Model:  cfg.OpenRouterModel,
		URL:    cfg.OpenRouterURL,
	}, logger)
	if !details.Enabled() {
		logger.Warn("OPENROUTER_API_KEY not set; disease details are disabled")
	}

	uc := usecase.NewScanUseCase(repo, usecase.NewRedisCache(redisClient), classifier, store, details, usecase.NewMetrics(registry), logger)

	r := gin.Default()
	r.MaxMultipartMemory = cfg.MaxUploadBytes
	err = handlers.RegisterRoutes(r, uc, auth.JWTMiddleware(cfg.JWTSecret, cfg.JWTAudience), handlers.Options{
		Logger:         logger,
		MaxUploadBytes: cfg.MaxUploadBytes,
		StaticDir:      staticDir,
		Metrics:        promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	})
	if err != nil {
		return fmt.Errorf("routes: %w", err)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return runServer(server, nil, 15*time.Second, nil, logger)
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := openDatabase(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			if err := repository.NewScanRepository(db, logger).AutoMigrate(cmd.Context()); err != nil {
				return err
			}
			logger.Info("database migrated", zap.String("driver", cfg.DBDriver))
			return nil
		},
	}
}

func predictCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "predict <image>",
		Short: "Classify a single image against the model service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			prepared, err := imageprocessor.Preprocess(data)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			classifier, conn, err := grpcclient.DialClassifier(ctx, cfg.ClassifierAddr, logger)
			if err != nil {
				return err
			}
			defer conn.Close()

			pred, err := classifier.Predict(ctx, "cli", prepared)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s) index=%d\n", pred.DisplayName(), pred.ConfidencePercent(), pred.Index)
			return nil
		},
	}
}

func openDatabase(ctx context.Context, cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Warn)})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, err
	}
	return db, nil
}

func openStore(ctx context.Context, cfg *config.Config, staticDir string) (storage.Store, error) {
	switch cfg.UploadBackend {
	case "disk":
		prefix, err := uploadURLPrefix(staticDir, cfg.UploadDir)
		if err != nil {
			return nil, err
		}
		return storage.NewDiskStore(cfg.UploadDir, prefix, cfg.MaxUploadBytes)
	case "minio":
		return storage.NewMinioStore(ctx, storage.MinioConfig{
			Endpoint:  cfg.MinioEndpoint,
			AccessKey: cfg.MinioAccessKey,
			SecretKey: cfg.MinioSecretKey,
			Bucket:    cfg.MinioBucket,
			UseSSL:    cfg.MinioUseSSL,
		})
	default:
		return nil, fmt.Errorf("unsupported UPLOAD_BACKEND %q", cfg.UploadBackend)
	}
}
