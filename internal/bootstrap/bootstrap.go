// Package bootstrap provides dependency initialization for both services.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/balkhaev/trender/internal/config"
	"github.com/balkhaev/trender/internal/instagram"
	"github.com/balkhaev/trender/internal/media"
	"github.com/balkhaev/trender/internal/scene"
	"github.com/balkhaev/trender/internal/storage"
)

// ScraperDependencies holds the initialized dependencies of the reel
// fetcher service.
type ScraperDependencies struct {
	Client *instagram.Client
	Store  storage.Store
}

// NewScraperDependencies creates the reel fetcher's dependencies.
func NewScraperDependencies(cfg *config.Scraper, logger *slog.Logger) (*ScraperDependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []instagram.Option{instagram.WithLogger(logger)}
	if cfg.InstagramUser != "" {
		opts = append(opts, instagram.WithCredentials(cfg.InstagramUser, cfg.InstagramPass))
	}
	client := instagram.NewClient(cfg.SessionFile, cfg.ServerURL, opts...)

	return &ScraperDependencies{
		Client: client,
		Store:  store,
	}, nil
}

// VideoToolDependencies holds the initialized dependencies of the video
// tool service.
type VideoToolDependencies struct {
	Processor media.Processor
	Detector  scene.Detector
	Store     storage.Store
}

// NewVideoToolDependencies creates the video tool's dependencies.
func NewVideoToolDependencies(cfg *config.VideoTool, logger *slog.Logger) (*VideoToolDependencies, error) {
	store, err := storage.NewLocal(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}

	processor := media.NewFFmpegProcessor(cfg.FFmpegPath, cfg.FFprobePath)
	detector := scene.NewFFmpegDetector(processor, cfg.FFmpegPath)

	return &VideoToolDependencies{
		Processor: processor,
		Detector:  detector,
		Store:     store,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Scraper, logger *slog.Logger) (storage.Store, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Archive(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 archive configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocal(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
