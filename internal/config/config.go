// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/sethvargo/go-envconfig"
)

// ErrCredentialsIncomplete is returned when only one of INSTAGRAM_USER and
// INSTAGRAM_PASS is set.
var ErrCredentialsIncomplete = errors.New("config: INSTAGRAM_USER and INSTAGRAM_PASS must be set together")

// Logging holds the settings shared by both services' loggers.
type Logging struct {
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// Scraper holds all configuration for the reel fetcher service.
type Scraper struct {
	// Server settings
	Port int `env:"PORT, default=8001" json:"port"`

	// Instagram session settings
	SessionFile   string `env:"SESSION_FILE, default=./session" json:"session_file"`
	InstagramUser string `env:"INSTAGRAM_USER" json:"instagram_user,omitempty"`
	InstagramPass string `env:"INSTAGRAM_PASS" json:"-"` // Masked in JSON

	// ServerURL is the companion server used as a cookie source.
	ServerURL string `env:"SERVER_URL, default=http://localhost:3000" json:"server_url"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/trender-scraper" json:"temp_dir"`

	// Optional S3 archive settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	Logging
}

// VideoTool holds all configuration for the video tool service.
type VideoTool struct {
	// Server settings
	Port int `env:"PORT, default=8002" json:"port"`

	// ffmpeg/ffprobe binaries; resolved via PATH when empty.
	FFmpegPath  string `env:"FFMPEG_PATH" json:"ffmpeg_path,omitempty"`
	FFprobePath string `env:"FFPROBE_PATH" json:"ffprobe_path,omitempty"`

	// Frame extraction defaults
	FrameIntervalSec float64 `env:"FRAME_INTERVAL_SEC, default=2.0" json:"frame_interval_sec"`
	MaxFrames        int     `env:"MAX_FRAMES, default=30" json:"max_frames"`
	JPEGQuality      int     `env:"JPEG_QUALITY, default=85" json:"jpeg_quality"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/trender-videotool" json:"temp_dir"`

	Logging
}

// S3Enabled returns true if S3 archive configuration is provided.
func (c *Scraper) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// LoadScraper reads scraper configuration from environment variables.
func LoadScraper() (*Scraper, error) {
	cfg := &Scraper{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadVideoTool reads video tool configuration from environment variables.
func LoadVideoTool() (*VideoTool, error) {
	cfg := &VideoTool{}
	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// Validate checks that credential configuration is consistent. Credentials
// are optional (the service can run anonymously or on fetched cookies), but
// a username without a password or vice versa is a deployment mistake.
func (c *Scraper) Validate() error {
	if (c.InstagramUser == "") != (c.InstagramPass == "") {
		return ErrCredentialsIncomplete
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs via tint.
func (l Logging) NewLogger() *slog.Logger {
	level := parseLogLevel(l.LogLevel)

	var handler slog.Handler
	if strings.ToLower(l.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Scraper) String() string {
	return fmt.Sprintf(
		"Scraper{Port: %d, SessionFile: %s, InstagramUser: %s, ServerURL: %s, TempDir: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.SessionFile,
		c.InstagramUser,
		c.ServerURL,
		c.TempDir,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// String returns a string representation of the config.
func (c *VideoTool) String() string {
	return fmt.Sprintf(
		"VideoTool{Port: %d, FFmpegPath: %s, FFprobePath: %s, FrameIntervalSec: %.1f, MaxFrames: %d, JPEGQuality: %d, TempDir: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.FFmpegPath,
		c.FFprobePath,
		c.FrameIntervalSec,
		c.MaxFrames,
		c.JPEGQuality,
		c.TempDir,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
