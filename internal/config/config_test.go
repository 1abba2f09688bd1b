package config

import (
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "SESSION_FILE", "INSTAGRAM_USER", "INSTAGRAM_PASS",
		"SERVER_URL", "TEMP_DIR", "S3_BUCKET", "S3_REGION",
		"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY",
		"FFMPEG_PATH", "FFPROBE_PATH", "FRAME_INTERVAL_SEC",
		"MAX_FRAMES", "JPEG_QUALITY", "LOG_FORMAT", "LOG_LEVEL",
	} {
		os.Unsetenv(key)
	}
}

func TestLoadScraper_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadScraper()
	require.NoError(t, err)

	assert.Equal(t, 8001, cfg.Port)
	assert.Equal(t, "./session", cfg.SessionFile)
	assert.Equal(t, "http://localhost:3000", cfg.ServerURL)
	assert.Equal(t, "/tmp/trender-scraper", cfg.TempDir)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoadScraper_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9001")
	t.Setenv("SESSION_FILE", "/var/lib/trender/session")
	t.Setenv("INSTAGRAM_USER", "someuser")
	t.Setenv("INSTAGRAM_PASS", "somepass")
	t.Setenv("SERVER_URL", "http://server:3000")
	t.Setenv("S3_BUCKET", "reels-archive")
	t.Setenv("S3_REGION", "eu-west-1")
	t.Setenv("LOG_FORMAT", "json")

	cfg, err := LoadScraper()
	require.NoError(t, err)

	assert.Equal(t, 9001, cfg.Port)
	assert.Equal(t, "/var/lib/trender/session", cfg.SessionFile)
	assert.Equal(t, "someuser", cfg.InstagramUser)
	assert.Equal(t, "somepass", cfg.InstagramPass)
	assert.Equal(t, "http://server:3000", cfg.ServerURL)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadScraper_IncompleteCredentials(t *testing.T) {
	clearEnv(t)
	t.Setenv("INSTAGRAM_USER", "someuser")

	_, err := LoadScraper()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialsIncomplete)
}

func TestLoadVideoTool_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadVideoTool()
	require.NoError(t, err)

	assert.Equal(t, 8002, cfg.Port)
	assert.Equal(t, "", cfg.FFmpegPath)
	assert.InDelta(t, 2.0, cfg.FrameIntervalSec, 0.001)
	assert.Equal(t, 30, cfg.MaxFrames)
	assert.Equal(t, 85, cfg.JPEGQuality)
	assert.Equal(t, "/tmp/trender-videotool", cfg.TempDir)
}

func TestLoadVideoTool_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9002")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("FFPROBE_PATH", "/opt/ffmpeg/bin/ffprobe")
	t.Setenv("FRAME_INTERVAL_SEC", "0.5")
	t.Setenv("MAX_FRAMES", "60")
	t.Setenv("JPEG_QUALITY", "70")

	cfg, err := LoadVideoTool()
	require.NoError(t, err)

	assert.Equal(t, 9002, cfg.Port)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "/opt/ffmpeg/bin/ffprobe", cfg.FFprobePath)
	assert.InDelta(t, 0.5, cfg.FrameIntervalSec, 0.001)
	assert.Equal(t, 60, cfg.MaxFrames)
	assert.Equal(t, 70, cfg.JPEGQuality)
}

func TestScraperString_MasksSecrets(t *testing.T) {
	cfg := &Scraper{
		Port:          8001,
		InstagramUser: "someuser",
		InstagramPass: "supersecret",
	}

	s := cfg.String()
	assert.Contains(t, s, "someuser")
	assert.NotContains(t, s, "supersecret")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"bogus", slog.LevelInfo},
		{"", slog.LevelInfo},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLogLevel(tt.input), "level %q", tt.input)
	}
}

func TestNewLogger(t *testing.T) {
	t.Run("json format", func(t *testing.T) {
		l := Logging{LogFormat: "json", LogLevel: "debug"}
		logger := l.NewLogger()
		require.NotNil(t, logger)
	})

	t.Run("text format", func(t *testing.T) {
		l := Logging{LogFormat: "text", LogLevel: "info"}
		logger := l.NewLogger()
		require.NotNil(t, logger)
	})
}
