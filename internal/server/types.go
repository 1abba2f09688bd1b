// Package server provides the HTTP layer for both services: handlers,
// middleware, routes, and DTOs separated from domain types.
package server

import "github.com/balkhaev/trender/internal/instagram"

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
}

// --- Reel fetcher DTOs ---

// DownloadRequest asks for a single post by shortcode.
type DownloadRequest struct {
	// Shortcode is the post identifier, e.g. "DQ8gR5ukegX".
	Shortcode string `json:"shortcode" validate:"required,min=5,max=11"`
	// Folder is a naming hint for the archive key.
	Folder string `json:"folder"`
	// Upload pushes a copy of the video to the configured archive.
	Upload bool `json:"upload"`
}

// DownloadResponse is returned when a download fails; successful downloads
// stream the raw video bytes instead.
type DownloadResponse struct {
	Success   bool   `json:"success"`
	Shortcode string `json:"shortcode"`
	Filename  string `json:"filename,omitempty"`
	Error     string `json:"error,omitempty"`
}

// MetadataResponse describes a post. Field names match the companion
// server's camelCase contract.
type MetadataResponse struct {
	Success      bool   `json:"success"`
	Shortcode    string `json:"shortcode"`
	Caption      string `json:"caption,omitempty"`
	CommentCount *int64 `json:"commentCount,omitempty"`
	LikeCount    *int64 `json:"likeCount,omitempty"`
	ViewCount    *int64 `json:"viewCount,omitempty"`
	Author       string `json:"author,omitempty"`
	ThumbnailURL string `json:"thumbnailUrl,omitempty"`
	Duration     *int64 `json:"duration,omitempty"`
	Error        string `json:"error,omitempty"`
}

// LoginRequest carries explicit login credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// CookiesRequest loads a cookie set from an external source.
type CookiesRequest struct {
	Cookies []instagram.Cookie `json:"cookies" validate:"required,min=1"`
}

// MessageResponse is the generic success acknowledgement.
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ScraperStatusResponse reports service and login state.
type ScraperStatusResponse struct {
	Status   string `json:"status"`
	LoggedIn bool   `json:"logged_in"`
	Username string `json:"username,omitempty"`
}

// --- Video tool DTOs ---

// VideoStatusResponse reports the service status and the tool version.
type VideoStatusResponse struct {
	Status        string `json:"status"`
	FFmpegVersion string `json:"ffmpeg_version,omitempty"`
}

// FramesResponse carries extracted frames as base64 JPEG images.
type FramesResponse struct {
	Success     bool     `json:"success"`
	Frames      []string `json:"frames"`
	Count       int      `json:"count"`
	DurationSec *float64 `json:"duration_sec,omitempty"`
	IntervalSec float64  `json:"interval_sec"`
	Error       string   `json:"error,omitempty"`
}

// SceneRecord is one detected scene.
type SceneRecord struct {
	Index      int     `json:"index"`
	StartTime  float64 `json:"start_time"`
	EndTime    float64 `json:"end_time"`
	StartFrame int     `json:"start_frame"`
	EndFrame   int     `json:"end_frame"`
	// Thumbnail is a base64 JPEG from the middle of the scene.
	Thumbnail string `json:"thumbnail,omitempty"`
}

// ScenesResponse carries the detected scenes of an uploaded video.
type ScenesResponse struct {
	Success bool          `json:"success"`
	Scenes  []SceneRecord `json:"scenes"`
	Count   int           `json:"count"`
	Error   string        `json:"error,omitempty"`
}

// --- validated form parameter structs ---

type extractFramesParams struct {
	IntervalSec float64 `validate:"gt=0"`
	MaxFrames   int     `validate:"min=1,max=100"`
	Quality     int     `validate:"min=0,max=100"`
}

type rangeParams struct {
	StartTime float64 `validate:"gte=0"`
	EndTime   float64 `validate:"gtfield=StartTime"`
	MaxFrames int     `validate:"min=1,max=100"`
	Quality   int     `validate:"min=0,max=100"`
}

type trimParams struct {
	StartTime float64 `validate:"gte=0"`
	EndTime   float64 `validate:"gtfield=StartTime"`
}

type resizeParams struct {
	Width int `validate:"min=1,max=7680"`
}

type normalizeWidthParams struct {
	MinWidth    int `validate:"min=1"`
	TargetWidth int `validate:"min=1,gtefield=MinWidth"`
}

type extendParams struct {
	TargetDuration float64 `validate:"gt=0"`
}

type scenesParams struct {
	Threshold  float64 `validate:"gt=0,lt=1"`
	Thumbnails bool
}
