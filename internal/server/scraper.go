package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"

	"github.com/go-playground/validator/v10"

	"github.com/balkhaev/trender/internal/instagram"
	"github.com/balkhaev/trender/internal/storage"
	"github.com/balkhaev/trender/internal/trace"
)

// ReelClient is the scraping client contract the reel handlers depend on.
type ReelClient interface {
	// EnsureSession bootstraps the session on first use: persisted session
	// file, then credential login, then companion-server cookies.
	EnsureSession(ctx context.Context)

	// Login authenticates with explicit credentials and persists the session.
	Login(ctx context.Context, username, password string) error

	// ApplyCookies loads an external cookie set into the client.
	ApplyCookies(cookies []instagram.Cookie) error

	// RefreshCookies re-fetches cookies from the companion server and
	// returns how many were applied.
	RefreshCookies(ctx context.Context) (int, error)

	// PostMetadata fetches a post's metadata by shortcode.
	PostMetadata(ctx context.Context, shortcode string) (*instagram.Post, error)

	// DownloadVideo downloads a post's video into dir and returns its path.
	DownloadVideo(ctx context.Context, shortcode, dir string) (string, error)

	// LoggedIn reports whether the client holds an authenticated session.
	LoggedIn() bool

	// Username returns the logged-in username, or empty.
	Username() string
}

var _ ReelClient = (*instagram.Client)(nil)

// ScraperHandlers contains the HTTP handlers for the reel fetcher service.
type ScraperHandlers struct {
	client   ReelClient
	store    storage.Store
	validate *validator.Validate
	logger   *slog.Logger
}

// NewScraperHandlers creates handlers for the reel fetcher endpoints.
func NewScraperHandlers(client ReelClient, store storage.Store, logger *slog.Logger) *ScraperHandlers {
	return &ScraperHandlers{
		client:   client,
		store:    store,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// HealthCheck handles GET /health requests.
func (h *ScraperHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Status handles GET /status requests.
func (h *ScraperHandlers) Status(w http.ResponseWriter, r *http.Request) {
	h.client.EnsureSession(r.Context())
	writeJSON(w, http.StatusOK, ScraperStatusResponse{
		Status:   "ok",
		LoggedIn: h.client.LoggedIn(),
		Username: h.client.Username(),
	})
}

// Login handles POST /login requests.
func (h *ScraperHandlers) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "INVALID_REQUEST")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	if err := h.client.Login(r.Context(), req.Username, req.Password); err != nil {
		h.logger.Warn("login failed", "username", req.Username, "error", err)
		writeError(w, http.StatusBadRequest, err.Error(), "LOGIN_FAILED")
		return
	}

	h.logger.Info("logged in", "username", req.Username)
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "logged in as " + req.Username})
}

// ApplyCookies handles POST /cookies requests.
func (h *ScraperHandlers) ApplyCookies(w http.ResponseWriter, r *http.Request) {
	var req CookiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "INVALID_REQUEST")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	if err := h.client.ApplyCookies(req.Cookies); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "COOKIES_REJECTED")
		return
	}

	h.logger.Info("cookies applied", "count", len(req.Cookies))
	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: fmt.Sprintf("applied %d cookies", len(req.Cookies)),
	})
}

// RefreshCookies handles POST /cookies/refresh requests.
func (h *ScraperHandlers) RefreshCookies(w http.ResponseWriter, r *http.Request) {
	count, err := h.client.RefreshCookies(r.Context())
	if err != nil {
		h.logger.Warn("cookie refresh failed", "error", err)
		writeError(w, http.StatusBadRequest, err.Error(), "COOKIES_REFRESH_FAILED")
		return
	}

	h.logger.Info("cookies refreshed", "count", count)
	writeJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: fmt.Sprintf("refreshed %d cookies", count),
	})
}

// Metadata handles POST /metadata requests. Scraping failures come back as
// a success:false payload, not a server error.
func (h *ScraperHandlers) Metadata(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "INVALID_REQUEST")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	h.client.EnsureSession(r.Context())

	post, err := h.client.PostMetadata(r.Context(), req.Shortcode)
	if err != nil {
		h.logger.Warn("metadata lookup failed", "shortcode", req.Shortcode, "error", err,
			"trace_id", trace.TraceID(r.Context()))
		writeJSON(w, http.StatusOK, MetadataResponse{
			Success:   false,
			Shortcode: req.Shortcode,
			Error:     err.Error(),
		})
		return
	}

	writeJSON(w, http.StatusOK, MetadataResponse{
		Success:      true,
		Shortcode:    post.Shortcode,
		Caption:      post.Caption,
		CommentCount: post.CommentCount,
		LikeCount:    post.LikeCount,
		ViewCount:    post.ViewCount,
		Author:       post.Author,
		ThumbnailURL: post.ThumbnailURL,
		Duration:     post.Duration,
	})
}

// Download handles POST /download requests. On success the raw video bytes
// are streamed back; scraping failures come back as a success:false payload.
func (h *ScraperHandlers) Download(w http.ResponseWriter, r *http.Request) {
	var req DownloadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error(), "INVALID_REQUEST")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, "validation failed: "+err.Error(), "VALIDATION_ERROR")
		return
	}

	h.client.EnsureSession(r.Context())

	dir, cleanup, err := h.store.Scope("reel_" + req.Shortcode)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create working directory: "+err.Error(), "STORAGE_ERROR")
		return
	}
	defer cleanup()

	videoPath, err := h.client.DownloadVideo(r.Context(), req.Shortcode, dir)
	if err != nil {
		h.logger.Warn("download failed", "shortcode", req.Shortcode, "error", err,
			"trace_id", trace.TraceID(r.Context()))
		writeJSON(w, http.StatusOK, DownloadResponse{
			Success:   false,
			Shortcode: req.Shortcode,
			Error:     err.Error(),
		})
		return
	}

	data, err := os.ReadFile(videoPath)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read video file: "+err.Error(), "STORAGE_ERROR")
		return
	}

	if req.Upload {
		folder := req.Folder
		if folder == "" {
			folder = "reels"
		}
		key := path.Join(folder, req.Shortcode+".mp4")
		url, err := h.store.Archive(r.Context(), key, bytes.NewReader(data))
		if err != nil {
			h.logger.Warn("archive upload failed", "key", key, "error", err)
		} else {
			w.Header().Set("X-Video-URL", url)
		}
	}

	h.logger.Info("reel downloaded", "shortcode", req.Shortcode, "bytes", len(data))
	w.Header().Set("X-Shortcode", req.Shortcode)
	writeVideo(w, filepath.Base(videoPath), data)
}

// NewScraperRouter creates the HTTP routes for the reel fetcher service.
func NewScraperRouter(h *ScraperHandlers, cfg Config, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /status", h.Status)
	mux.HandleFunc("POST /login", h.Login)
	mux.HandleFunc("POST /cookies", h.ApplyCookies)
	mux.HandleFunc("POST /cookies/refresh", h.RefreshCookies)
	mux.HandleFunc("POST /metadata", h.Metadata)
	mux.HandleFunc("POST /download", h.Download)

	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		trace.Middleware(),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)
	return chain(mux)
}
